package decrypt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"unicode/utf8"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/rs/zerolog"
)

// Options configures a Library.
type Options struct {
	// Logger receives debug output about skipped identities and cache use.
	// Plaintext and key material are never logged.
	Logger zerolog.Logger

	// OnCacheLookup, when set, is called after every cache lookup.
	OnCacheLookup func(hit bool)
}

// Library is the decryption collaborator. Its surface mirrors a C ABI:
// Decrypt returns nil on failure and the reason is fetched separately with
// LastError. The last-error slot is shared by all callers of the Library,
// so a caller that needs the reason for its own failure must serialize the
// Decrypt/LastError pair.
type Library struct {
	logger        zerolog.Logger
	onCacheLookup func(hit bool)
	lastErr       atomic.Pointer[string]
}

// NewLibrary creates a Library.
func NewLibrary(opts Options) *Library {
	return &Library{
		logger:        opts.Logger,
		onCacheLookup: opts.OnCacheLookup,
	}
}

// Decrypt decrypts the age file at path with the given identity files.
// When cache is true the plaintext is served from, and stored into, the
// cache rooted at cacheDir (nil selects the default root).
//
// On success the caller owns the returned Buffer and must Release it. On
// failure Decrypt returns nil and records the reason for LastError.
func (l *Library) Decrypt(identities []string, path string, cache bool, cacheDir *string) *Buffer {
	var c *Cache
	if cache {
		dir := ""
		if cacheDir != nil {
			dir = *cacheDir
		}
		c = NewCache(dir)
	}

	content, err := l.decrypt(identities, path, c)
	if err != nil {
		l.setError(err)
		return nil
	}

	buf, err := NewBuffer(content)
	if err != nil {
		clear(content)
		l.setError(err)
		return nil
	}
	return buf
}

// LastError returns the reason for the most recent failed Decrypt, or nil
// if no call has failed yet. It is only meaningful immediately after a
// failed call.
func (l *Library) LastError() *string {
	msg := l.lastErr.Load()
	if msg == nil {
		return nil
	}
	out := *msg
	return &out
}

func (l *Library) setError(err error) {
	msg := err.Error()
	l.lastErr.Store(&msg)
}

func (l *Library) decrypt(identityPaths []string, path string, cache *Cache) ([]byte, error) {
	identities := loadIdentities(identityPaths, l.logger)

	if cache != nil {
		content, found, err := cache.Load(path)
		if l.onCacheLookup != nil {
			l.onCacheLookup(found)
		}
		if err != nil {
			return nil, err
		}
		if found {
			l.logger.Debug().Str("path", path).Msg("Serving plaintext from cache")
			return content, nil
		}
	}

	content, err := decryptFile(identities, path)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Store(path, content); err != nil {
			clear(content)
			return nil, err
		}
	}
	return content, nil
}

// decryptFile decrypts a binary or ASCII-armored age file.
func decryptFile(identities []age.Identity, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = bufio.NewReader(f)
	if peek, _ := src.(*bufio.Reader).Peek(len(armor.Header)); string(peek) == armor.Header {
		src = armor.NewReader(src)
	}

	reader, err := age.Decrypt(src, identities...)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		clear(content)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if err := checkText(content); err != nil {
		clear(content)
		return nil, err
	}
	return content, nil
}

// checkText enforces that plaintext can cross a NUL-terminated text
// boundary.
func checkText(content []byte) error {
	if !utf8.Valid(content) {
		return errors.New("stream did not contain valid UTF-8")
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return errors.New("plaintext contains a NUL byte")
	}
	return nil
}
