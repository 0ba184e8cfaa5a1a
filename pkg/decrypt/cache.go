package decrypt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultCacheDirName is the directory created under os.TempDir when no
// cache directory is configured.
const DefaultCacheDirName = "froyo-age-cache"

const (
	baseCacheDirMode = 0o777
	userCacheDirMode = 0o700
	cacheFileMode    = 0o600
)

// Cache stores decrypted plaintext on disk, keyed by ciphertext path and
// separated per user:
//
//	<dir>/<uid>/<sha256(path)>-<basename>
//
// Entries never expire; a changed ciphertext at the same path keeps serving
// the cached plaintext until the entry is removed.
type Cache struct {
	dir string
	uid int
}

// NewCache returns a cache rooted at dir. An empty dir selects the default
// location under os.TempDir.
func NewCache(dir string) *Cache {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	return &Cache{dir: dir, uid: os.Getuid()}
}

// DefaultCacheDir returns the default cache root.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), DefaultCacheDirName)
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// UserDir returns the per-user directory inside the cache root.
func (c *Cache) UserDir() string {
	return filepath.Join(c.dir, strconv.Itoa(c.uid))
}

// EntryPath returns the file that caches the plaintext of ciphertextPath.
func (c *Cache) EntryPath(ciphertextPath string) string {
	sum := sha256.Sum256([]byte(ciphertextPath))
	name := hex.EncodeToString(sum[:]) + "-" + filepath.Base(ciphertextPath)
	return filepath.Join(c.UserDir(), name)
}

// Load returns the cached plaintext for ciphertextPath. found is false when
// no entry exists.
func (c *Cache) Load(ciphertextPath string) (content []byte, found bool, err error) {
	content, err = os.ReadFile(c.EntryPath(ciphertextPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return content, true, nil
}

// Store writes plaintext for ciphertextPath. The entry is written to a
// temporary file and renamed into place so concurrent readers never see a
// partial entry.
func (c *Cache) Store(ciphertextPath string, content []byte) error {
	if err := c.ensureDirs(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.UserDir(), ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(cacheFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting cache entry mode: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmpName, c.EntryPath(ciphertextPath)); err != nil {
		return fmt.Errorf("installing cache entry: %w", err)
	}
	return nil
}

// ensureDirs creates the shared root (world-writable so every user can
// create a private subdirectory) and the caller's private directory.
func (c *Cache) ensureDirs() error {
	if err := ensureDir(c.dir, baseCacheDirMode); err != nil {
		return err
	}
	return ensureDir(c.UserDir(), userCacheDirMode)
}

func ensureDir(dir string, mode fs.FileMode) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	// MkdirAll is subject to the umask.
	if err := os.Chmod(dir, mode); err != nil {
		return fmt.Errorf("setting cache directory mode: %w", err)
	}
	return nil
}
