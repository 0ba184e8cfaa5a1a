package bridge

import (
	"sync"

	"github.com/openfroyo/froyo-age/pkg/decrypt"
)

// Plaintext is an owned decrypted buffer. Release must be called exactly
// once when the content is no longer needed.
type Plaintext interface {
	Bytes() []byte
	Release()
}

// Collaborator is the decryption library. Decrypt returns nil on failure;
// LastError then describes the most recent failure, or returns nil when no
// reason is known. The error slot is shared, so a LastError result only
// belongs to the Decrypt call immediately before it.
type Collaborator interface {
	Decrypt(identities []string, path string, cache bool, cacheDir *string) Plaintext
	LastError() *string
}

// FromLibrary adapts a decrypt.Library to Collaborator.
func FromLibrary(lib *decrypt.Library) Collaborator {
	return libraryCollaborator{lib: lib}
}

type libraryCollaborator struct {
	lib *decrypt.Library
}

func (c libraryCollaborator) Decrypt(identities []string, path string, cache bool, cacheDir *string) Plaintext {
	buf := c.lib.Decrypt(identities, path, cache, cacheDir)
	if buf == nil {
		// A nil *Buffer must not become a non-nil Plaintext.
		return nil
	}
	return buf
}

func (c libraryCollaborator) LastError() *string {
	return c.lib.LastError()
}

// invokeMu serializes every "decrypt, then read the last error" pair in the
// process. It is package level because collaborators keep their error slot
// outside any one Invoker.
var invokeMu sync.Mutex

// Invoker calls the collaborator and turns its null-plus-last-error result
// into a Plaintext or a *DecryptionError.
type Invoker struct {
	collab Collaborator
}

// NewInvoker creates an Invoker for collab.
func NewInvoker(collab Collaborator) *Invoker {
	return &Invoker{collab: collab}
}

// Invoke calls the collaborator exactly once.
func (inv *Invoker) Invoke(args Args) (Plaintext, error) {
	pt, msg := inv.call(args)
	if pt == nil {
		detail := unknownError
		if msg != nil {
			detail = *msg
		}
		return nil, &DecryptionError{Detail: detail}
	}
	return pt, nil
}

func (inv *Invoker) call(args Args) (Plaintext, *string) {
	invokeMu.Lock()
	defer invokeMu.Unlock()

	pt := inv.collab.Decrypt(args.Identities, args.Path, args.Cache, args.CacheDir)
	if pt != nil {
		return pt, nil
	}
	return nil, inv.collab.LastError()
}
