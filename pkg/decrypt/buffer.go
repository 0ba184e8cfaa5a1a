//go:build unix

package decrypt

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer owns decrypted plaintext. The bytes live in an anonymous mmap
// region outside the Go heap; Release zeroes and unmaps it.
//
// A Buffer must be released exactly once by its owner. Release is
// idempotent so a deferred release after an explicit one is harmless, but
// any access after release panics.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	length   int
	released bool
}

// NewBuffer copies content into protected memory and zeroes content.
func NewBuffer(content []byte) (*Buffer, error) {
	if len(content) == 0 {
		return &Buffer{}, nil
	}

	data, err := unix.Mmap(-1, 0, len(content), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap plaintext buffer: %w", err)
	}

	// RLIMIT_MEMLOCK is often tiny in containers; keep going unlocked.
	_ = unix.Mlock(data)
	excludeFromCoreDump(data)

	copy(data, content)
	clear(content)

	return &Buffer{data: data, length: len(content)}, nil
}

// Bytes returns the plaintext. The slice aliases the protected region and is
// only valid until Release.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		panic("decrypt: use of released plaintext buffer")
	}
	return b.data[:b.length]
}

// Release zeroes, unlocks and unmaps the plaintext.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if b.data == nil {
		return
	}
	clear(b.data)
	_ = unix.Munlock(b.data)
	_ = unix.Munmap(b.data)
	b.data = nil
	b.length = 0
}
