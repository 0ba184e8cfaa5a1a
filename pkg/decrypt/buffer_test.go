//go:build unix

package decrypt

import "testing"

func TestNewBuffer(t *testing.T) {
	src := []byte("secret = 1")
	buf, err := NewBuffer(src)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	defer buf.Release()

	if got := string(buf.Bytes()); got != "secret = 1" {
		t.Errorf("Bytes() = %q, want %q", got, "secret = 1")
	}
	for i, b := range src {
		if b != 0 {
			t.Fatalf("source byte %d not cleared", i)
		}
	}
}

func TestBuffer_Empty(t *testing.T) {
	buf, err := NewBuffer(nil)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	if len(buf.Bytes()) != 0 {
		t.Errorf("expected empty bytes, got %q", buf.Bytes())
	}
	buf.Release()
	if !buf.released {
		t.Error("expected buffer to be released")
	}
}

func TestBuffer_ReleaseIdempotent(t *testing.T) {
	buf, err := NewBuffer([]byte("abc"))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	buf.Release()
	buf.Release()
	if !buf.released {
		t.Error("expected buffer to be released")
	}
	if buf.data != nil || buf.length != 0 {
		t.Errorf("expected mapping to be dropped, length = %d", buf.length)
	}
}

func TestBuffer_UseAfterRelease(t *testing.T) {
	buf, err := NewBuffer([]byte("abc"))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	buf.Release()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on use after release")
		}
	}()
	_ = buf.Bytes()
}
