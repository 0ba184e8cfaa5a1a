package decrypt

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// writeIdentity generates an X25519 identity, writes it to dir and returns
// the identity file path and the recipient.
func writeIdentity(t *testing.T, dir, name string) (string, age.Recipient) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	path := filepath.Join(dir, name)
	content := "# created for tests\n" + identity.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing identity: %v", err)
	}
	return path, identity.Recipient()
}

// writeCiphertext encrypts plaintext to recipient and writes it to dir.
func writeCiphertext(t *testing.T, dir, name, plaintext string, armored bool, recipient age.Recipient) string {
	t.Helper()
	var out bytes.Buffer
	var dst io.Writer = &out
	var aw io.WriteCloser
	if armored {
		aw = armor.NewWriter(&out)
		dst = aw
	}
	w, err := age.Encrypt(dst, recipient)
	if err != nil {
		t.Fatalf("encrypting: %v", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		t.Fatalf("writing plaintext: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing encryptor: %v", err)
	}
	if aw != nil {
		if err := aw.Close(); err != nil {
			t.Fatalf("closing armor: %v", err)
		}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, out.Bytes(), 0o600); err != nil {
		t.Fatalf("writing ciphertext: %v", err)
	}
	return path
}
