package decrypt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age/agessh"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

func TestLibrary_Decrypt(t *testing.T) {
	dir := t.TempDir()
	identity, recipient := writeIdentity(t, dir, "key.txt")

	tests := []struct {
		name    string
		armored bool
	}{
		{name: "binary", armored: false},
		{name: "armored", armored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCiphertext(t, dir, tt.name+".age", `{ "port": 5432 }`, tt.armored, recipient)

			lib := NewLibrary(Options{Logger: zerolog.Nop()})
			buf := lib.Decrypt([]string{identity}, path, false, nil)
			if buf == nil {
				t.Fatalf("Decrypt() failed: %s", *lib.LastError())
			}
			defer buf.Release()

			if got := string(buf.Bytes()); got != `{ "port": 5432 }` {
				t.Errorf("plaintext = %q", got)
			}
		})
	}
}

func TestLibrary_DecryptFailures(t *testing.T) {
	dir := t.TempDir()
	identity, recipient := writeIdentity(t, dir, "key.txt")
	other, _ := writeIdentity(t, dir, "other.txt")
	garbage := filepath.Join(dir, "garbage.txt")
	if err := os.WriteFile(garbage, []byte("not a key\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	good := writeCiphertext(t, dir, "good.age", "x = 1", false, recipient)
	binary := writeCiphertext(t, dir, "binary.age", "\xff\xfe", false, recipient)
	nul := writeCiphertext(t, dir, "nul.age", "a\x00b", false, recipient)

	tests := []struct {
		name       string
		identities []string
		path       string
		wantErr    string
	}{
		{
			name:       "wrong identity",
			identities: []string{other},
			path:       good,
			wantErr:    "match any of the recipients",
		},
		{
			name:       "no usable identity",
			identities: []string{garbage, filepath.Join(dir, "missing.txt")},
			path:       good,
			wantErr:    "no identities specified",
		},
		{
			name:       "missing ciphertext",
			identities: []string{identity},
			path:       filepath.Join(dir, "missing.age"),
			wantErr:    "no such file",
		},
		{
			name:       "invalid utf-8",
			identities: []string{identity},
			path:       binary,
			wantErr:    "valid UTF-8",
		},
		{
			name:       "nul byte",
			identities: []string{identity},
			path:       nul,
			wantErr:    "NUL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := NewLibrary(Options{})
			if buf := lib.Decrypt(tt.identities, tt.path, false, nil); buf != nil {
				buf.Release()
				t.Fatal("expected Decrypt() to fail")
			}
			msg := lib.LastError()
			if msg == nil {
				t.Fatal("expected LastError() to be set")
			}
			if !strings.Contains(*msg, tt.wantErr) {
				t.Errorf("LastError() = %q, want substring %q", *msg, tt.wantErr)
			}
		})
	}
}

func TestLibrary_SkipsUnreadableIdentities(t *testing.T) {
	dir := t.TempDir()
	identity, recipient := writeIdentity(t, dir, "key.txt")
	path := writeCiphertext(t, dir, "a.age", "ok", false, recipient)

	lib := NewLibrary(Options{})
	buf := lib.Decrypt([]string{filepath.Join(dir, "nope.txt"), identity}, path, false, nil)
	if buf == nil {
		t.Fatalf("Decrypt() failed: %s", *lib.LastError())
	}
	defer buf.Release()
	if string(buf.Bytes()) != "ok" {
		t.Errorf("plaintext = %q", string(buf.Bytes()))
	}
}

func TestLibrary_LastErrorInitiallyNil(t *testing.T) {
	lib := NewLibrary(Options{})
	if msg := lib.LastError(); msg != nil {
		t.Errorf("LastError() = %q, want nil", *msg)
	}
}

func TestLibrary_Cache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	identity, recipient := writeIdentity(t, dir, "key.txt")
	path := writeCiphertext(t, dir, "db.age", "user = \"app\"", false, recipient)

	var lookups []bool
	lib := NewLibrary(Options{OnCacheLookup: func(hit bool) { lookups = append(lookups, hit) }})

	buf := lib.Decrypt([]string{identity}, path, true, &cacheDir)
	if buf == nil {
		t.Fatalf("Decrypt() failed: %s", *lib.LastError())
	}
	buf.Release()

	// Later calls must be served from the cache even without the ciphertext.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	buf = lib.Decrypt([]string{identity}, path, true, &cacheDir)
	if buf == nil {
		t.Fatalf("Decrypt() from cache failed: %s", *lib.LastError())
	}
	defer buf.Release()
	if string(buf.Bytes()) != "user = \"app\"" {
		t.Errorf("cached plaintext = %q", string(buf.Bytes()))
	}

	if len(lookups) != 2 || lookups[0] || !lookups[1] {
		t.Errorf("cache lookups = %v, want [false true]", lookups)
	}
}

func TestLibrary_CacheDisabled(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	identity, recipient := writeIdentity(t, dir, "key.txt")
	path := writeCiphertext(t, dir, "db.age", "a = 1", false, recipient)

	lib := NewLibrary(Options{})
	buf := lib.Decrypt([]string{identity}, path, false, &cacheDir)
	if buf == nil {
		t.Fatalf("Decrypt() failed: %s", *lib.LastError())
	}
	buf.Release()

	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Errorf("expected no cache directory, stat err = %v", err)
	}
}

func TestLibrary_SSHIdentity(t *testing.T) {
	dir := t.TempDir()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	recipient, err := agessh.NewEd25519Recipient(sshPub)
	if err != nil {
		t.Fatal(err)
	}
	path := writeCiphertext(t, dir, "ssh.age", "via ssh", true, recipient)

	lib := NewLibrary(Options{})
	buf := lib.Decrypt([]string{keyPath}, path, false, nil)
	if buf == nil {
		t.Fatalf("Decrypt() failed: %s", *lib.LastError())
	}
	defer buf.Release()
	if string(buf.Bytes()) != "via ssh" {
		t.Errorf("plaintext = %q", string(buf.Bytes()))
	}
}

func TestLoadIdentityFile_EncryptedSSHKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = loadIdentityFile(keyPath)
	if err == nil || !strings.Contains(err.Error(), "passphrase-protected") {
		t.Errorf("loadIdentityFile() error = %v, want passphrase error", err)
	}
}
