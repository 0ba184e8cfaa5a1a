// Package decrypt is the age decryption collaborator used by the bridge.
//
// Its interface is deliberately narrow and C-shaped: [Library.Decrypt]
// returns an owned [Buffer] or nil, and the reason for a nil result is read
// afterwards with [Library.LastError]. That error slot is single and shared,
// so callers serialize the pair; the bridge package does this with a lock.
//
// Identity files may hold native age identities (AGE-SECRET-KEY-1...) or an
// unencrypted OpenSSH ed25519/RSA private key. Ciphertext may be binary or
// ASCII-armored. When caching is enabled, plaintext is stored under
// <cache dir>/<uid>/ and reused for the same ciphertext path.
package decrypt
