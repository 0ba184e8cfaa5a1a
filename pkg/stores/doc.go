// Package stores persists the froyo-age decryption audit log in SQLite
// with WAL mode and embedded schema migrations.
package stores
