package stores

import (
	"context"
	"time"
)

// AuditStatus is the outcome of a recorded decryption.
type AuditStatus string

const (
	AuditStatusSucceeded AuditStatus = "succeeded"
	AuditStatusFailed    AuditStatus = "failed"
)

// DecryptRecord is one entry of the decryption audit log. It never holds
// plaintext or key material.
type DecryptRecord struct {
	ID             string      `json:"id"`
	Operation      string      `json:"operation"` // importAge, readAgeFile, read, import
	CiphertextPath string      `json:"ciphertext_path"`
	IdentityCount  int         `json:"identity_count"`
	CacheEnabled   bool        `json:"cache_enabled"`
	CacheDir       *string     `json:"cache_dir,omitempty"`
	Status         AuditStatus `json:"status"`
	Error          *string     `json:"error,omitempty"`
	DurationMs     int64       `json:"duration_ms"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DecryptFilter narrows ListDecrypts. Nil fields match everything.
type DecryptFilter struct {
	CiphertextPath *string
	Status         *AuditStatus
}

// Store defines the interface for the audit persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Audit operations
	RecordDecrypt(ctx context.Context, record *DecryptRecord) error
	GetDecrypt(ctx context.Context, id string) (*DecryptRecord, error)
	ListDecrypts(ctx context.Context, filter DecryptFilter, limit, offset int) ([]*DecryptRecord, error)
	CountDecrypts(ctx context.Context, filter DecryptFilter) (int64, error)
	PruneDecrypts(ctx context.Context, before time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
