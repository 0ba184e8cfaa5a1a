package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// memoryPath selects a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordDecrypt appends a decryption record. An empty ID or CreatedAt is
// filled in.
func (s *SQLiteStore) RecordDecrypt(ctx context.Context, record *DecryptRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()

	query := `
		INSERT INTO decrypt_audit (id, operation, ciphertext_path, identity_count, cache_enabled, cache_dir, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Operation,
		record.CiphertextPath,
		record.IdentityCount,
		record.CacheEnabled,
		record.CacheDir,
		record.Status,
		record.Error,
		record.DurationMs,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record decrypt: %w", err)
	}

	return nil
}

// GetDecrypt retrieves a record by ID
func (s *SQLiteStore) GetDecrypt(ctx context.Context, id string) (*DecryptRecord, error) {
	query := `
		SELECT id, operation, ciphertext_path, identity_count, cache_enabled, cache_dir, status, error, duration_ms, created_at
		FROM decrypt_audit
		WHERE id = ?
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decrypt record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decrypt record: %w", err)
	}

	return record, nil
}

// ListDecrypts lists records, newest first, with optional filters and
// pagination
func (s *SQLiteStore) ListDecrypts(ctx context.Context, filter DecryptFilter, limit, offset int) ([]*DecryptRecord, error) {
	query := `
		SELECT id, operation, ciphertext_path, identity_count, cache_enabled, cache_dir, status, error, duration_ms, created_at
		FROM decrypt_audit
		WHERE (? IS NULL OR ciphertext_path = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	path, status := filterArgs(filter)
	rows, err := s.db.QueryContext(ctx, query, path, path, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list decrypt records: %w", err)
	}
	defer rows.Close()

	records := []*DecryptRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decrypt record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decrypt records: %w", err)
	}

	return records, nil
}

// CountDecrypts counts the records matching filter.
func (s *SQLiteStore) CountDecrypts(ctx context.Context, filter DecryptFilter) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM decrypt_audit
		WHERE (? IS NULL OR ciphertext_path = ?)
		  AND (? IS NULL OR status = ?)
	`

	path, status := filterArgs(filter)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, path, path, status, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count decrypt records: %w", err)
	}
	return count, nil
}

// PruneDecrypts deletes records created before the given time and returns
// how many were removed.
func (s *SQLiteStore) PruneDecrypts(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM decrypt_audit WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune decrypt records: %w", err)
	}

	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DecryptRecord, error) {
	record := &DecryptRecord{}
	err := row.Scan(
		&record.ID,
		&record.Operation,
		&record.CiphertextPath,
		&record.IdentityCount,
		&record.CacheEnabled,
		&record.CacheDir,
		&record.Status,
		&record.Error,
		&record.DurationMs,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func filterArgs(filter DecryptFilter) (path, status any) {
	if filter.CiphertextPath != nil {
		path = *filter.CiphertextPath
	}
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	return path, status
}
