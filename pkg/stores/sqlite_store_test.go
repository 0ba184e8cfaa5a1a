package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "audit.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	// Migrating twice is a no-op.
	for i := 0; i < 2; i++ {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migration %d failed: %v", i, err)
		}
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStore_NotInitialized(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected Migrate to fail before Init")
	}
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected HealthCheck to fail before Init")
	}
}

func TestDecryptRecordCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := &DecryptRecord{
		Operation:      "importAge",
		CiphertextPath: "/srv/secrets/db.age",
		IdentityCount:  2,
		CacheEnabled:   true,
		CacheDir:       strPtr("/tmp/froyo-age-cache"),
		Status:         AuditStatusSucceeded,
		DurationMs:     12,
	}
	if err := store.RecordDecrypt(ctx, record); err != nil {
		t.Fatalf("failed to record decrypt: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be assigned")
	}

	got, err := store.GetDecrypt(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get decrypt record: %v", err)
	}

	if got.Operation != record.Operation {
		t.Errorf("expected operation %s, got %s", record.Operation, got.Operation)
	}
	if got.CiphertextPath != record.CiphertextPath {
		t.Errorf("expected path %s, got %s", record.CiphertextPath, got.CiphertextPath)
	}
	if got.IdentityCount != 2 || !got.CacheEnabled {
		t.Errorf("unexpected identity count or cache flag: %+v", got)
	}
	if got.CacheDir == nil || *got.CacheDir != "/tmp/froyo-age-cache" {
		t.Errorf("unexpected cache dir: %v", got.CacheDir)
	}
	if got.Error != nil {
		t.Errorf("expected no error, got %v", *got.Error)
	}
	if got.Status != AuditStatusSucceeded {
		t.Errorf("expected status %s, got %s", AuditStatusSucceeded, got.Status)
	}
	if !got.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", record.CreatedAt, got.CreatedAt)
	}

	_, err = store.GetDecrypt(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecryptRecord_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := &DecryptRecord{ID: "fixed", Operation: "readAgeFile", CiphertextPath: "/a.age", Status: AuditStatusSucceeded}
	if err := store.RecordDecrypt(ctx, record); err != nil {
		t.Fatal(err)
	}
	dup := *record
	if err := store.RecordDecrypt(ctx, &dup); err == nil {
		t.Error("expected duplicate ID to fail")
	}
}

func TestListAndCountDecrypts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []*DecryptRecord{
		{Operation: "importAge", CiphertextPath: "/a.age", Status: AuditStatusSucceeded, CreatedAt: base},
		{Operation: "readAgeFile", CiphertextPath: "/b.age", Status: AuditStatusFailed, Error: strPtr("no identity matched any of the recipients"), CreatedAt: base.Add(time.Minute)},
		{Operation: "importAge", CiphertextPath: "/a.age", Status: AuditStatusSucceeded, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := store.RecordDecrypt(ctx, r); err != nil {
			t.Fatalf("failed to record decrypt: %v", err)
		}
	}

	failed := AuditStatusFailed
	tests := []struct {
		name      string
		filter    DecryptFilter
		limit     int
		offset    int
		wantPaths []string
		wantCount int64
	}{
		{
			name:      "all newest first",
			limit:     10,
			wantPaths: []string{"/a.age", "/b.age", "/a.age"},
			wantCount: 3,
		},
		{
			name:      "pagination",
			limit:     1,
			offset:    1,
			wantPaths: []string{"/b.age"},
			wantCount: 3,
		},
		{
			name:      "by path",
			filter:    DecryptFilter{CiphertextPath: strPtr("/a.age")},
			limit:     10,
			wantPaths: []string{"/a.age", "/a.age"},
			wantCount: 2,
		},
		{
			name:      "by status",
			filter:    DecryptFilter{Status: &failed},
			limit:     10,
			wantPaths: []string{"/b.age"},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListDecrypts(ctx, tt.filter, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListDecrypts() error = %v", err)
			}
			if len(got) != len(tt.wantPaths) {
				t.Fatalf("expected %d records, got %d", len(tt.wantPaths), len(got))
			}
			for i, want := range tt.wantPaths {
				if got[i].CiphertextPath != want {
					t.Errorf("record %d: expected %s, got %s", i, want, got[i].CiphertextPath)
				}
			}

			count, err := store.CountDecrypts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountDecrypts() error = %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("expected count %d, got %d", tt.wantCount, count)
			}
		})
	}

	list, _ := store.ListDecrypts(ctx, DecryptFilter{Status: &failed}, 10, 0)
	if len(list) == 1 && (list[0].Error == nil || *list[0].Error == "") {
		t.Error("expected failure reason to be stored")
	}
}

func TestPruneDecrypts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := &DecryptRecord{Operation: "importAge", CiphertextPath: "/old.age", Status: AuditStatusSucceeded, CreatedAt: now.Add(-48 * time.Hour)}
	recent := &DecryptRecord{Operation: "importAge", CiphertextPath: "/new.age", Status: AuditStatusSucceeded, CreatedAt: now}
	for _, r := range []*DecryptRecord{old, recent} {
		if err := store.RecordDecrypt(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.PruneDecrypts(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneDecrypts() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed record, got %d", removed)
	}

	if _, err := store.GetDecrypt(ctx, recent.ID); err != nil {
		t.Errorf("recent record should remain: %v", err)
	}
	if _, err := store.GetDecrypt(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record should be pruned, got %v", err)
	}
}
