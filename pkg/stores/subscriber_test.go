package stores

import (
	"context"
	"testing"
	"time"

	"github.com/openfroyo/froyo-age/pkg/telemetry"
	"github.com/rs/zerolog"
)

func TestRecordFromEvent(t *testing.T) {
	info := telemetry.DecryptInfo{
		Operation:      "readAgeFile",
		CiphertextPath: "/srv/token.age",
		IdentityCount:  1,
		CacheEnabled:   true,
		CacheDir:       "/var/cache/froyo",
		Duration:       30 * time.Millisecond,
	}

	tests := []struct {
		name       string
		event      telemetry.Event
		wantOK     bool
		wantStatus AuditStatus
		wantError  string
	}{
		{
			name: "succeeded",
			event: telemetry.Event{
				ID:             "evt-1",
				Type:           telemetry.EventTypeDecryptSucceeded,
				Operation:      info.Operation,
				CiphertextPath: info.CiphertextPath,
				Data: map[string]interface{}{
					"identity_count": 1,
					"cache_enabled":  true,
					"cache_dir":      "/var/cache/froyo",
					"duration":       0.03,
				},
			},
			wantOK:     true,
			wantStatus: AuditStatusSucceeded,
		},
		{
			name: "failed",
			event: telemetry.Event{
				Type:           telemetry.EventTypeDecryptFailed,
				Operation:      info.Operation,
				CiphertextPath: info.CiphertextPath,
				Data:           map[string]interface{}{"reason": "no identities specified"},
			},
			wantOK:     true,
			wantStatus: AuditStatusFailed,
			wantError:  "no identities specified",
		},
		{
			name:   "other event",
			event:  telemetry.Event{Type: telemetry.EventTypeEvaluationCompleted},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := RecordFromEvent(tt.event)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if record.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", record.Status, tt.wantStatus)
			}
			if record.CiphertextPath != info.CiphertextPath || record.Operation != info.Operation {
				t.Errorf("unexpected record: %+v", record)
			}
			if tt.wantError != "" && (record.Error == nil || *record.Error != tt.wantError) {
				t.Errorf("Error = %v, want %s", record.Error, tt.wantError)
			}
			if tt.wantError == "" && record.Error != nil {
				t.Errorf("unexpected error %s", *record.Error)
			}
		})
	}
}

func TestSubscribe_RecordsDecryptEvents(t *testing.T) {
	store := setupTestStore(t)

	events, err := telemetry.NewEventPublisher(telemetry.DefaultConfig().Events)
	if err != nil {
		t.Fatal(err)
	}
	Subscribe(events, store, zerolog.Nop())

	info := telemetry.DecryptInfo{Operation: "importAge", CiphertextPath: "/srv/db.age", IdentityCount: 1}
	if err := events.PublishDecryptSucceeded(info); err != nil {
		t.Fatal(err)
	}
	if err := events.PublishDecryptFailed(info, "file not found"); err != nil {
		t.Fatal(err)
	}
	if err := events.PublishEvaluationCompleted("main.star", time.Millisecond); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	count, err := store.CountDecrypts(ctx, DecryptFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 audit records, got %d", count)
	}

	failed := AuditStatusFailed
	list, err := store.ListDecrypts(ctx, DecryptFilter{Status: &failed}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Error == nil || *list[0].Error != "file not found" {
		t.Errorf("unexpected failed records: %+v", list)
	}
}
