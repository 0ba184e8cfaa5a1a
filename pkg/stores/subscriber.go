package stores

import (
	"context"
	"time"

	"github.com/openfroyo/froyo-age/pkg/telemetry"
	"github.com/rs/zerolog"
)

// DefaultRecordTimeout bounds a single audit write made by a subscriber.
const DefaultRecordTimeout = 5 * time.Second

// RecordFromEvent converts a decrypt event into an audit record. ok is
// false for events that are not about decryption.
func RecordFromEvent(event telemetry.Event) (record *DecryptRecord, ok bool) {
	info, reason, ok := telemetry.DecryptInfoFromEvent(event)
	if !ok {
		return nil, false
	}

	record = &DecryptRecord{
		ID:             event.ID,
		Operation:      info.Operation,
		CiphertextPath: info.CiphertextPath,
		IdentityCount:  info.IdentityCount,
		CacheEnabled:   info.CacheEnabled,
		Status:         AuditStatusSucceeded,
		DurationMs:     info.Duration.Milliseconds(),
		CreatedAt:      event.Timestamp,
	}
	if info.CacheDir != "" {
		dir := info.CacheDir
		record.CacheDir = &dir
	}
	if event.Type == telemetry.EventTypeDecryptFailed {
		record.Status = AuditStatusFailed
		record.Error = &reason
	}
	return record, true
}

// Subscribe records every decrypt event published on events into store.
// Write failures are logged and never reach the publisher.
func Subscribe(events *telemetry.EventPublisher, store Store, logger zerolog.Logger) {
	events.Subscribe(func(event telemetry.Event) {
		record, ok := RecordFromEvent(event)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), DefaultRecordTimeout)
		defer cancel()

		if err := store.RecordDecrypt(ctx, record); err != nil {
			logger.Error().
				Err(err).
				Str("ciphertext_path", record.CiphertextPath).
				Msg("Failed to record decrypt audit entry")
		}
	}, telemetry.FilterByType(telemetry.EventTypeDecryptSucceeded, telemetry.EventTypeDecryptFailed))
}
