// Package audit keeps the append-only history of successful claims and
// redemptions. The log is reporting-only: the allocation engines write
// to it but never read it back.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credpool/entity"
	"credpool/lib/sl"

	"github.com/google/uuid"
)

const appendAttempts = 3

type Database interface {
	InsertAuditEntry(ctx context.Context, entry *entity.AuditEntry) error
	AuditEntries(ctx context.Context, platform string, kind entity.AuditKind, from, to time.Time) ([]*entity.AuditEntry, error)
}

type Log struct {
	db  Database
	log *slog.Logger
}

func New(db Database, log *slog.Logger) *Log {
	return &Log{
		db:  db,
		log: log.With(sl.Module("audit")),
	}
}

// Record appends one entry, retrying transient store failures. The
// caller holds the resource lock of the transition being recorded, so a
// returned error means the transition must be rolled back.
func (l *Log) Record(ctx context.Context, entry *entity.AuditEntry) error {
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var err error
	for i := 0; i < appendAttempts; i++ {
		if err = l.db.InsertAuditEntry(ctx, entry); err == nil {
			return nil
		}
		l.log.Warn("audit append retry",
			slog.String("resource_id", entry.ResourceId),
			slog.Int("attempt", i+1),
			sl.Err(err),
		)
	}
	return fmt.Errorf("audit append: %w", err)
}

// Query returns entries for a platform and kind within [from, to],
// ordered by timestamp ascending. Zero platform or kind matches all;
// zero bounds are open.
func (l *Log) Query(ctx context.Context, platform string, kind entity.AuditKind, from, to time.Time) ([]*entity.AuditEntry, error) {
	entries, err := l.db.AuditEntries(ctx, platform, kind, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	return entries, nil
}
