package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldforce/fieldforce/internal/shared"
)

// Logger records audit entries without ever failing the caller.
type Logger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger returns a new Logger.
func NewLogger(store Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

// Log persists the entry, filling id, timestamp, actor and request details from ctx when absent.
// It returns the stored entry, or nil when the entry was invalid or could not be persisted.
func (l *Logger) Log(ctx context.Context, entry Entry) *Entry {
	if l == nil || l.store == nil {
		return nil
	}
	entry.Action = strings.TrimSpace(entry.Action)
	entry.Resource = strings.TrimSpace(entry.Resource)
	if entry.Action == "" || entry.Resource == "" {
		l.logger.Warn("audit entry rejected", slog.String("action", entry.Action), slog.String("resource", entry.Resource))
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		if entry.UserID == "" {
			entry.UserID = sess.UserID
		}
		if entry.OrganizationID == "" {
			entry.OrganizationID = sess.OrganizationID
		}
	}
	meta := shared.RequestMetaFromContext(ctx)
	if entry.IPAddress == "" {
		entry.IPAddress = meta.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if err := l.store.Insert(ctx, entry); err != nil {
		l.logger.Error("audit log write failed",
			slog.String("action", entry.Action),
			slog.String("resource", entry.Resource),
			slog.String("resource_id", entry.ResourceID),
			slog.Any("error", err))
		return nil
	}
	return &entry
}
