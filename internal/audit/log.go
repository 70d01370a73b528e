package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payerhub/internal/platform/metrics"
)

var errAppendUnavailable = errors.New("audit store unavailable")

// Clock supplies the current time; injected for deterministic log ids.
type Clock func() time.Time

// Log writes access decisions synchronously. Callers that gate data release
// must treat an Append error as a denial: an unauditable grant is not a
// valid grant.
type Log struct {
	store   Store
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Log.
type Option func(*Log)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithMetrics attaches the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func NewLog(store Store, logger *slog.Logger, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Log{store: store, clock: time.Now, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append stamps the entry, derives its log id and persists it. The id is
// deterministic in (user, action, resource, timestamp); duplicate calls
// still append new rows.
func (l *Log) Append(ctx context.Context, entry Entry) (string, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock()
	}
	if entry.LogID == "" {
		entry.LogID = NewLogID(entry.UserID, entry.Action, entry.ResourceID, entry.Timestamp)
	}
	if err := l.store.Append(ctx, entry); err != nil {
		l.logger.Error("CRITICAL: audit append failed",
			"action", entry.Action,
			"user_id", entry.UserID,
			"patient_id", entry.PatientID,
			"error", err,
		)
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	if l.metrics != nil {
		l.metrics.AuditEntries.WithLabelValues(string(entry.Action)).Inc()
	}
	return entry.LogID, nil
}

// ListByPatient returns the patient's audit trail in chronological order.
func (l *Log) ListByPatient(ctx context.Context, patientID string) ([]Entry, error) {
	return l.store.ListByPatient(ctx, patientID)
}

// ListByTimeRange returns entries within [from, to].
func (l *Log) ListByTimeRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return l.store.ListByTimeRange(ctx, from, to)
}
