package audit

import (
	"context"
	"time"
)

// Store persists audit entries. Appends are independent and immutable, so
// implementations need no cross-entry coordination.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByPatient(ctx context.Context, patientID string) ([]Entry, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]Entry, error)
}
