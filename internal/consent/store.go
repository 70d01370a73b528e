package consent

import "context"

// Store persists consent records. Implementations must be safe for
// concurrent readers and writers; status updates are last-write-wins since
// the transitions they record are idempotent.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, consentID string) (*Record, error)
	// LatestActive returns the most recently granted Active record for the
	// (patient, organization, purpose) triple, or sentinel.ErrNotFound.
	LatestActive(ctx context.Context, patientID, organizationID, purpose string) (*Record, error)
	UpdateStatus(ctx context.Context, consentID string, status Status) error
	ListByPatient(ctx context.Context, patientID string) ([]*Record, error)
}
