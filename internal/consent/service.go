package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payerhub/pkg/platform/sentinel"
)

// Clock supplies the current time; injected for expiry tests.
type Clock func() time.Time

// Service owns the consent lifecycle: granting with supersession, explicit
// revocation, lazy expiry, and subset scope checks.
type Service struct {
	store      Store
	defaultTTL time.Duration
	clock      Clock
	logger     *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the consent service. defaultTTL applies when a grant
// does not carry its own duration.
func NewService(store Store, defaultTTL time.Duration, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("consent store is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = 365 * 24 * time.Hour
	}
	s := &Service{
		store:      store,
		defaultTTL: defaultTTL,
		clock:      time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Grant creates an Active consent for the triple. Any prior Active record
// for the same triple is revoked first so at most one Active record exists
// per (patient, organization, purpose).
func (s *Service) Grant(ctx context.Context, patientID, organizationID, purpose string, scope []string, ttl time.Duration) (*Record, error) {
	if patientID == "" || organizationID == "" || purpose == "" {
		return nil, errors.New("patient, organization and purpose are required")
	}
	if len(scope) == 0 {
		return nil, errors.New("scope must not be empty")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	prior, err := s.store.LatestActive(ctx, patientID, organizationID, purpose)
	switch {
	case err == nil:
		if err := s.store.UpdateStatus(ctx, prior.ConsentID, StatusRevoked); err != nil {
			return nil, fmt.Errorf("supersede prior consent %s: %w", prior.ConsentID, err)
		}
		s.logger.Info("superseded prior consent",
			"consent_id", prior.ConsentID,
			"patient_id", patientID,
		)
	case errors.Is(err, sentinel.ErrNotFound):
		// First grant for this triple.
	default:
		return nil, fmt.Errorf("look up prior consent: %w", err)
	}

	now := s.clock()
	expiry := now.Add(ttl)
	record := &Record{
		ConsentID:      NewConsentID(patientID, organizationID, now),
		PatientID:      patientID,
		OrganizationID: organizationID,
		Purpose:        purpose,
		Status:         StatusActive,
		GrantedAt:      now,
		ExpiresAt:      &expiry,
		Scope:          append([]string{}, scope...),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save consent: %w", err)
	}

	s.logger.Info("granted consent",
		"consent_id", record.ConsentID,
		"patient_id", patientID,
		"organization_id", organizationID,
		"purpose", purpose,
	)
	return record, nil
}

// Revoke marks the consent Revoked. The transition is idempotent: revoking
// an already-revoked consent succeeds.
func (s *Service) Revoke(ctx context.Context, consentID string) error {
	if err := s.store.UpdateStatus(ctx, consentID, StatusRevoked); err != nil {
		return fmt.Errorf("revoke consent %s: %w", consentID, err)
	}
	s.logger.Info("revoked consent", "consent_id", consentID)
	return nil
}

// Check verifies that an Active, unexpired consent covering every requested
// capability exists for the triple. A nil return means approved. Denials
// surface as sentinel errors:
//   - ErrNotFound: no active consent for the triple
//   - ErrExpired: the record's expiry passed; its status is flipped to
//     Expired as a side effect
//   - ErrInsufficientScope: the record does not cover the full request
func (s *Service) Check(ctx context.Context, patientID, organizationID, purpose string, requestedScope []string) error {
	record, err := s.store.LatestActive(ctx, patientID, organizationID, purpose)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("look up consent: %w", err)
	}

	if record.ExpiredAt(s.clock()) {
		// Lazy transition; last-write-wins is fine since Expired is
		// idempotent and terminal for this record.
		if err := s.store.UpdateStatus(ctx, record.ConsentID, StatusExpired); err != nil {
			s.logger.Warn("failed to mark consent expired",
				"consent_id", record.ConsentID,
				"error", err,
			)
		}
		return sentinel.ErrExpired
	}

	if !record.CoversScope(requestedScope) {
		return sentinel.ErrInsufficientScope
	}
	return nil
}

// List returns every consent record for the patient, all statuses included;
// records are retained for audit and never deleted.
func (s *Service) List(ctx context.Context, patientID string) ([]*Record, error) {
	return s.store.ListByPatient(ctx, patientID)
}

// Get returns a single record by id.
func (s *Service) Get(ctx context.Context, consentID string) (*Record, error) {
	return s.store.Get(ctx, consentID)
}
