//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payerhub/internal/audit"
	"payerhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = audit.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.postgres != nil {
		_ = s.postgres.DB.Close()
		_ = s.postgres.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *PostgresStoreSuite) newEntry(patientID string, ts time.Time) audit.Entry {
	return audit.Entry{
		LogID:        audit.NewLogID("user-1", audit.ActionAccessGranted, patientID, ts),
		Timestamp:    ts,
		UserID:       "user-1",
		Action:       audit.ActionAccessGranted,
		ResourceType: "PATIENT_DATA",
		ResourceID:   patientID,
		PatientID:    patientID,
		AccessLevel:  "full",
		IPAddress:    "10.0.0.1",
		Success:      true,
		Details:      map[string]any{"purpose": "treatment"},
	}
}

func (s *PostgresStoreSuite) TestAppendAndListRoundTrip() {
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	entry := s.newEntry("patient-1", ts)

	s.Require().NoError(s.store.Append(ctx, entry))

	entries, err := s.store.ListByPatient(ctx, "patient-1")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(entry.LogID, entries[0].LogID)
	s.Equal(audit.ActionAccessGranted, entries[0].Action)
	s.Equal("10.0.0.1", entries[0].IPAddress)
	s.Equal("treatment", entries[0].Details["purpose"], "JSONB details survive the round trip")
}

func (s *PostgresStoreSuite) TestDuplicateLogIDsBothAppend() {
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	entry := s.newEntry("patient-1", ts)

	// Same log id twice: the log never deduplicates.
	s.Require().NoError(s.store.Append(ctx, entry))
	s.Require().NoError(s.store.Append(ctx, entry))

	entries, err := s.store.ListByPatient(ctx, "patient-1")
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *PostgresStoreSuite) TestEmptyIPStoredAsNull() {
	ctx := context.Background()
	entry := s.newEntry("patient-1", time.Now().UTC())
	entry.IPAddress = ""

	s.Require().NoError(s.store.Append(ctx, entry))

	entries, err := s.store.ListByPatient(ctx, "patient-1")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Empty(entries[0].IPAddress)
}

func (s *PostgresStoreSuite) TestListByTimeRange() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.Append(ctx, s.newEntry("patient-1", base.Add(time.Duration(i)*time.Hour))))
	}

	entries, err := s.store.ListByTimeRange(ctx, base, base.Add(time.Hour))
	s.Require().NoError(err)
	s.Len(entries, 2)
}
