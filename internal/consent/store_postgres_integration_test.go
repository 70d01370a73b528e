//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payerhub/internal/consent"
	"payerhub/pkg/platform/sentinel"
	"payerhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *consent.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = consent.NewPostgres(s.postgres.DB)
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

func (s *PostgresStoreSuite) newRecord(patientID string, grantedAt time.Time) *consent.Record {
	expiry := grantedAt.Add(30 * 24 * time.Hour)
	return &consent.Record{
		ConsentID:      consent.NewConsentID(patientID, "org-1", grantedAt),
		PatientID:      patientID,
		OrganizationID: "org-1",
		Purpose:        "treatment",
		Status:         consent.StatusActive,
		GrantedAt:      grantedAt,
		ExpiresAt:      &expiry,
		Scope:          []string{consent.ScopeFullAccess, "lab_results"},
	}
}

func (s *PostgresStoreSuite) TestSaveAndGetRoundTrip() {
	ctx := context.Background()
	record := s.newRecord("patient-1", time.Now().UTC().Truncate(time.Microsecond))

	s.Require().NoError(s.store.Save(ctx, record))

	got, err := s.store.Get(ctx, record.ConsentID)
	s.Require().NoError(err)
	s.Equal(record.ConsentID, got.ConsentID)
	s.Equal(record.Scope, got.Scope, "TEXT[] scope survives the round trip")
	s.True(record.GrantedAt.Equal(got.GrantedAt))
}

func (s *PostgresStoreSuite) TestSaveDuplicateIDConflicts() {
	ctx := context.Background()
	record := s.newRecord("patient-1", time.Now().UTC())

	s.Require().NoError(s.store.Save(ctx, record))
	s.ErrorIs(s.store.Save(ctx, record), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetMissingReturnsNotFound() {
	_, err := s.store.Get(context.Background(), "DEADBEEFDEADBEEF")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestLatestActivePrefersNewestGrant() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	older := s.newRecord("patient-1", base.Add(-time.Hour))
	newer := s.newRecord("patient-1", base)
	s.Require().NoError(s.store.Save(ctx, older))
	s.Require().NoError(s.store.Save(ctx, newer))

	got, err := s.store.LatestActive(ctx, "patient-1", "org-1", "treatment")
	s.Require().NoError(err)
	s.Equal(newer.ConsentID, got.ConsentID)
}

func (s *PostgresStoreSuite) TestLatestActiveSkipsNonActive() {
	ctx := context.Background()
	record := s.newRecord("patient-1", time.Now().UTC())
	s.Require().NoError(s.store.Save(ctx, record))
	s.Require().NoError(s.store.UpdateStatus(ctx, record.ConsentID, consent.StatusRevoked))

	_, err := s.store.LatestActive(ctx, "patient-1", "org-1", "treatment")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateStatusMissingReturnsNotFound() {
	err := s.store.UpdateStatus(context.Background(), "DEADBEEFDEADBEEF", consent.StatusRevoked)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByPatient() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Save(ctx, s.newRecord("patient-1", base)))
	s.Require().NoError(s.store.Save(ctx, s.newRecord("patient-1", base.Add(time.Minute))))
	s.Require().NoError(s.store.Save(ctx, s.newRecord("patient-2", base)))

	records, err := s.store.ListByPatient(ctx, "patient-1")
	s.Require().NoError(err)
	s.Len(records, 2)
}
