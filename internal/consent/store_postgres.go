package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"payerhub/pkg/platform/sentinel"
)

// PostgresStore persists consent records in the consents table. Records are
// inserted once and only their status field is ever updated.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO consents (
			consent_id, patient_id, organization_id, purpose,
			status, granted_at, expires_at, scope
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ConsentID,
		record.PatientID,
		record.OrganizationID,
		record.Purpose,
		string(record.Status),
		record.GrantedAt,
		record.ExpiresAt,
		pq.Array(record.Scope),
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, consentID string) (*Record, error) {
	query := `
		SELECT consent_id, patient_id, organization_id, purpose,
		       status, granted_at, expires_at, scope
		FROM consents WHERE consent_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, consentID))
}

func (s *PostgresStore) LatestActive(ctx context.Context, patientID, organizationID, purpose string) (*Record, error) {
	query := `
		SELECT consent_id, patient_id, organization_id, purpose,
		       status, granted_at, expires_at, scope
		FROM consents
		WHERE patient_id = $1 AND organization_id = $2 AND purpose = $3
		  AND status = 'active'
		ORDER BY granted_at DESC
		LIMIT 1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, patientID, organizationID, purpose))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, consentID string, status Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE consents SET status = $1 WHERE consent_id = $2`,
		string(status), consentID,
	)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	query := `
		SELECT consent_id, patient_id, organization_id, purpose,
		       status, granted_at, expires_at, scope
		FROM consents WHERE patient_id = $1
		ORDER BY granted_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var status string
	var expiresAt sql.NullTime
	err := row.Scan(
		&record.ConsentID,
		&record.PatientID,
		&record.OrganizationID,
		&record.Purpose,
		&status,
		&record.GrantedAt,
		&expiresAt,
		pq.Array(&record.Scope),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent: %w", err)
	}
	record.Status = Status(status)
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	return &record, nil
}
