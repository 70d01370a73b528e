package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore appends audit entries to the audit_logs table. The table is
// insert-only; no code path updates or deletes rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	query := `
		INSERT INTO audit_logs (
			log_id, ts, user_id, action, resource_type,
			resource_id, patient_id, access_level, ip_address,
			success, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.LogID,
		entry.Timestamp,
		entry.UserID,
		string(entry.Action),
		entry.ResourceType,
		entry.ResourceID,
		entry.PatientID,
		entry.AccessLevel,
		nullable(entry.IPAddress),
		entry.Success,
		details,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string) ([]Entry, error) {
	query := selectEntries + ` WHERE patient_id = $1 ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *PostgresStore) ListByTimeRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	query := selectEntries + ` WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return collectEntries(rows)
}

const selectEntries = `
	SELECT log_id, ts, user_id, action, resource_type,
	       resource_id, patient_id, access_level, ip_address,
	       success, details
	FROM audit_logs`

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var ip sql.NullString
		var details []byte
		err := rows.Scan(
			&entry.LogID,
			&entry.Timestamp,
			&entry.UserID,
			&action,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.PatientID,
			&entry.AccessLevel,
			&ip,
			&entry.Success,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		entry.IPAddress = ip.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
