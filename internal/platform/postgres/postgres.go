package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to PostgreSQL using the pgx stdlib driver and verifies the
// connection before returning.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// schema holds the DDL for the consent and audit tables. Consents are never
// deleted and audit rows are never updated; both constraints are enforced at
// the application layer.
const schema = `
CREATE TABLE IF NOT EXISTS consents (
	consent_id      VARCHAR(16) PRIMARY KEY,
	patient_id      VARCHAR(50) NOT NULL,
	organization_id VARCHAR(50) NOT NULL,
	purpose         VARCHAR(100) NOT NULL,
	status          VARCHAR(20) NOT NULL,
	granted_at      TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ,
	scope           TEXT[] NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consents_triple ON consents (patient_id, organization_id, purpose);
CREATE INDEX IF NOT EXISTS idx_consents_status ON consents (status);

CREATE TABLE IF NOT EXISTS audit_logs (
	id            BIGSERIAL PRIMARY KEY,
	log_id        VARCHAR(16) NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	user_id       VARCHAR(50) NOT NULL,
	action        VARCHAR(50) NOT NULL,
	resource_type VARCHAR(50) NOT NULL,
	resource_id   VARCHAR(100) NOT NULL,
	patient_id    VARCHAR(50) NOT NULL,
	access_level  VARCHAR(20) NOT NULL,
	ip_address    VARCHAR(45),
	success       BOOLEAN NOT NULL,
	details       JSONB
);
CREATE INDEX IF NOT EXISTS idx_audit_patient ON audit_logs (patient_id);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_logs (ts);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_logs (user_id);
`

// EnsureSchema creates the tables this service owns if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
