package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/godamri/helix-activity/database"
)

const activitySchema = `
CREATE TABLE IF NOT EXISTS audit_activity (
	id               TEXT PRIMARY KEY,
	event_name       TEXT        NOT NULL,
	event_time       TIMESTAMPTZ NOT NULL,
	transaction_id   TEXT,
	user_id          TEXT,
	run_as           TEXT,
	operation        JSONB       NOT NULL,
	object_id        TEXT,
	before_state     JSONB,
	after_state      JSONB,
	changed_fields   JSONB       NOT NULL,
	revision         TEXT,
	message          TEXT,
	password_changed BOOLEAN     NOT NULL,
	status           TEXT        NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_activity_object_idx ON audit_activity (object_id, event_time);
CREATE INDEX IF NOT EXISTS audit_activity_tx_idx ON audit_activity (transaction_id);
`

const insertActivity = `
INSERT INTO audit_activity (
	id, event_name, event_time, transaction_id, user_id, run_as, operation, object_id,
	before_state, after_state, changed_fields, revision, message, password_changed, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// PostgresStore appends records to the audit_activity table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table and indexes if they are missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, activitySchema); err != nil {
		return fmt.Errorf("audit: failed to create activity schema: %w", database.MapError(err))
	}
	return nil
}

func (p *PostgresStore) Write(ctx context.Context, rec Record) error {
	operation, err := json.Marshal(rec.Operation)
	if err != nil {
		return fmt.Errorf("audit: marshal operation failed: %w", err)
	}
	changed, err := json.Marshal(rec.ChangedFields)
	if err != nil {
		return fmt.Errorf("audit: marshal changed fields failed: %w", err)
	}

	_, err = p.db.ExecContext(ctx, insertActivity,
		rec.ID,
		rec.EventName,
		rec.Time().UTC(),
		nullable(rec.TransactionID),
		nullable(rec.UserID),
		nullable(rec.RunAs),
		operation,
		nullable(rec.ObjectID),
		jsonColumn(rec.Before),
		jsonColumn(rec.After),
		changed,
		nullableRef(rec.Revision),
		nullable(rec.Message),
		rec.PasswordChanged,
		string(rec.Status),
	)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

// Ping is used by the readiness probe.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullableRef keeps an empty revision distinct from a missing one.
func nullableRef(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// jsonColumn maps the null sentinel to SQL NULL.
func jsonColumn(v json.RawMessage) any {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return []byte(v)
}
