package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBTrail persists audit entries to a Postgres table. The table is created on
// construction if it does not exist; there are no foreign keys to the entities
// an entry references, so entries commit independently of the primary write.
type DBTrail struct {
	db *sql.DB
}

// NewDBTrail creates a database-backed audit trail
func NewDBTrail(db *sql.DB) (*DBTrail, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	trail := &DBTrail{db: db}
	if err := trail.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_log table: %w", err)
	}
	return trail, nil
}

func (t *DBTrail) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id VARCHAR(36) PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			actor_id BIGINT NOT NULL,
			action VARCHAR(64) NOT NULL,
			entity_type VARCHAR(32) NOT NULL,
			entity_id VARCHAR(255),
			description TEXT,
			before_state JSONB,
			after_state JSONB,
			metadata JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_log_actor_id ON audit_log(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
		CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);
	`

	_, err := t.db.Exec(query)
	return err
}

// Record appends one entry
func (t *DBTrail) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (id, ts, actor_id, action, entity_type, entity_id, description, before_state, after_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := t.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp,
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		nullString(entry.EntityID),
		nullString(entry.Description),
		nullRaw(entry.Before),
		nullRaw(entry.After),
		nullRaw(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// Close is a no-op: the trail does not own the database handle
func (t *DBTrail) Close() error {
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
