package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all resource tree migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id BIGSERIAL PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					resource_type VARCHAR(20) NOT NULL CHECK (resource_type IN ('project', 'folder', 'item')),
					parent_id BIGINT REFERENCES resources(id),
					name VARCHAR(512) NOT NULL DEFAULT '',
					account_id VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_by BIGINT NOT NULL,
					deleted_at TIMESTAMP,
					UNIQUE(resource_type, external_id),
					CHECK ((parent_id IS NULL) = (resource_type = 'project'))
				);

				CREATE INDEX idx_resources_parent_id ON resources(parent_id);
				CREATE INDEX idx_resources_external_id ON resources(external_id);
				CREATE INDEX idx_resources_account_id ON resources(account_id);
			`,
		},
	}
}

// ApplyMigrations applies all pending resource tree migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS hierarchy_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM hierarchy_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO hierarchy_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
