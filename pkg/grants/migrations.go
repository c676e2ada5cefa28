package grants

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

// GetMigrations returns all grant ledger migrations. The resources table from
// pkg/hierarchy must exist first.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permission_levels table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_levels (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(64) NOT NULL UNIQUE,
					rank INT NOT NULL UNIQUE
				);
			`,
		},
		{
			Version:     2,
			Description: "Seed default permission levels",
			SQL: `
				INSERT INTO permission_levels (code, rank) VALUES
					('viewer', 10),
					('editor', 20),
					('admin', 30)
				ON CONFLICT (code) DO NOTHING;
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL,
					resource_id BIGINT NOT NULL REFERENCES resources(id),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					granted_by BIGINT NOT NULL,
					UNIQUE(role_id, resource_id)
				);

				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
				CREATE INDEX idx_role_permissions_resource_id ON role_permissions(resource_id);
			`,
		},
		{
			Version:     4,
			Description: "Create user_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					resource_id BIGINT NOT NULL REFERENCES resources(id),
					permission_level_id BIGINT NOT NULL REFERENCES permission_levels(id),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					granted_by BIGINT NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_by BIGINT NOT NULL,
					UNIQUE(user_id, resource_id)
				);

				CREATE INDEX idx_user_permissions_user_id ON user_permissions(user_id);
				CREATE INDEX idx_user_permissions_resource_id ON user_permissions(resource_id);
			`,
		},
	}
}

// ApplyMigrations applies all pending grant ledger migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grants_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM grants_migrations")
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
			"INSERT INTO grants_migrations (version, description) VALUES ($1, $2)",
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
