package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint violations
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// Store handles grant persistence for both ledgers
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertRoleGrant inserts a role grant if absent and returns the stored row.
// created is false when the pair was already granted; the existing row is
// returned unchanged.
func (s *Store) InsertRoleGrant(ctx context.Context, roleID, resourceID, actorID int64) (*RoleGrant, bool, error) {
	query := `
		INSERT INTO role_permissions (role_id, resource_id, granted_at, granted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, resource_id) DO NOTHING
		RETURNING id, granted_at
	`

	grant := RoleGrant{RoleID: roleID, ResourceID: resourceID, GrantedBy: actorID}
	err := s.db.QueryRowContext(ctx, query, roleID, resourceID, time.Now(), actorID).
		Scan(&grant.ID, &grant.GrantedAt)

	if err == sql.ErrNoRows {
		existing, getErr := s.getRoleGrantByPair(ctx, roleID, resourceID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("role grant (%d, %d): %w", roleID, resourceID, ErrConflict)
		}
		return nil, false, fmt.Errorf("failed to insert role grant: %w", err)
	}

	return &grant, true, nil
}

// GetRoleGrant retrieves a role grant by id
func (s *Store) GetRoleGrant(ctx context.Context, id int64) (*RoleGrant, error) {
	query := `
		SELECT id, role_id, resource_id, granted_at, granted_by
		FROM role_permissions
		WHERE id = $1
	`

	var grant RoleGrant
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&grant.ID,
		&grant.RoleID,
		&grant.ResourceID,
		&grant.GrantedAt,
		&grant.GrantedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role grant %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role grant: %w", err)
	}

	return &grant, nil
}

func (s *Store) getRoleGrantByPair(ctx context.Context, roleID, resourceID int64) (*RoleGrant, error) {
	query := `
		SELECT id, role_id, resource_id, granted_at, granted_by
		FROM role_permissions
		WHERE role_id = $1 AND resource_id = $2
	`

	var grant RoleGrant
	err := s.db.QueryRowContext(ctx, query, roleID, resourceID).Scan(
		&grant.ID,
		&grant.RoleID,
		&grant.ResourceID,
		&grant.GrantedAt,
		&grant.GrantedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role grant (%d, %d): %w", roleID, resourceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role grant: %w", err)
	}

	return &grant, nil
}

// DeleteRoleGrant removes a role grant by id
func (s *Store) DeleteRoleGrant(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role grant %d: %w", id, ErrNotFound)
	}
	return nil
}

// RoleResourceIDs returns the resource ids currently granted to a role
func (s *Store) RoleResourceIDs(ctx context.Context, roleID int64) ([]int64, error) {
	query := `SELECT resource_id FROM role_permissions WHERE role_id = $1 ORDER BY resource_id ASC`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role resources: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ReplaceRoleGrants reconciles a role's grant set to exactly the target set:
// grants absent from the target are deleted, grants missing from the current
// set are inserted. Runs in one transaction so no caller observes a state
// with neither set fully applied. Returns the number of grants inserted.
func (s *Store) ReplaceRoleGrants(ctx context.Context, roleID int64, resourceIDs []int64, actorID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	target := pq.Array(resourceIDs)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND resource_id <> ALL($2::bigint[])`,
		roleID, target,
	); err != nil {
		return 0, fmt.Errorf("failed to delete stale role grants: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, resource_id, granted_at, granted_by)
		SELECT $1, rid, $3, $4 FROM unnest($2::bigint[]) AS rid
		ON CONFLICT (role_id, resource_id) DO NOTHING
	`, roleID, target, time.Now(), actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert role grants: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit role grant replacement: %w", err)
	}

	return int(inserted), nil
}

// InsertUserGrant inserts a user grant if absent and returns the stored row.
// When the (user, resource) pair is already granted, the existing row is
// returned unchanged: in particular its level is not overwritten. Changing a
// level is the separate UpdateUserGrantLevel operation.
func (s *Store) InsertUserGrant(ctx context.Context, userID, resourceID, levelID, actorID int64) (*UserGrant, bool, error) {
	query := `
		INSERT INTO user_permissions (user_id, resource_id, permission_level_id, granted_at, granted_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $4, $5)
		ON CONFLICT (user_id, resource_id) DO NOTHING
		RETURNING id, granted_at, updated_at
	`

	grant := UserGrant{
		UserID:     userID,
		ResourceID: resourceID,
		LevelID:    levelID,
		GrantedBy:  actorID,
		UpdatedBy:  actorID,
	}
	err := s.db.QueryRowContext(ctx, query, userID, resourceID, levelID, time.Now(), actorID).
		Scan(&grant.ID, &grant.GrantedAt, &grant.UpdatedAt)

	if err == sql.ErrNoRows {
		existing, getErr := s.getUserGrantByPair(ctx, userID, resourceID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("user grant (%d, %d): %w", userID, resourceID, ErrConflict)
		}
		return nil, false, fmt.Errorf("failed to insert user grant: %w", err)
	}

	return &grant, true, nil
}

// GetUserGrant retrieves a user grant by id
func (s *Store) GetUserGrant(ctx context.Context, id int64) (*UserGrant, error) {
	query := `
		SELECT id, user_id, resource_id, permission_level_id, granted_at, granted_by, updated_at, updated_by
		FROM user_permissions
		WHERE id = $1
	`
	return s.scanUserGrant(s.db.QueryRowContext(ctx, query, id), id)
}

func (s *Store) getUserGrantByPair(ctx context.Context, userID, resourceID int64) (*UserGrant, error) {
	query := `
		SELECT id, user_id, resource_id, permission_level_id, granted_at, granted_by, updated_at, updated_by
		FROM user_permissions
		WHERE user_id = $1 AND resource_id = $2
	`

	var grant UserGrant
	err := s.db.QueryRowContext(ctx, query, userID, resourceID).Scan(
		&grant.ID,
		&grant.UserID,
		&grant.ResourceID,
		&grant.LevelID,
		&grant.GrantedAt,
		&grant.GrantedBy,
		&grant.UpdatedAt,
		&grant.UpdatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user grant (%d, %d): %w", userID, resourceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user grant: %w", err)
	}

	return &grant, nil
}

func (s *Store) scanUserGrant(row *sql.Row, id int64) (*UserGrant, error) {
	var grant UserGrant
	err := row.Scan(
		&grant.ID,
		&grant.UserID,
		&grant.ResourceID,
		&grant.LevelID,
		&grant.GrantedAt,
		&grant.GrantedBy,
		&grant.UpdatedAt,
		&grant.UpdatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user grant %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user grant: %w", err)
	}
	return &grant, nil
}

// UpdateUserGrantLevel changes the level of an existing user grant
func (s *Store) UpdateUserGrantLevel(ctx context.Context, id, levelID, actorID int64) error {
	query := `
		UPDATE user_permissions
		SET permission_level_id = $1, updated_at = $2, updated_by = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, levelID, time.Now(), actorID, id)
	if err != nil {
		return fmt.Errorf("failed to update user grant level: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user grant %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteUserGrant removes a user grant by id
func (s *Store) DeleteUserGrant(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user grant %d: %w", id, ErrNotFound)
	}
	return nil
}

// UserIDsForResource returns the distinct user ids granted on a resource.
// The synchronizer reads this as the audience to propagate down the tree.
func (s *Store) UserIDsForResource(ctx context.Context, resourceID int64) ([]int64, error) {
	query := `SELECT user_id FROM user_permissions WHERE resource_id = $1 ORDER BY user_id ASC`

	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UserResourceIDs returns the resource ids currently granted to a user
func (s *Store) UserResourceIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT resource_id FROM user_permissions WHERE user_id = $1 ORDER BY resource_id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user resources: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ReplaceUserGrants reconciles a user's grant set to exactly the target set,
// with the same transactional semantics as ReplaceRoleGrants. Inserted rows
// use the supplied level; existing rows keep theirs.
func (s *Store) ReplaceUserGrants(ctx context.Context, userID int64, resourceIDs []int64, levelID, actorID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	target := pq.Array(resourceIDs)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_permissions WHERE user_id = $1 AND resource_id <> ALL($2::bigint[])`,
		userID, target,
	); err != nil {
		return 0, fmt.Errorf("failed to delete stale user grants: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO user_permissions (user_id, resource_id, permission_level_id, granted_at, granted_by, updated_at, updated_by)
		SELECT $1, rid, $3, $4, $5, $4, $5 FROM unnest($2::bigint[]) AS rid
		ON CONFLICT (user_id, resource_id) DO NOTHING
	`, userID, target, levelID, time.Now(), actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user grants: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit user grant replacement: %w", err)
	}

	return int(inserted), nil
}

// VisibleExternalIDs returns the normalized external ids of non-deleted
// resources of the given type on which the user holds a grant. This is an
// exact-match check: ancestor grants do not imply descendant rows.
func (s *Store) VisibleExternalIDs(ctx context.Context, userID int64, resourceType string) ([]string, error) {
	query := `
		SELECT r.external_id
		FROM user_permissions up
		JOIN resources r ON r.id = up.resource_id
		WHERE up.user_id = $1 AND r.resource_type = $2 AND r.deleted_at IS NULL
		ORDER BY r.external_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible resources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
