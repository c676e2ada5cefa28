package hierarchy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a resource does not exist
var ErrNotFound = errors.New("resource not found")

// Store handles resource tree persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new resource store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ResolveParams describes a resource to resolve or create. ExternalID must
// already be normalized (see IDCodec).
type ResolveParams struct {
	Type       ResourceType
	ExternalID string
	ParentID   *int64
	Name       string
	AccountID  *string
	ActorID    int64
}

func (p ResolveParams) validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("invalid resource type %q", p.Type)
	}
	if p.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	// A root has no parent; only projects are roots.
	if (p.ParentID == nil) != (p.Type == TypeProject) {
		return fmt.Errorf("resource type %q incompatible with parent presence", p.Type)
	}
	return nil
}

// ResolveOrCreate inserts the resource if it does not exist yet and returns
// the stored row either way, with created=true only when this call inserted
// it. The insert is an atomic upsert on the (resource_type, external_id)
// uniqueness constraint: on conflict the existing row is returned unchanged,
// so a re-discovery never overwrites parent or name (first write wins).
func (s *Store) ResolveOrCreate(ctx context.Context, p ResolveParams) (*Resource, bool, error) {
	if err := p.validate(); err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO resources (external_id, resource_type, parent_id, name, account_id, created_at, created_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6, $7)
		ON CONFLICT (resource_type, external_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		p.ExternalID,
		p.Type,
		p.ParentID,
		p.Name,
		p.AccountID,
		now,
		p.ActorID,
	).Scan(&id)

	if err == sql.ErrNoRows {
		// Conflict: another caller won the race or the row already existed.
		existing, getErr := s.GetByExternalID(ctx, p.Type, p.ExternalID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing resource %q: %w", p.ExternalID, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create resource: %w", err)
	}

	created, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load created resource %d: %w", id, err)
	}
	return created, true, nil
}

// GetByID retrieves a resource by its internal id
func (s *Store) GetByID(ctx context.Context, id int64) (*Resource, error) {
	query := `
		SELECT id, external_id, resource_type, parent_id, name, account_id, created_at, created_by, updated_at, updated_by, deleted_at
		FROM resources
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByExternalID retrieves a resource by its normalized external id.
// The lookup is keyed on (resource_type, external_id), matching the store's
// uniqueness constraint.
func (s *Store) GetByExternalID(ctx context.Context, resourceType ResourceType, externalID string) (*Resource, error) {
	query := `
		SELECT id, external_id, resource_type, parent_id, name, account_id, created_at, created_by, updated_at, updated_by, deleted_at
		FROM resources
		WHERE resource_type = $1 AND external_id = $2
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, resourceType, externalID))
}

// ListChildren retrieves the direct, non-deleted children of a resource
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]Resource, error) {
	query := `
		SELECT id, external_id, resource_type, parent_id, name, account_id, created_at, created_by, updated_at, updated_by, deleted_at
		FROM resources
		WHERE parent_id = $1 AND deleted_at IS NULL
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *res)
	}

	return resources, rows.Err()
}

// SoftDelete marks a resource deleted. Descendants and their grants are left
// untouched: removal never cascades, so access on children cannot vanish as a
// side effect of deleting an ancestor.
func (s *Store) SoftDelete(ctx context.Context, id int64, actorID int64) error {
	query := `
		UPDATE resources
		SET deleted_at = $1, updated_at = $1, updated_by = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, time.Now(), actorID, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("resource %d: %w", id, ErrNotFound)
	}
	return nil
}

// Register explicitly creates a resource mirror, validating that the parent
// exists and can hold children of the requested type. Unlike ResolveOrCreate
// it rejects a parent of type item.
func (s *Store) Register(ctx context.Context, p ResolveParams) (*Resource, bool, error) {
	if err := p.validate(); err != nil {
		return nil, false, err
	}

	if p.ParentID != nil {
		parent, err := s.GetByID(ctx, *p.ParentID)
		if err != nil {
			return nil, false, fmt.Errorf("parent %d: %w", *p.ParentID, err)
		}
		if parent.Type == TypeItem {
			return nil, false, fmt.Errorf("parent %d is an item and cannot hold children", parent.ID)
		}
		if parent.Deleted() {
			return nil, false, fmt.Errorf("parent %d is deleted", parent.ID)
		}
	}

	return s.ResolveOrCreate(ctx, p)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanOne(row *sql.Row) (*Resource, error) {
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return res, nil
}

func scanResource(row rowScanner) (*Resource, error) {
	var res Resource
	var parentID sql.NullInt64
	var accountID sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&res.ID,
		&res.ExternalID,
		&res.Type,
		&parentID,
		&res.Name,
		&accountID,
		&res.CreatedAt,
		&res.CreatedBy,
		&res.UpdatedAt,
		&res.UpdatedBy,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		id := parentID.Int64
		res.ParentID = &id
	}
	if accountID.Valid {
		aid := accountID.String
		res.AccountID = &aid
	}
	if deletedAt.Valid {
		at := deletedAt.Time
		res.DeletedAt = &at
	}

	return &res, nil
}
