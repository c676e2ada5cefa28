package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	catalogCacheSize = 64
	catalogCacheTTL  = 5 * time.Minute

	lowestCacheKey = "\x00lowest"
)

// Catalog is the read-only lookup over the ordered permission level table.
// Levels are reference data seeded by migrations, so lookups are cached
// in-process with a short TTL.
type Catalog struct {
	db    *sql.DB
	cache *expirable.LRU[string, Level]
}

// NewCatalog creates a new permission level catalog
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		db:    db,
		cache: expirable.NewLRU[string, Level](catalogCacheSize, nil, catalogCacheTTL),
	}
}

// ByCode retrieves a level by its unique code
func (c *Catalog) ByCode(ctx context.Context, code string) (*Level, error) {
	if cached, ok := c.cache.Get(code); ok {
		return &cached, nil
	}

	query := `SELECT id, code, rank FROM permission_levels WHERE code = $1`

	var level Level
	err := c.db.QueryRowContext(ctx, query, code).Scan(&level.ID, &level.Code, &level.Rank)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("level %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get level: %w", err)
	}

	c.cache.Add(code, level)
	return &level, nil
}

// Lowest returns the level with the lowest rank, used as the default grant
// baseline during synchronization
func (c *Catalog) Lowest(ctx context.Context) (*Level, error) {
	if cached, ok := c.cache.Get(lowestCacheKey); ok {
		return &cached, nil
	}

	query := `SELECT id, code, rank FROM permission_levels ORDER BY rank ASC LIMIT 1`

	var level Level
	err := c.db.QueryRowContext(ctx, query).Scan(&level.ID, &level.Code, &level.Rank)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission level catalog is empty: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lowest level: %w", err)
	}

	c.cache.Add(lowestCacheKey, level)
	return &level, nil
}

// List returns all levels ordered by rank
func (c *Catalog) List(ctx context.Context) ([]Level, error) {
	query := `SELECT id, code, rank FROM permission_levels ORDER BY rank ASC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var level Level
		if err := rows.Scan(&level.ID, &level.Code, &level.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		levels = append(levels, level)
	}

	return levels, rows.Err()
}
