package grants

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "rank"})
}

func TestCatalogByCode(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	catalog := NewCatalog(db)

	mock.ExpectQuery("SELECT id, code, rank FROM permission_levels").
		WithArgs("editor").
		WillReturnRows(levelRows().AddRow(int64(2), "editor", 20))

	level, err := catalog.ByCode(context.Background(), "editor")
	require.NoError(t, err)
	assert.Equal(t, int64(2), level.ID)
	assert.Equal(t, 20, level.Rank)

	// Second lookup is served from cache: no further query expected.
	cached, err := catalog.ByCode(context.Background(), "editor")
	require.NoError(t, err)
	assert.Equal(t, level.ID, cached.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogByCodeUnknown(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	catalog := NewCatalog(db)

	mock.ExpectQuery("SELECT id, code, rank FROM permission_levels").
		WithArgs("owner").
		WillReturnRows(levelRows())

	_, err := catalog.ByCode(context.Background(), "owner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogLowest(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	catalog := NewCatalog(db)

	mock.ExpectQuery("SELECT id, code, rank FROM permission_levels ORDER BY rank ASC LIMIT 1").
		WillReturnRows(levelRows().AddRow(int64(1), "viewer", 10))

	level, err := catalog.Lowest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "viewer", level.Code)

	// Cached.
	again, err := catalog.Lowest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, level.ID, again.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogLowestEmpty(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	catalog := NewCatalog(db)

	mock.ExpectQuery("SELECT id, code, rank FROM permission_levels ORDER BY rank ASC LIMIT 1").
		WillReturnRows(levelRows())

	_, err := catalog.Lowest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogList(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	catalog := NewCatalog(db)

	mock.ExpectQuery("SELECT id, code, rank FROM permission_levels ORDER BY rank ASC").
		WillReturnRows(levelRows().
			AddRow(int64(1), "viewer", 10).
			AddRow(int64(2), "editor", 20).
			AddRow(int64(3), "admin", 30))

	levels, err := catalog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, "viewer", levels[0].Code)
	assert.Equal(t, "admin", levels[2].Code)
}
