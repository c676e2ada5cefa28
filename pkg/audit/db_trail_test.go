package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBTrail(t *testing.T) {
	t.Run("creates table on construction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log").
			WillReturnResult(sqlmock.NewResult(0, 0))

		trail, err := NewDBTrail(db)
		require.NoError(t, err)
		assert.NotNil(t, trail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		_, err := NewDBTrail(nil)
		assert.Error(t, err)
	})
}

func TestDBTrailRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log").
		WillReturnResult(sqlmock.NewResult(0, 0))

	trail, err := NewDBTrail(db)
	require.NoError(t, err)

	entry := NewEntry(9, ActionUserGrant, EntityUserGrant, "131").
		WithMeta("level", "viewer")
	entry.After = json.RawMessage(`{"level_id":1}`)

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = trail.Record(context.Background(), entry)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBTrailRecordNilEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log").
		WillReturnResult(sqlmock.NewResult(0, 0))

	trail, err := NewDBTrail(db)
	require.NoError(t, err)

	assert.Error(t, trail.Record(context.Background(), nil))
}
