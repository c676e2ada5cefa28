package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyTrail struct {
	entries   []*Entry
	recordErr error
	closeErr  error
	closed    bool
}

func (s *spyTrail) Record(ctx context.Context, entry *Entry) error {
	s.entries = append(s.entries, entry)
	return s.recordErr
}

func (s *spyTrail) Close() error {
	s.closed = true
	return s.closeErr
}

func TestMultiTrailFansOut(t *testing.T) {
	first := &spyTrail{}
	second := &spyTrail{}
	multi := NewMultiTrail(first, second)

	entry := NewEntry(9, ActionRoleGrant, EntityRoleGrant, "55")
	require.NoError(t, multi.Record(context.Background(), entry))

	assert.Len(t, first.entries, 1)
	assert.Len(t, second.entries, 1)
}

func TestMultiTrailRecordsAllDespiteError(t *testing.T) {
	broken := &spyTrail{recordErr: fmt.Errorf("sink unavailable")}
	healthy := &spyTrail{}
	multi := NewMultiTrail(broken, healthy)

	err := multi.Record(context.Background(), NewEntry(9, ActionRoleGrant, EntityRoleGrant, "55"))
	assert.EqualError(t, err, "sink unavailable")
	assert.Len(t, healthy.entries, 1)
}

func TestMultiTrailClose(t *testing.T) {
	first := &spyTrail{closeErr: fmt.Errorf("flush failed")}
	second := &spyTrail{}
	multi := NewMultiTrail(first, second)

	err := multi.Close()
	assert.EqualError(t, err, "flush failed")
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry(9, ActionUserRevoke, EntityUserGrant, "131")

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, int64(9), entry.ActorID)
	assert.Equal(t, ActionUserRevoke, entry.Action)
	assert.Nil(t, entry.Metadata)

	entry.WithMeta("reason", "offboarding").WithMeta("ticket", "OPS-42")
	assert.Equal(t, "offboarding", entry.Metadata["reason"])
	assert.Equal(t, "OPS-42", entry.Metadata["ticket"])
}
