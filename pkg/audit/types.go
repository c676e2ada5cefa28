package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action is the category of audited operation
type Action string

const (
	// Resource tree actions
	ActionResourceCreate Action = "resource.create"
	ActionResourceDelete Action = "resource.delete"

	// Role ledger actions
	ActionRoleGrant   Action = "permission.role_grant"
	ActionRoleRevoke  Action = "permission.role_revoke"
	ActionRoleReplace Action = "permission.role_replace"

	// User ledger actions
	ActionUserGrant       Action = "permission.user_grant"
	ActionUserLevelChange Action = "permission.user_level_change"
	ActionUserRevoke      Action = "permission.user_revoke"
	ActionUserReplace     Action = "permission.user_replace"

	// Synchronization actions
	ActionSyncRun         Action = "sync.run"
	ActionSyncSubtreeFail Action = "sync.subtree_failed"
)

// EntityType is the kind of entity an entry references
type EntityType string

const (
	EntityResource  EntityType = "resource"
	EntityRoleGrant EntityType = "role_grant"
	EntityUserGrant EntityType = "user_grant"
	EntitySyncRun   EntityType = "sync_run"
)

// Entry is a single audit record. Entries reference entities by external or
// string id rather than by foreign key: an entry must be writable even when
// the referenced row's transaction has not committed visibly yet.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     int64             `json:"actor_id"`
	Action      Action            `json:"action"`
	EntityType  EntityType        `json:"entity_type"`
	EntityID    string            `json:"entity_id,omitempty"`
	Description string            `json:"description,omitempty"`
	Before      json.RawMessage   `json:"before,omitempty"`
	After       json.RawMessage   `json:"after,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewEntry creates an entry with id and timestamp populated
func NewEntry(actorID int64, action Action, entityType EntityType, entityID string) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
}

// WithMeta attaches one metadata key, allocating the map lazily
func (e *Entry) WithMeta(key, value string) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
