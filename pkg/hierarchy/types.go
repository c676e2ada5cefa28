package hierarchy

import (
	"time"
)

// ResourceType classifies a node in the mirrored tree
type ResourceType string

const (
	TypeProject ResourceType = "project"
	TypeFolder  ResourceType = "folder"
	TypeItem    ResourceType = "item"
)

// Valid reports whether the resource type is one of the known values
func (t ResourceType) Valid() bool {
	switch t {
	case TypeProject, TypeFolder, TypeItem:
		return true
	}
	return false
}

// Resource is a mirrored node of the external document hierarchy.
// ExternalID is always stored normalized (transport prefix stripped).
type Resource struct {
	ID         int64        `json:"id"`
	ExternalID string       `json:"external_id"`
	Type       ResourceType `json:"resource_type"`
	ParentID   *int64       `json:"parent_id,omitempty"`
	Name       string       `json:"name"`
	AccountID  *string      `json:"account_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	CreatedBy  int64        `json:"created_by"`
	UpdatedAt  time.Time    `json:"updated_at"`
	UpdatedBy  int64        `json:"updated_by"`
	DeletedAt  *time.Time   `json:"deleted_at,omitempty"`
}

// IsRoot reports whether the resource is a tree root (a project)
func (r *Resource) IsRoot() bool {
	return r.ParentID == nil
}

// Deleted reports whether the resource has been soft-deleted
func (r *Resource) Deleted() bool {
	return r.DeletedAt != nil
}
