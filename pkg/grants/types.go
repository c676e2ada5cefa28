package grants

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a grant or level does not exist
	ErrNotFound = errors.New("grant not found")
	// ErrConflict is returned when a duplicate grant is attempted through a
	// non-idempotent path
	ErrConflict = errors.New("grant already exists")
)

// Level is one named privilege level in the ordered catalog. Levels form a
// total order by Rank; the lowest rank is the default grant baseline.
type Level struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Rank int    `json:"rank"`
}

// RoleGrant is a presence-only grant of a resource to a role
type RoleGrant struct {
	ID         int64     `json:"id"`
	RoleID     int64     `json:"role_id"`
	ResourceID int64     `json:"resource_id"`
	GrantedAt  time.Time `json:"granted_at"`
	GrantedBy  int64     `json:"granted_by"`
}

// UserGrant associates a user with a resource at a privilege level
type UserGrant struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ResourceID int64     `json:"resource_id"`
	LevelID    int64     `json:"permission_level_id"`
	GrantedAt  time.Time `json:"granted_at"`
	GrantedBy  int64     `json:"granted_by"`
	UpdatedAt  time.Time `json:"updated_at"`
	UpdatedBy  int64     `json:"updated_by"`
}

// Principal identifies the caller of a visibility query
type Principal struct {
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

// AssignmentKind distinguishes the two assignment shapes accepted at the
// boundary. Callers resolve the shape exactly once; everything below works on
// the flattened user list.
type AssignmentKind int

const (
	SingleAssignment AssignmentKind = iota + 1
	MultiAssignment
)

// Assignment is the tagged form of a single-user or multi-user assignment
// request.
type Assignment struct {
	Kind    AssignmentKind
	UserID  int64
	UserIDs []int64
}

// ParseAssignment resolves the legacy single-user shape and the multi-user
// shape into one tagged value. Exactly one of the two must be provided.
func ParseAssignment(single *int64, multi []int64) (Assignment, error) {
	switch {
	case single != nil && len(multi) > 0:
		return Assignment{}, fmt.Errorf("assignment cannot be both single-user and multi-user")
	case single != nil:
		return Assignment{Kind: SingleAssignment, UserID: *single}, nil
	case len(multi) > 0:
		return Assignment{Kind: MultiAssignment, UserIDs: multi}, nil
	default:
		return Assignment{}, fmt.Errorf("assignment requires at least one user")
	}
}

// Users returns the flattened user list regardless of assignment kind
func (a Assignment) Users() []int64 {
	if a.Kind == SingleAssignment {
		return []int64{a.UserID}
	}
	return a.UserIDs
}
