package sync

import (
	"context"
	"errors"

	"github.com/arborhq/arbor/pkg/hierarchy"
)

var (
	// ErrUpstreamUnavailable indicates the external platform could not be
	// reached or answered with a transient failure
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")

	// ErrNotFound indicates the external node does not exist upstream
	ErrNotFound = errors.New("external node not found")

	// ErrSyncInProgress indicates another run currently holds the
	// per-project lock
	ErrSyncInProgress = errors.New("synchronization already in progress")
)

// Child is one immediate child of an external node as reported by the
// upstream platform. ExternalID is in transport form (prefixed).
type Child struct {
	ExternalID string
	Type       hierarchy.ResourceType
	Name       string
}

// Provider enumerates a remote node's immediate children. It is owned by the
// external-API integration and consumed read-only here; implementations fail
// with ErrUpstreamUnavailable or ErrNotFound.
type Provider interface {
	ListChildren(ctx context.Context, externalParentID string) ([]Child, error)
}
