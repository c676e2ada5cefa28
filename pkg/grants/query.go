package grants

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arborhq/arbor/pkg/hierarchy"
	"github.com/arborhq/arbor/pkg/observability"
)

const (
	visibilityCacheSize = 4096
	visibilityCacheTTL  = 30 * time.Second
)

// VisibleSet is the result of a visibility query. When All is true the caller
// must not filter at all (administrator); ExternalIDs is meaningless then.
type VisibleSet struct {
	All         bool     `json:"all"`
	ExternalIDs []string `json:"external_ids,omitempty"`
}

// Contains reports whether the set includes the given normalized external id
func (v *VisibleSet) Contains(externalID string) bool {
	if v.All {
		return true
	}
	for _, id := range v.ExternalIDs {
		if id == externalID {
			return true
		}
	}
	return false
}

// QueryService is the read side of the permission ledger: it computes which
// resources a principal may see. The check is exact-match only; a grant on an
// ancestor never implies visibility of a descendant (inheritance is
// materialized physically by synchronization, not evaluated here).
type QueryService struct {
	store   *Store
	cache   *expirable.LRU[string, []string]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewQueryService creates a new permission query service. metrics may be nil.
func NewQueryService(store *Store, logger *observability.Logger, metrics *observability.Metrics) *QueryService {
	return &QueryService{
		store:   store,
		cache:   expirable.NewLRU[string, []string](visibilityCacheSize, nil, visibilityCacheTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// VisibleResources returns the set of resources of the given type the
// principal may see. Administrators see everything.
func (q *QueryService) VisibleResources(ctx context.Context, principal Principal, resourceType hierarchy.ResourceType) (*VisibleSet, error) {
	if principal.Admin {
		return &VisibleSet{All: true}, nil
	}
	if !resourceType.Valid() {
		return nil, fmt.Errorf("invalid resource type %q", resourceType)
	}

	key := cacheKey(principal.UserID, resourceType)
	if ids, ok := q.cache.Get(key); ok {
		q.countCache(true)
		return &VisibleSet{ExternalIDs: ids}, nil
	}
	q.countCache(false)

	ids, err := q.store.VisibleExternalIDs(ctx, principal.UserID, string(resourceType))
	if err != nil {
		return nil, err
	}

	q.cache.Add(key, ids)
	return &VisibleSet{ExternalIDs: ids}, nil
}

// InvalidateUser drops every cached visibility set for the user. Called by
// the ledger after any mutation of the user's grants.
func (q *QueryService) InvalidateUser(userID int64) {
	prefix := strconv.FormatInt(userID, 10) + "/"
	for _, key := range q.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			q.cache.Remove(key)
		}
	}
}

func (q *QueryService) countCache(hit bool) {
	if q.metrics == nil {
		return
	}
	if hit {
		q.metrics.CacheHitsTotal.WithLabelValues("visibility").Inc()
	} else {
		q.metrics.CacheMissesTotal.WithLabelValues("visibility").Inc()
	}
}

func cacheKey(userID int64, resourceType hierarchy.ResourceType) string {
	return strconv.FormatInt(userID, 10) + "/" + string(resourceType)
}
