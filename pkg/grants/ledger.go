package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/arborhq/arbor/pkg/async"
	"github.com/arborhq/arbor/pkg/audit"
	"github.com/arborhq/arbor/pkg/observability"
)

const auditTimeout = 10 * time.Second

// Ledger is the mutation surface over both grant tables. All operations are
// independently idempotent where the underlying store is, and every
// successful mutation emits a best-effort audit entry: audit failures are
// logged and swallowed, never returned to the caller.
type Ledger struct {
	store   *Store
	catalog *Catalog
	trail   audit.Trail
	logger  *observability.Logger
	query   *QueryService
}

// NewLedger creates a new permission ledger. trail may be a NopTrail and
// query may be nil when no visibility cache needs invalidating.
func NewLedger(store *Store, catalog *Catalog, trail audit.Trail, logger *observability.Logger, query *QueryService) *Ledger {
	if trail == nil {
		trail = audit.NopTrail{}
	}
	return &Ledger{
		store:   store,
		catalog: catalog,
		trail:   trail,
		logger:  logger,
		query:   query,
	}
}

// GrantRole grants a resource to a role. A no-op when the grant already
// exists; never errors on a duplicate.
func (l *Ledger) GrantRole(ctx context.Context, roleID, resourceID, actorID int64) (*RoleGrant, error) {
	grant, created, err := l.store.InsertRoleGrant(ctx, roleID, resourceID, actorID)
	if err != nil {
		return nil, err
	}

	if created {
		entry := audit.NewEntry(actorID, audit.ActionRoleGrant, audit.EntityRoleGrant, strconv.FormatInt(grant.ID, 10)).
			WithMeta("role_id", strconv.FormatInt(roleID, 10)).
			WithMeta("resource_id", strconv.FormatInt(resourceID, 10))
		l.record(ctx, entry)
	}

	return grant, nil
}

// RevokeRole removes a role grant by id
func (l *Ledger) RevokeRole(ctx context.Context, grantID, actorID int64) error {
	grant, err := l.store.GetRoleGrant(ctx, grantID)
	if err != nil {
		return err
	}

	if err := l.store.DeleteRoleGrant(ctx, grantID); err != nil {
		return err
	}

	entry := audit.NewEntry(actorID, audit.ActionRoleRevoke, audit.EntityRoleGrant, strconv.FormatInt(grantID, 10))
	entry.Before = marshalState(grant)
	l.record(ctx, entry)

	return nil
}

// ReplaceRoleResources reconciles the role's grant set to exactly the target
// set in one transaction. Returns the number of grants actually inserted.
func (l *Ledger) ReplaceRoleResources(ctx context.Context, roleID int64, resourceIDs []int64, actorID int64) (int, error) {
	before, err := l.store.RoleResourceIDs(ctx, roleID)
	if err != nil {
		return 0, err
	}

	inserted, err := l.store.ReplaceRoleGrants(ctx, roleID, resourceIDs, actorID)
	if err != nil {
		return 0, err
	}

	entry := audit.NewEntry(actorID, audit.ActionRoleReplace, audit.EntityRoleGrant, strconv.FormatInt(roleID, 10)).
		WithMeta("inserted", strconv.Itoa(inserted))
	entry.Before = marshalState(before)
	entry.After = marshalState(resourceIDs)
	l.record(ctx, entry)

	return inserted, nil
}

// GrantUser ensures the user holds a grant on the resource. When a grant
// already exists it is left completely unchanged, including its level: a bulk
// grant never silently rewrites levels. created reports whether this call
// inserted the row.
func (l *Ledger) GrantUser(ctx context.Context, userID, resourceID, levelID, actorID int64) (*UserGrant, bool, error) {
	grant, created, err := l.store.InsertUserGrant(ctx, userID, resourceID, levelID, actorID)
	if err != nil {
		return nil, false, err
	}

	if created {
		entry := audit.NewEntry(actorID, audit.ActionUserGrant, audit.EntityUserGrant, strconv.FormatInt(grant.ID, 10)).
			WithMeta("user_id", strconv.FormatInt(userID, 10)).
			WithMeta("resource_id", strconv.FormatInt(resourceID, 10)).
			WithMeta("level_id", strconv.FormatInt(levelID, 10))
		l.record(ctx, entry)
		l.invalidate(userID)
	}

	return grant, created, nil
}

// SetUserLevel changes the level of an existing user grant; errors with
// ErrNotFound when the grant does not exist
func (l *Ledger) SetUserLevel(ctx context.Context, grantID, levelID, actorID int64) error {
	before, err := l.store.GetUserGrant(ctx, grantID)
	if err != nil {
		return err
	}

	if err := l.store.UpdateUserGrantLevel(ctx, grantID, levelID, actorID); err != nil {
		return err
	}

	entry := audit.NewEntry(actorID, audit.ActionUserLevelChange, audit.EntityUserGrant, strconv.FormatInt(grantID, 10)).
		WithMeta("level_id", strconv.FormatInt(levelID, 10))
	entry.Before = marshalState(before)
	l.record(ctx, entry)
	l.invalidate(before.UserID)

	return nil
}

// RevokeUser removes a user grant by id
func (l *Ledger) RevokeUser(ctx context.Context, grantID, actorID int64) error {
	grant, err := l.store.GetUserGrant(ctx, grantID)
	if err != nil {
		return err
	}

	if err := l.store.DeleteUserGrant(ctx, grantID); err != nil {
		return err
	}

	entry := audit.NewEntry(actorID, audit.ActionUserRevoke, audit.EntityUserGrant, strconv.FormatInt(grantID, 10))
	entry.Before = marshalState(grant)
	l.record(ctx, entry)
	l.invalidate(grant.UserID)

	return nil
}

// ReplaceUserResources reconciles the user's grant set to exactly the target
// set; inserted rows default to the catalog's lowest level. This is the only
// sanctioned path that can shrink a user's grant set.
func (l *Ledger) ReplaceUserResources(ctx context.Context, userID int64, resourceIDs []int64, actorID int64) (int, error) {
	lowest, err := l.catalog.Lowest(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve default level: %w", err)
	}

	before, err := l.store.UserResourceIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	inserted, err := l.store.ReplaceUserGrants(ctx, userID, resourceIDs, lowest.ID, actorID)
	if err != nil {
		return 0, err
	}

	entry := audit.NewEntry(actorID, audit.ActionUserReplace, audit.EntityUserGrant, strconv.FormatInt(userID, 10)).
		WithMeta("inserted", strconv.Itoa(inserted)).
		WithMeta("default_level", lowest.Code)
	entry.Before = marshalState(before)
	entry.After = marshalState(resourceIDs)
	l.record(ctx, entry)
	l.invalidate(userID)

	return inserted, nil
}

// AssignUsers grants every user of the assignment on the resource, additively.
// The assignment shape (single vs multi user) was resolved at the boundary.
func (l *Ledger) AssignUsers(ctx context.Context, assignment Assignment, resourceID, levelID, actorID int64) (int, error) {
	created := 0
	for _, userID := range assignment.Users() {
		_, wasCreated, err := l.GrantUser(ctx, userID, resourceID, levelID, actorID)
		if err != nil {
			return created, fmt.Errorf("failed to assign user %d: %w", userID, err)
		}
		if wasCreated {
			created++
		}
	}
	return created, nil
}

// UserIDsForResource returns the audience currently granted on a resource
func (l *Ledger) UserIDsForResource(ctx context.Context, resourceID int64) ([]int64, error) {
	return l.store.UserIDsForResource(ctx, resourceID)
}

// record emits an audit entry without blocking or failing the caller
func (l *Ledger) record(ctx context.Context, entry *audit.Entry) {
	trail := l.trail
	logger := l.logger
	async.Detached(ctx, auditTimeout, "ledger audit record", func(ctx context.Context) error {
		if err := trail.Record(ctx, entry); err != nil {
			if logger != nil {
				logger.WithError(err).WithField("action", string(entry.Action)).Warn("audit record failed")
			}
			// Swallowed: audit is best-effort.
		}
		return nil
	})
}

func (l *Ledger) invalidate(userID int64) {
	if l.query != nil {
		l.query.InvalidateUser(userID)
	}
}

func marshalState(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
