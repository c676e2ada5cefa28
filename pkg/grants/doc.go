// Package grants implements the two permission ledgers and the level catalog.
//
// # Overview
//
// Two independent grant models coexist over the mirrored resource tree:
//
// RoleGrant: (role, resource) presence-only, no level
// UserGrant: (user, resource) at a privilege level from the ordered catalog
//
// # Reconciliation modes
//
// Additive: GrantRole / GrantUser insert-if-absent and never touch an
// existing row. Hierarchy synchronization only ever uses this path, so a
// user's grant set is monotone under sync.
//
// Full replacement: ReplaceRoleResources / ReplaceUserResources make the
// grant set exactly equal to the target set inside one transaction, adding
// and removing as needed. These are the administrative "sync permissions for
// this principal" operations and the only paths that can shrink a set.
//
// The asymmetry between the two modes is deliberate and load-bearing.
//
// # Read side
//
// QueryService computes the exact-match visible set for a principal; there is
// no inheritance evaluation at read time. Results are cached briefly and
// invalidated by the ledger on mutation.
//
// # Audit
//
// Every successful ledger mutation emits a best-effort entry to the
// configured audit.Trail; failures are logged and swallowed.
package grants
