// Package audit provides the append-only trail of permission and
// synchronization actions.
//
// # Overview
//
// Every grant, revoke, replacement and sync run produces an Entry. Producers
// treat the trail as best-effort: Record failures are logged by the caller and
// never surface to the user-visible operation.
//
// # Sinks
//
// DBTrail: Postgres table, self-ensuring
// FileTrail: JSON lines on disk
// MultiTrail: fan-out to several sinks
// NopTrail: discard (auditing disabled)
//
// # Usage Example
//
//	trail, err := audit.NewDBTrail(db)
//	if err != nil { ... }
//	defer trail.Close()
//
//	entry := audit.NewEntry(actorID, audit.ActionUserGrant, audit.EntityUserGrant, grantID).
//		WithMeta("resource_id", strconv.FormatInt(resourceID, 10))
//	if err := trail.Record(ctx, entry); err != nil {
//		logger.WithError(err).Warn("audit record failed")
//	}
//
// Entries reference entities by external/string id, never by foreign key, so
// an entry can be written before the referenced row's transaction is visible.
package audit
