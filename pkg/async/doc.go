// Package async provides safe goroutine primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// timeout enforcement and context cancellation.
//
// # Key Functions
//
// SafeGo: execute a function in a goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "audit record", func(ctx context.Context) error {
//		return trail.Record(ctx, entry)
//	})
//
// Detached: like SafeGo but detached from the parent's cancellation, for
// fire-and-forget work that should outlive the triggering request
//
// # Use Cases
//
// Best-effort audit emission from the permission ledger and the hierarchy
// synchronizer.
package async
