// Package sync reconciles the internal resource mirror against the external
// platform hierarchy.
//
// A run walks one project tree breadth-first with bounded parallelism,
// resolving each external node into the mirror and granting the project's
// audience default access on every node it reaches. Runs are idempotent and
// carry no checkpoint state: any partial run can simply be repeated. Failures
// below a node abandon that subtree only; the run still completes and reports
// a summary.
package sync
