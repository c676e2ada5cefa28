// Package cli provides the Arbor command-line interface for administration.
//
// # Overview
//
// This package implements the `arbor` CLI tool for operators to run hierarchy
// synchronizations, manage role and user grants, inspect visibility, and apply
// database migrations from the terminal.
//
// # Commands
//
// migrate: Apply database migrations
//
//	arbor migrate --db postgres://localhost/arbor
//
// sync: Synchronize a project hierarchy from the upstream platform
//
//	arbor sync \
//		--project b.proj-1 \
//		--actor 42 \
//		--upstream https://platform.example.com/api \
//		--parallel 8
//
// register: Register a single folder or item under an existing parent
//
//	arbor register \
//		--type folder \
//		--external-id b.folder-9 \
//		--parent 17 \
//		--name "Design" \
//		--actor 42
//
// grant-user / set-level / revoke-user / replace-user: manage leveled user
// grants
//
//	arbor grant-user --user 7 --resource 17 --level editor --actor 42
//	arbor set-level --grant 131 --level admin --actor 42
//	arbor revoke-user --grant 131 --actor 42
//	arbor replace-user --user 7 --resources 17,18,19 --actor 42
//
// grant-role / revoke-role / replace-role: manage presence-only role grants
//
//	arbor grant-role --role 3 --resource 17 --actor 42
//	arbor revoke-role --grant 55 --actor 42
//	arbor replace-role --role 3 --resources 17,18 --actor 42
//
// visible: List the external ids a user can see for a resource type
//
//	arbor visible --user 7 --type folder
//
// All commands read the database URL from --db or ARBOR_POSTGRES_URL.
//
// # Related Packages
//
//   - pkg/sync: Hierarchy synchronization engine
//   - pkg/grants: Permission ledger and visibility queries
//   - pkg/hierarchy: Mirrored resource tree
package cli
