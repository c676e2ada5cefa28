package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/arborhq/arbor/pkg/sync"
)

func newSyncCommand() *Command {
	cmd := &Command{
		Name:        "sync",
		Description: "Synchronize a project hierarchy from the upstream platform",
		Flags:       flag.NewFlagSet("sync", flag.ExitOnError),
		Run:         runSync,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("upstream", "http://localhost:8080", "Upstream platform base URL")
	cmd.Flags.String("project", "", "External project id (prefixed or bare)")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Int64("parallel", 4, "Concurrent subtree workers")
	cmd.Flags.String("prefix", "b.", "External id prefix")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runSync(args []string) error {
	cmd := newSyncCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	project := cmd.Flags.Lookup("project").Value.String()
	upstream := cmd.Flags.Lookup("upstream").Value.String()
	prefix := cmd.Flags.Lookup("prefix").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	if project == "" {
		return fmt.Errorf("project is required")
	}
	actorID, err := parseID("actor", cmd.Flags.Lookup("actor").Value.String())
	if err != nil {
		return err
	}
	parallel, err := strconv.ParseInt(cmd.Flags.Lookup("parallel").Value.String(), 10, 64)
	if err != nil || parallel <= 0 {
		return fmt.Errorf("parallel must be a positive integer")
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	engine, err := sync.NewEngine(sync.EngineConfig{
		Resources:   rt.resources,
		Ledger:      rt.ledger,
		Catalog:     rt.catalog,
		Provider:    sync.NewHTTPProvider(upstream, nil),
		Trail:       rt.trail,
		Logger:      rt.svcLogger,
		IDPrefix:    prefix,
		MaxParallel: parallel,
	})
	if err != nil {
		return err
	}

	rt.log.Infof("Synchronizing project %s", project)
	result, err := engine.SyncProject(ctx, actorID, project)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	rt.log.WithFields(map[string]interface{}{
		"run_id":          result.RunID,
		"created":         result.Created,
		"granted":         result.Granted,
		"failed_subtrees": result.FailedSubtrees,
	}).Info("Synchronization finished")

	if result.FailedSubtrees > 0 {
		rt.log.Warnf("%d subtree(s) were skipped; re-run to converge", result.FailedSubtrees)
	}
	return nil
}
