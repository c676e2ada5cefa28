package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
)

func newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ExitOnError),
		Run:         runMigrate,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runMigrate(args []string) error {
	cmd := newMigrateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	dbURL := cmd.Flags.Lookup("db").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	ctx := context.Background()
	rt, err := openRuntime(ctx, dbURL, verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.log.Info("Applying resource tree migrations")
	if err := hierarchy.ApplyMigrations(ctx, rt.db); err != nil {
		return fmt.Errorf("failed to apply resource tree migrations: %w", err)
	}

	rt.log.Info("Applying permission ledger migrations")
	if err := grants.ApplyMigrations(ctx, rt.db); err != nil {
		return fmt.Errorf("failed to apply permission ledger migrations: %w", err)
	}

	rt.log.Info("Migrations complete")
	return nil
}
