package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
)

func newVisibleCommand() *Command {
	cmd := &Command{
		Name:        "visible",
		Description: "List the external ids a user can see for a resource type",
		Flags:       flag.NewFlagSet("visible", flag.ExitOnError),
		Run:         runVisible,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("user", "", "User id")
	cmd.Flags.String("type", "project", "Resource type (project, folder, item)")
	cmd.Flags.Bool("admin", false, "Evaluate as an administrator")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runVisible(args []string) error {
	cmd := newVisibleCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	resourceType := hierarchy.ResourceType(cmd.Flags.Lookup("type").Value.String())
	admin := cmd.Flags.Lookup("admin").Value.String() == "true"
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	if !resourceType.Valid() {
		return fmt.Errorf("invalid resource type: %s", resourceType)
	}
	userID, err := parseID("user", cmd.Flags.Lookup("user").Value.String())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	set, err := rt.query.VisibleResources(ctx, grants.Principal{UserID: userID, Admin: admin}, resourceType)
	if err != nil {
		return fmt.Errorf("failed to compute visibility: %w", err)
	}

	if set.All {
		fmt.Println("all")
		return nil
	}
	for _, id := range set.ExternalIDs {
		fmt.Println(id)
	}
	rt.log.Debugf("%d visible %s(s) for user %d", len(set.ExternalIDs), resourceType, userID)
	return nil
}
