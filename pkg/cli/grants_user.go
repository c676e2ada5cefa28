package cli

import (
	"context"
	"flag"
	"fmt"
)

func newGrantUserCommand() *Command {
	cmd := &Command{
		Name:        "grant-user",
		Description: "Grant a user access to a resource",
		Flags:       flag.NewFlagSet("grant-user", flag.ExitOnError),
		Run:         runGrantUser,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("user", "", "User id")
	cmd.Flags.String("resource", "", "Internal resource id")
	cmd.Flags.String("level", "", "Permission level code (defaults to the lowest)")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runGrantUser(args []string) error {
	cmd := newGrantUserCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	levelCode := cmd.Flags.Lookup("level").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	userID, err := parseID("user", cmd.Flags.Lookup("user").Value.String())
	if err != nil {
		return err
	}
	resourceID, err := parseID("resource", cmd.Flags.Lookup("resource").Value.String())
	if err != nil {
		return err
	}
	actorID, err := parseID("actor", cmd.Flags.Lookup("actor").Value.String())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	level, err := resolveLevel(ctx, rt, levelCode)
	if err != nil {
		return err
	}

	grant, created, err := rt.ledger.GrantUser(ctx, userID, resourceID, level.ID, actorID)
	if err != nil {
		return fmt.Errorf("failed to grant user: %w", err)
	}

	if created {
		rt.log.Infof("Granted user %d on resource %d at level %s (grant %d)", userID, resourceID, level.Code, grant.ID)
	} else {
		rt.log.Infof("User %d already holds grant %d on resource %d; level unchanged", userID, grant.ID, resourceID)
	}
	return nil
}

func newSetLevelCommand() *Command {
	cmd := &Command{
		Name:        "set-level",
		Description: "Change the level of an existing user grant",
		Flags:       flag.NewFlagSet("set-level", flag.ExitOnError),
		Run:         runSetLevel,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("grant", "", "User grant id")
	cmd.Flags.String("level", "", "Permission level code")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runSetLevel(args []string) error {
	cmd := newSetLevelCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	levelCode := cmd.Flags.Lookup("level").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	if levelCode == "" {
		return fmt.Errorf("level is required")
	}
	grantID, err := parseID("grant", cmd.Flags.Lookup("grant").Value.String())
	if err != nil {
		return err
	}
	actorID, err := parseID("actor", cmd.Flags.Lookup("actor").Value.String())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	level, err := rt.catalog.ByCode(ctx, levelCode)
	if err != nil {
		return fmt.Errorf("unknown level %q: %w", levelCode, err)
	}

	if err := rt.ledger.SetUserLevel(ctx, grantID, level.ID, actorID); err != nil {
		return fmt.Errorf("failed to set level: %w", err)
	}

	rt.log.Infof("Grant %d set to level %s", grantID, level.Code)
	return nil
}

func newRevokeUserCommand() *Command {
	cmd := &Command{
		Name:        "revoke-user",
		Description: "Revoke a user grant",
		Flags:       flag.NewFlagSet("revoke-user", flag.ExitOnError),
		Run:         runRevokeUser,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("grant", "", "User grant id")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runRevokeUser(args []string) error {
	cmd := newRevokeUserCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	grantID, err := parseID("grant", cmd.Flags.Lookup("grant").Value.String())
	if err != nil {
		return err
	}
	actorID, err := parseID("actor", cmd.Flags.Lookup("actor").Value.String())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.ledger.RevokeUser(ctx, grantID, actorID); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	rt.log.Infof("Revoked user grant %d", grantID)
	return nil
}

func newReplaceUserCommand() *Command {
	cmd := &Command{
		Name:        "replace-user",
		Description: "Replace a user's full resource set",
		Flags:       flag.NewFlagSet("replace-user", flag.ExitOnError),
		Run:         runReplaceUser,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("user", "", "User id")
	cmd.Flags.String("resources", "", "Comma-separated internal resource ids (empty revokes everything)")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runReplaceUser(args []string) error {
	cmd := newReplaceUserCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	userID, err := parseID("user", cmd.Flags.Lookup("user").Value.String())
	if err != nil {
		return err
	}
	actorID, err := parseID("actor", cmd.Flags.Lookup("actor").Value.String())
	if err != nil {
		return err
	}
	resourceIDs, err := parseIDList("resources", cmd.Flags.Lookup("resources").Value.String())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cmd.Flags.Lookup("db").Value.String(), verbose)
	if err != nil {
		return err
	}
	defer rt.close()

	added, err := rt.ledger.ReplaceUserResources(ctx, userID, resourceIDs, actorID)
	if err != nil {
		return fmt.Errorf("failed to replace user resources: %w", err)
	}

	rt.log.Infof("User %d now holds %d resource(s); %d newly granted", userID, len(resourceIDs), added)
	return nil
}

// resolveLevel looks up a level by code, falling back to the lowest-ranked
// level when code is empty
func resolveLevel(ctx context.Context, rt *runtime, code string) (levelRef, error) {
	if code == "" {
		level, err := rt.catalog.Lowest(ctx)
		if err != nil {
			return levelRef{}, fmt.Errorf("failed to resolve default level: %w", err)
		}
		return levelRef{ID: level.ID, Code: level.Code}, nil
	}
	level, err := rt.catalog.ByCode(ctx, code)
	if err != nil {
		return levelRef{}, fmt.Errorf("unknown level %q: %w", code, err)
	}
	return levelRef{ID: level.ID, Code: level.Code}, nil
}

type levelRef struct {
	ID   int64
	Code string
}
