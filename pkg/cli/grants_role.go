package cli

import (
	"context"
	"flag"
	"fmt"
)

func newGrantRoleCommand() *Command {
	cmd := &Command{
		Name:        "grant-role",
		Description: "Grant a role access to a resource",
		Flags:       flag.NewFlagSet("grant-role", flag.ExitOnError),
		Run:         runGrantRole,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("role", "", "Role id")
	cmd.Flags.String("resource", "", "Internal resource id")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runGrantRole(args []string) error {
	cmd := newGrantRoleCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	roleID, err := parseID("role", cmd.Flags.Lookup("role").Value.String())
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

	grant, err := rt.ledger.GrantRole(ctx, roleID, resourceID, actorID)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}

	rt.log.Infof("Role %d granted on resource %d (grant %d)", roleID, resourceID, grant.ID)
	return nil
}

func newRevokeRoleCommand() *Command {
	cmd := &Command{
		Name:        "revoke-role",
		Description: "Revoke a role grant",
		Flags:       flag.NewFlagSet("revoke-role", flag.ExitOnError),
		Run:         runRevokeRole,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("grant", "", "Role grant id")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runRevokeRole(args []string) error {
	cmd := newRevokeRoleCommand()
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

	if err := rt.ledger.RevokeRole(ctx, grantID, actorID); err != nil {
		return fmt.Errorf("failed to revoke role grant: %w", err)
	}

	rt.log.Infof("Revoked role grant %d", grantID)
	return nil
}

func newReplaceRoleCommand() *Command {
	cmd := &Command{
		Name:        "replace-role",
		Description: "Replace a role's full resource set",
		Flags:       flag.NewFlagSet("replace-role", flag.ExitOnError),
		Run:         runReplaceRole,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("role", "", "Role id")
	cmd.Flags.String("resources", "", "Comma-separated internal resource ids (empty revokes everything)")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runReplaceRole(args []string) error {
	cmd := newReplaceRoleCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	roleID, err := parseID("role", cmd.Flags.Lookup("role").Value.String())
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

	added, err := rt.ledger.ReplaceRoleResources(ctx, roleID, resourceIDs, actorID)
	if err != nil {
		return fmt.Errorf("failed to replace role resources: %w", err)
	}

	rt.log.Infof("Role %d now holds %d resource(s); %d newly granted", roleID, len(resourceIDs), added)
	return nil
}
