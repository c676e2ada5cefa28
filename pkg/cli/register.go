package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/arborhq/arbor/pkg/hierarchy"
)

func newRegisterCommand() *Command {
	cmd := &Command{
		Name:        "register",
		Description: "Register a single folder or item under an existing parent",
		Flags:       flag.NewFlagSet("register", flag.ExitOnError),
		Run:         runRegister,
	}

	cmd.Flags.String("db", "", "Database URL (defaults to ARBOR_POSTGRES_URL)")
	cmd.Flags.String("type", "", "Resource type (folder or item)")
	cmd.Flags.String("external-id", "", "External id (prefixed or bare)")
	cmd.Flags.String("parent", "", "Internal id of the parent resource")
	cmd.Flags.String("name", "", "Display name")
	cmd.Flags.String("account", "", "Optional account id label")
	cmd.Flags.String("actor", "", "Acting user id")
	cmd.Flags.String("prefix", "b.", "External id prefix")
	cmd.Flags.Bool("verbose", false, "Enable debug logging")

	return cmd
}

func runRegister(args []string) error {
	cmd := newRegisterCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	resourceType := hierarchy.ResourceType(cmd.Flags.Lookup("type").Value.String())
	externalID := cmd.Flags.Lookup("external-id").Value.String()
	name := cmd.Flags.Lookup("name").Value.String()
	account := cmd.Flags.Lookup("account").Value.String()
	prefix := cmd.Flags.Lookup("prefix").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"

	if externalID == "" || name == "" {
		return fmt.Errorf("external-id and name are required")
	}
	parentID, err := parseID("parent", cmd.Flags.Lookup("parent").Value.String())
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

	params := hierarchy.ResolveParams{
		Type:       resourceType,
		ExternalID: hierarchy.NewIDCodec(prefix).Normalize(externalID),
		ParentID:   &parentID,
		Name:       name,
		ActorID:    actorID,
	}
	if account != "" {
		params.AccountID = &account
	}

	resource, created, err := rt.resources.Register(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to register resource: %w", err)
	}

	if created {
		rt.log.Infof("Registered %s %s (id %d)", resource.Type, resource.ExternalID, resource.ID)
	} else {
		rt.log.Infof("%s %s already registered (id %d)", resource.Type, resource.ExternalID, resource.ID)
	}
	return nil
}
