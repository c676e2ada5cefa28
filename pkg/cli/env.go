package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/arborhq/arbor/pkg/audit"
	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/storage/postgres"
)

// runtime bundles the database-backed services the admin commands share
type runtime struct {
	db        *sql.DB
	log       *logrus.Logger
	resources *hierarchy.Store
	catalog   *grants.Catalog
	ledger    *grants.Ledger
	query     *grants.QueryService
	trail     audit.Trail
	svcLogger *observability.Logger
}

// newLogger creates the command-line logger
func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// openRuntime connects to the database and wires the services. dbURL falls
// back to ARBOR_POSTGRES_URL when empty.
func openRuntime(ctx context.Context, dbURL string, verbose bool) (*runtime, error) {
	if dbURL == "" {
		dbURL = os.Getenv("ARBOR_POSTGRES_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is required (-db flag or ARBOR_POSTGRES_URL)")
	}

	db, err := postgres.Open(ctx, postgres.DefaultConnectionConfig(dbURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	trail, err := audit.NewDBTrail(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	// Internal services log structured JSON to stderr; command output itself
	// goes through logrus and stdout.
	svcLogger := observability.NewLogger(observability.WarnLevel, os.Stderr)

	store := grants.NewStore(db)
	catalog := grants.NewCatalog(db)
	query := grants.NewQueryService(store, svcLogger, nil)
	ledger := grants.NewLedger(store, catalog, trail, svcLogger, query)

	return &runtime{
		db:        db,
		log:       newLogger(verbose),
		resources: hierarchy.NewStore(db),
		catalog:   catalog,
		ledger:    ledger,
		query:     query,
		trail:     trail,
		svcLogger: svcLogger,
	}, nil
}

func (r *runtime) close() {
	r.trail.Close()
	r.db.Close()
}

// parseID parses a positive integer id from a flag value
func parseID(name, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, value)
	}
	return id, nil
}

// parseIDList parses a comma-separated list of positive integer ids
func parseIDList(name, value string) ([]int64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseID(name, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
