package sync

import (
	"context"
	"fmt"
	"strconv"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/arborhq/arbor/pkg/async"
	"github.com/arborhq/arbor/pkg/audit"
	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
	"github.com/arborhq/arbor/pkg/observability"
)

const (
	defaultMaxParallel = 4
	auditTimeout       = 10 * time.Second
)

// ResourceResolver is the slice of the resource store the engine needs
type ResourceResolver interface {
	ResolveOrCreate(ctx context.Context, p hierarchy.ResolveParams) (*hierarchy.Resource, bool, error)
}

// GrantLedger is the slice of the permission ledger the engine needs. The
// engine only ever uses the additive grant path; it never revokes.
type GrantLedger interface {
	GrantUser(ctx context.Context, userID, resourceID, levelID, actorID int64) (*grants.UserGrant, bool, error)
	UserIDsForResource(ctx context.Context, resourceID int64) ([]int64, error)
}

// LevelCatalog resolves the default grant level
type LevelCatalog interface {
	Lowest(ctx context.Context) (*grants.Level, error)
}

// Locker bounds concurrent duplicate runs per project. Optional: correctness
// never depends on it, only upstream call volume.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// EngineConfig wires an Engine. Resources, Ledger, Catalog, Provider and
// Logger are required; the rest are optional.
type EngineConfig struct {
	Resources   ResourceResolver
	Ledger      GrantLedger
	Catalog     LevelCatalog
	Provider    Provider
	Trail       audit.Trail
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Lock        Locker
	IDPrefix    string
	MaxParallel int64
}

// Result summarizes one synchronization run. A run that skipped subtrees is
// still a successful run: partial failure is observable only here and in
// logs, never as an error.
type Result struct {
	RunID          string `json:"run_id"`
	Created        int    `json:"created"`
	Granted        int    `json:"granted"`
	FailedSubtrees int    `json:"failed_subtrees"`
}

// Engine reconciles the internal resource mirror against the external
// hierarchy and propagates default access to the project audience.
//
// Every step is idempotent (atomic resolve-or-create, additive grant), so a
// run can be re-invoked after any partial failure or cancellation with no
// checkpoint: re-running converges to the same end state and never regresses
// access that was already granted.
type Engine struct {
	resources   ResourceResolver
	ledger      GrantLedger
	catalog     LevelCatalog
	provider    Provider
	trail       audit.Trail
	logger      *observability.Logger
	metrics     *observability.Metrics
	lock        Locker
	codec       hierarchy.IDCodec
	maxParallel int64
	tracer      trace.Tracer
}

// NewEngine creates a new hierarchy synchronization engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Resources == nil || cfg.Ledger == nil || cfg.Catalog == nil || cfg.Provider == nil {
		return nil, fmt.Errorf("resources, ledger, catalog and provider are required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	trail := cfg.Trail
	if trail == nil {
		trail = audit.NopTrail{}
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	return &Engine{
		resources:   cfg.Resources,
		ledger:      cfg.Ledger,
		catalog:     cfg.Catalog,
		provider:    cfg.Provider,
		trail:       trail,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		lock:        cfg.Lock,
		codec:       hierarchy.NewIDCodec(cfg.IDPrefix),
		maxParallel: maxParallel,
		tracer:      otel.Tracer("github.com/arborhq/arbor/pkg/sync"),
	}, nil
}

type counters struct {
	created atomic.Int64
	granted atomic.Int64
	failed  atomic.Int64
}

// SyncProject mirrors the external project tree rooted at externalProjectID
// and propagates default access to the project's audience.
//
// The walk processes one tree level at a time from an explicit worklist, so
// depth is bounded by memory rather than the call stack, with sibling
// subtrees handled in parallel up to MaxParallel. A failure under one child
// is contained to that subtree; siblings and completed ancestors keep their
// writes and the run still returns a summary.
func (e *Engine) SyncProject(ctx context.Context, actorID int64, externalProjectID string) (*Result, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	start := time.Now()

	projectID := e.codec.Normalize(externalProjectID)
	logger := e.logger.WithFields(map[string]interface{}{
		"run_id":  runID,
		"project": projectID,
	})

	ctx, span := e.tracer.Start(ctx, "sync.project",
		trace.WithAttributes(attribute.String("project", projectID)))
	defer span.End()

	if e.lock != nil {
		release, ok, err := e.lock.Acquire(ctx, projectID)
		switch {
		case err != nil:
			// The lock is an optimization; run unlocked rather than fail.
			logger.WithError(err).Warn("sync lock unavailable, continuing unlocked")
		case !ok:
			logger.Info("another run holds the project lock")
			return nil, ErrSyncInProgress
		default:
			defer release()
		}
	}

	logger.Info("starting hierarchy synchronization")

	root, created, err := e.resources.ResolveOrCreate(ctx, hierarchy.ResolveParams{
		Type:       hierarchy.TypeProject,
		ExternalID: projectID,
		Name:       projectID,
		ActorID:    actorID,
	})
	if err != nil {
		e.countRun("error", time.Since(start))
		return nil, fmt.Errorf("failed to resolve project %q: %w", projectID, err)
	}

	var counts counters
	if created {
		counts.created.Add(1)
	}

	lowest, err := e.catalog.Lowest(ctx)
	if err != nil {
		e.countRun("error", time.Since(start))
		return nil, fmt.Errorf("failed to resolve default level: %w", err)
	}

	audience, err := e.ledger.UserIDsForResource(ctx, root.ID)
	if err != nil {
		e.countRun("error", time.Since(start))
		return nil, fmt.Errorf("failed to read project audience: %w", err)
	}
	if len(audience) == 0 {
		// A project must never finish synchronization with zero principals:
		// bootstrap the audience to the invoking actor.
		_, grantedNow, err := e.ledger.GrantUser(ctx, actorID, root.ID, lowest.ID, actorID)
		if err != nil {
			e.countRun("error", time.Since(start))
			return nil, fmt.Errorf("failed to bootstrap project audience: %w", err)
		}
		if grantedNow {
			counts.granted.Add(1)
		}
		audience = []int64{actorID}
		logger.WithField("actor_id", actorID).Info("bootstrapped empty project audience")
	}

	w := &walker{
		engine:   e,
		actorID:  actorID,
		audience: audience,
		level:    lowest,
		counts:   &counts,
		logger:   logger,
	}
	walkErr := w.walk(ctx, root)

	result := &Result{
		RunID:          runID,
		Created:        int(counts.created.Load()),
		Granted:        int(counts.granted.Load()),
		FailedSubtrees: int(counts.failed.Load()),
	}

	status := "ok"
	if walkErr != nil {
		status = "cancelled"
	}
	e.countRun(status, time.Since(start))
	if e.metrics != nil {
		e.metrics.SyncResourcesCreated.Add(float64(result.Created))
		e.metrics.SyncGrantsCreated.Add(float64(result.Granted))
	}

	entry := audit.NewEntry(actorID, audit.ActionSyncRun, audit.EntitySyncRun, runID).
		WithMeta("project", projectID).
		WithMeta("created", strconv.Itoa(result.Created)).
		WithMeta("granted", strconv.Itoa(result.Granted)).
		WithMeta("failed_subtrees", strconv.Itoa(result.FailedSubtrees))
	e.record(ctx, entry)

	logger.WithFields(map[string]interface{}{
		"created":         result.Created,
		"granted":         result.Granted,
		"failed_subtrees": result.FailedSubtrees,
	}).Info("hierarchy synchronization finished")

	if walkErr != nil {
		// Cancellation mid-walk: committed writes stay valid, no rollback.
		return result, walkErr
	}
	return result, nil
}

type walker struct {
	engine   *Engine
	actorID  int64
	audience []int64
	level    *grants.Level
	counts   *counters
	logger   *observability.Logger
}

// walk processes the tree one level at a time from an explicit worklist.
// Only context cancellation stops it early.
func (w *walker) walk(ctx context.Context, root *hierarchy.Resource) error {
	sem := semaphore.NewWeighted(w.engine.maxParallel)
	frontier := []*hierarchy.Resource{root}

	for len(frontier) > 0 {
		var (
			mu   stdsync.Mutex
			next []*hierarchy.Resource
			wg   stdsync.WaitGroup
		)

		for _, node := range frontier {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return err
			}
			wg.Add(1)
			node := node
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				folders := w.processNode(ctx, node)
				if len(folders) > 0 {
					mu.Lock()
					next = append(next, folders...)
					mu.Unlock()
				}
			}()
		}

		wg.Wait()
		frontier = next
	}

	return nil
}

// processNode enumerates one node's children, mirrors them, grants the
// audience on each, and returns the folder children to descend into. All
// failures are contained here: an enumeration failure skips the whole
// subtree, a per-child failure skips that child's subtree only.
func (w *walker) processNode(ctx context.Context, node *hierarchy.Resource) []*hierarchy.Resource {
	e := w.engine

	ctx, span := e.tracer.Start(ctx, "sync.node",
		trace.WithAttributes(attribute.String("external_id", node.ExternalID)))
	defer span.End()

	logger := w.logger.WithField("node", node.ExternalID)

	children, err := e.provider.ListChildren(ctx, e.codec.Denormalize(node.ExternalID))
	if err != nil {
		w.counts.failed.Add(1)
		logger.WithError(err).Warn("child enumeration failed, skipping subtree")
		if e.metrics != nil {
			e.metrics.SyncSubtreeFailures.Inc()
		}
		failEntry := audit.NewEntry(w.actorID, audit.ActionSyncSubtreeFail, audit.EntityResource, node.ExternalID).
			WithMeta("error", err.Error())
		e.record(ctx, failEntry)
		return nil
	}
	if e.metrics != nil {
		e.metrics.SyncNodesProcessed.Inc()
	}

	var folders []*hierarchy.Resource
	for _, child := range children {
		if !child.Type.Valid() {
			logger.Warnf("upstream reported unknown node type %q for %s", child.Type, child.ExternalID)
			continue
		}

		res, created, err := e.resources.ResolveOrCreate(ctx, hierarchy.ResolveParams{
			Type:       child.Type,
			ExternalID: e.codec.Normalize(child.ExternalID),
			ParentID:   &node.ID,
			Name:       child.Name,
			ActorID:    w.actorID,
		})
		if err != nil {
			w.counts.failed.Add(1)
			logger.WithError(err).WithField("child", child.ExternalID).Warn("failed to mirror child, skipping subtree")
			if e.metrics != nil {
				e.metrics.SyncSubtreeFailures.Inc()
			}
			continue
		}
		if created {
			w.counts.created.Add(1)
		}

		granted := true
		for _, userID := range w.audience {
			_, grantedNow, err := e.ledger.GrantUser(ctx, userID, res.ID, w.level.ID, w.actorID)
			if err != nil {
				w.counts.failed.Add(1)
				logger.WithError(err).WithField("child", child.ExternalID).
					Warnf("failed to grant user %d, skipping subtree", userID)
				granted = false
				break
			}
			if grantedNow {
				w.counts.granted.Add(1)
			}
		}
		if !granted {
			continue
		}

		// Items are mirrored but never descended into.
		if res.Type == hierarchy.TypeFolder {
			folders = append(folders, res)
		}
	}

	return folders
}

func (e *Engine) countRun(status string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SyncRunsTotal.WithLabelValues(status).Inc()
	e.metrics.SyncRunDuration.Observe(elapsed.Seconds())
}

// record emits an audit entry without blocking or failing the run
func (e *Engine) record(ctx context.Context, entry *audit.Entry) {
	trail := e.trail
	logger := e.logger
	async.Detached(ctx, auditTimeout, "sync audit record", func(ctx context.Context) error {
		if err := trail.Record(ctx, entry); err != nil {
			logger.WithError(err).WithField("action", string(entry.Action)).Warn("audit record failed")
		}
		return nil
	})
}
