package sync

import (
	"context"
	"errors"
	"io"
	"sort"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
	"github.com/arborhq/arbor/pkg/observability"
)

type fakeResolver struct {
	mu     stdsync.Mutex
	nextID int64
	byExt  map[string]*hierarchy.Resource
	failOn map[string]error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		byExt:  make(map[string]*hierarchy.Resource),
		failOn: make(map[string]error),
	}
}

func (f *fakeResolver) ResolveOrCreate(_ context.Context, p hierarchy.ResolveParams) (*hierarchy.Resource, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[p.ExternalID]; err != nil {
		return nil, false, err
	}
	if existing, ok := f.byExt[p.ExternalID]; ok {
		return existing, false, nil
	}
	f.nextID++
	res := &hierarchy.Resource{
		ID:         f.nextID,
		ExternalID: p.ExternalID,
		Type:       p.Type,
		ParentID:   p.ParentID,
		Name:       p.Name,
	}
	f.byExt[p.ExternalID] = res
	return res, true, nil
}

func (f *fakeResolver) get(externalID string) *hierarchy.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byExt[externalID]
}

type grantKey struct {
	userID, resourceID int64
}

type fakeLedger struct {
	mu           stdsync.Mutex
	grants       map[grantKey]int64
	failResource int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{grants: make(map[grantKey]int64)}
}

func (f *fakeLedger) GrantUser(_ context.Context, userID, resourceID, levelID, _ int64) (*grants.UserGrant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResource != 0 && resourceID == f.failResource {
		return nil, false, errors.New("grant store unavailable")
	}
	k := grantKey{userID, resourceID}
	if lvl, ok := f.grants[k]; ok {
		return &grants.UserGrant{UserID: userID, ResourceID: resourceID, LevelID: lvl}, false, nil
	}
	f.grants[k] = levelID
	return &grants.UserGrant{UserID: userID, ResourceID: resourceID, LevelID: levelID}, true, nil
}

func (f *fakeLedger) UserIDsForResource(_ context.Context, resourceID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []int64
	for k := range f.grants {
		if k.resourceID == resourceID {
			users = append(users, k.userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (f *fakeLedger) has(userID, resourceID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.grants[grantKey{userID, resourceID}]
	return ok
}

type fakeCatalog struct{}

func (fakeCatalog) Lowest(context.Context) (*grants.Level, error) {
	return &grants.Level{ID: 1, Code: "viewer", Rank: 10}, nil
}

type fakeProvider struct {
	mu    stdsync.Mutex
	tree  map[string][]Child
	errOn map[string]error
	calls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		tree:  make(map[string][]Child),
		errOn: make(map[string]error),
	}
}

func (f *fakeProvider) ListChildren(_ context.Context, externalParentID string) ([]Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, externalParentID)
	if err := f.errOn[externalParentID]; err != nil {
		return nil, err
	}
	return f.tree[externalParentID], nil
}

type fakeLocker struct {
	held bool
}

func (f *fakeLocker) Acquire(context.Context, string) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	cfg.Logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	cfg.IDPrefix = hierarchy.DefaultIDPrefix
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(EngineConfig{
		Logger: observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	assert.Error(t, err)
}

func TestSyncProjectMirrorsTree(t *testing.T) {
	resolver := newFakeResolver()
	ledger := newFakeLedger()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.folder-1", Type: hierarchy.TypeFolder, Name: "Design"},
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Roadmap"},
	}
	provider.tree["b.folder-1"] = []Child{
		{ExternalID: "b.item-2", Type: hierarchy.TypeItem, Name: "Mockups"},
	}

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    ledger,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	result, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	// Root plus three descendants, every one granted to the bootstrapped
	// audience of {7}.
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 4, result.Granted)
	assert.Equal(t, 0, result.FailedSubtrees)
	assert.NotEmpty(t, result.RunID)

	root := resolver.get("proj-1")
	require.NotNil(t, root)
	assert.Equal(t, hierarchy.TypeProject, root.Type)
	assert.Nil(t, root.ParentID)

	folder := resolver.get("folder-1")
	require.NotNil(t, folder)
	assert.Equal(t, hierarchy.TypeFolder, folder.Type)
	require.NotNil(t, folder.ParentID)
	assert.Equal(t, root.ID, *folder.ParentID)

	nested := resolver.get("item-2")
	require.NotNil(t, nested)
	require.NotNil(t, nested.ParentID)
	assert.Equal(t, folder.ID, *nested.ParentID)

	for _, ext := range []string{"proj-1", "folder-1", "item-1", "item-2"} {
		assert.True(t, ledger.has(7, resolver.get(ext).ID), "user 7 should see %s", ext)
	}
}

func TestSyncProjectIsIdempotent(t *testing.T) {
	resolver := newFakeResolver()
	ledger := newFakeLedger()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.folder-1", Type: hierarchy.TypeFolder, Name: "Design"},
	}
	provider.tree["b.folder-1"] = []Child{
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Mockups"},
	}

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    ledger,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	first, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 3, first.Granted)

	second, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Granted)
	assert.Equal(t, 0, second.FailedSubtrees)
}

func TestSyncProjectPropagatesExistingAudience(t *testing.T) {
	resolver := newFakeResolver()
	ledger := newFakeLedger()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Roadmap"},
	}

	// Pre-existing audience on the root resource.
	root, _, err := resolver.ResolveOrCreate(context.Background(), hierarchy.ResolveParams{
		Type:       hierarchy.TypeProject,
		ExternalID: "proj-1",
		Name:       "proj-1",
		ActorID:    1,
	})
	require.NoError(t, err)
	_, _, err = ledger.GrantUser(context.Background(), 10, root.ID, 1, 1)
	require.NoError(t, err)
	_, _, err = ledger.GrantUser(context.Background(), 11, root.ID, 1, 1)
	require.NoError(t, err)

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    ledger,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	result, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Granted)

	item := resolver.get("item-1")
	require.NotNil(t, item)
	assert.True(t, ledger.has(10, item.ID))
	assert.True(t, ledger.has(11, item.ID))
	// The invoking actor is not part of a non-empty audience.
	assert.False(t, ledger.has(7, item.ID))
}

func TestSyncProjectIsolatesFailedSubtree(t *testing.T) {
	resolver := newFakeResolver()
	ledger := newFakeLedger()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.folder-1", Type: hierarchy.TypeFolder, Name: "Broken"},
		{ExternalID: "b.folder-2", Type: hierarchy.TypeFolder, Name: "Healthy"},
	}
	provider.errOn["b.folder-1"] = ErrUpstreamUnavailable
	provider.tree["b.folder-2"] = []Child{
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Roadmap"},
	}

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    ledger,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	result, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)

	// folder-1's enumeration failed but the folder itself was mirrored; the
	// sibling subtree completed in full.
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 1, result.FailedSubtrees)
	assert.NotNil(t, resolver.get("folder-1"))
	assert.NotNil(t, resolver.get("item-1"))
}

func TestSyncProjectGrantFailureSkipsDescent(t *testing.T) {
	resolver := newFakeResolver()
	ledger := newFakeLedger()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.folder-1", Type: hierarchy.TypeFolder, Name: "Design"},
	}
	provider.tree["b.folder-1"] = []Child{
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Mockups"},
	}

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    ledger,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	// Mirror the folder up front so its resource id is known, then make
	// grants against it fail.
	pre, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	require.Equal(t, 0, pre.FailedSubtrees)

	fresh := newFakeLedger()
	fresh.failResource = resolver.get("folder-1").ID

	engine2 := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    fresh,
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	result, err := engine2.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedSubtrees)

	// The folder's subtree was never descended into.
	assert.False(t, fresh.has(7, resolver.get("item-1").ID))
}

func TestSyncProjectHeldLock(t *testing.T) {
	resolver := newFakeResolver()
	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    newFakeLedger(),
		Catalog:   fakeCatalog{},
		Provider:  newFakeProvider(),
		Lock:      &fakeLocker{held: true},
	})

	result, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Nil(t, result)
	assert.Nil(t, resolver.get("proj-1"))
}

func TestSyncProjectQueriesUpstreamInTransportForm(t *testing.T) {
	provider := newFakeProvider()
	engine := newTestEngine(t, EngineConfig{
		Resources: newFakeResolver(),
		Ledger:    newFakeLedger(),
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	// Prefixed and bare forms identify the same project.
	_, err := engine.SyncProject(context.Background(), 7, "proj-1")
	require.NoError(t, err)
	_, err = engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)

	require.Len(t, provider.calls, 2)
	assert.Equal(t, "b.proj-1", provider.calls[0])
	assert.Equal(t, "b.proj-1", provider.calls[1])
}

func TestSyncProjectSkipsUnknownNodeTypes(t *testing.T) {
	resolver := newFakeResolver()
	provider := newFakeProvider()
	provider.tree["b.proj-1"] = []Child{
		{ExternalID: "b.widget-1", Type: hierarchy.ResourceType("widget"), Name: "Mystery"},
		{ExternalID: "b.item-1", Type: hierarchy.TypeItem, Name: "Roadmap"},
	}

	engine := newTestEngine(t, EngineConfig{
		Resources: resolver,
		Ledger:    newFakeLedger(),
		Catalog:   fakeCatalog{},
		Provider:  provider,
	})

	result, err := engine.SyncProject(context.Background(), 7, "b.proj-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Nil(t, resolver.get("widget-1"))
	assert.NotNil(t, resolver.get("item-1"))
}
