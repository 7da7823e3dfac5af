package bulkload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/adapters/cache"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// fakeClient serves canned collections and tracks call counts per source.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	automations    []core.Record
	dataFilters    []core.Record
	queries        []core.Record
	imports        []core.Record
	triggeredSends []core.Record
	journeys       []core.Record
	dataExtracts   []core.Record

	failSources map[string]error
	details     map[string]core.Record
	queryText   map[string]string

	queryDelay    time.Duration
	inFlight      int32
	maxInFlight   int32
	detailCalls   int32
	queryTxtCalls int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:       make(map[string]int),
		failSources: make(map[string]error),
		details:     make(map[string]core.Record),
		queryText:   make(map[string]string),
	}
}

func (f *fakeClient) list(source string, records []core.Record) ([]core.Record, error) {
	f.mu.Lock()
	f.calls[source]++
	err := f.failSources[source]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeClient) callCount(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

func (f *fakeClient) ListAutomations(ctx context.Context) ([]core.Record, error) {
	return f.list("automations", f.automations)
}
func (f *fakeClient) ListDataFilters(ctx context.Context) ([]core.Record, error) {
	return f.list("dataFilters", f.dataFilters)
}
func (f *fakeClient) ListQueries(ctx context.Context) ([]core.Record, error) {
	return f.list("queries", f.queries)
}
func (f *fakeClient) ListImports(ctx context.Context) ([]core.Record, error) {
	return f.list("imports", f.imports)
}
func (f *fakeClient) ListTriggeredSends(ctx context.Context) ([]core.Record, error) {
	return f.list("triggeredSends", f.triggeredSends)
}
func (f *fakeClient) ListJourneys(ctx context.Context) ([]core.Record, error) {
	return f.list("journeys", f.journeys)
}
func (f *fakeClient) ListDataExtracts(ctx context.Context) ([]core.Record, error) {
	return f.list("dataExtracts", f.dataExtracts)
}

func (f *fakeClient) GetAutomation(ctx context.Context, id string) (core.Record, error) {
	atomic.AddInt32(&f.detailCalls, 1)
	f.mu.Lock()
	detail, ok := f.details[id]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("automation %s not found", id)
	}
	return detail, nil
}

func (f *fakeClient) GetQueryText(ctx context.Context, id string) (string, error) {
	atomic.AddInt32(&f.queryTxtCalls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	if f.queryDelay > 0 {
		time.Sleep(f.queryDelay)
	}
	atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	text := f.queryText[id]
	f.mu.Unlock()
	return text, nil
}

func testConfig() Config {
	return Config{
		AccountID:        "510001234",
		CacheTTL:         time.Hour,
		DetailBatchSize:  2,
		QueryBatchSize:   4,
		QueryConcurrency: 3,
	}
}

func TestLoadBuildsIndexesFromLiveFetch(t *testing.T) {
	client := newFakeClient()
	client.automations = []core.Record{
		{
			"id":   "auto-1",
			"name": "Nightly Sync",
			"steps": []core.Record{
				{"activities": []core.Record{
					{"activityObjectId": "q-obj-1"},
					{"objectId": "imp-obj-1"},
				}},
			},
		},
	}
	client.dataFilters = []core.Record{
		{"id": "42", "objectId": "filter-obj-1", "customerKey": "filter-key-1"},
	}

	loader := New(client, nil, testConfig(), zap.NewNop())
	ds, err := loader.Load(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, ds.FromCache)
	assert.Empty(t, ds.SourceErrors)
	require.Contains(t, ds.AutomationsByID, "auto-1")
	assert.ElementsMatch(t, []string{"q-obj-1", "imp-obj-1"}, ds.ActivityObjectIDs["auto-1"])

	// Filters are reachable by every identifier they carry.
	for _, key := range []string{"42", "filter-obj-1", "filter-key-1"} {
		assert.Contains(t, ds.FiltersByID, key)
	}

	containing := ds.AutomationsContaining("q-obj-1")
	require.Len(t, containing, 1)
	assert.Equal(t, "Nightly Sync", core.FirstString(containing[0], "name"))
}

func TestLoadServesFromMemoryOnSecondCall(t *testing.T) {
	client := newFakeClient()
	loader := New(client, nil, testConfig(), zap.NewNop())

	first, err := loader.Load(context.Background(), Options{})
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), Options{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, client.callCount("automations"))
}

func TestLoadServesFromPersistedCache(t *testing.T) {
	store := cache.NewMemoryStore(time.Hour)
	ctx := context.Background()

	client1 := newFakeClient()
	client1.queries = []core.Record{{"queryDefinitionId": "q-1", "name": "Cleanup"}}
	loader1 := New(client1, store, testConfig(), zap.NewNop())
	_, err := loader1.Load(ctx, Options{})
	require.NoError(t, err)

	// A fresh loader over the same store never touches the platform.
	client2 := newFakeClient()
	loader2 := New(client2, store, testConfig(), zap.NewNop())
	ds, err := loader2.Load(ctx, Options{})
	require.NoError(t, err)

	assert.True(t, ds.FromCache)
	require.Len(t, ds.Queries, 1)
	assert.Equal(t, "Cleanup", core.FirstString(ds.Queries[0], "name"))
	assert.Equal(t, 0, client2.callCount("queries"))
}

func TestRefreshBypassesBothCacheLevels(t *testing.T) {
	store := cache.NewMemoryStore(time.Hour)
	client := newFakeClient()
	loader := New(client, store, testConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := loader.Load(ctx, Options{})
	require.NoError(t, err)
	ds, err := loader.Refresh(ctx, Options{})
	require.NoError(t, err)

	assert.False(t, ds.FromCache)
	assert.Equal(t, 2, client.callCount("automations"))
}

func TestInvalidateDropsBothCacheLevels(t *testing.T) {
	store := cache.NewMemoryStore(time.Hour)
	client := newFakeClient()
	loader := New(client, store, testConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := loader.Load(ctx, Options{})
	require.NoError(t, err)
	require.NoError(t, loader.Invalidate(ctx))

	_, err = loader.Load(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount("automations"))
}

func TestSingleSourceFailureDegradesToEmpty(t *testing.T) {
	client := newFakeClient()
	client.automations = []core.Record{{"id": "auto-1"}}
	client.failSources["journeys"] = errors.New("interaction API returned 403")

	loader := New(client, nil, testConfig(), zap.NewNop())
	ds, err := loader.Load(context.Background(), Options{})
	require.NoError(t, err)

	assert.Empty(t, ds.Journeys)
	assert.Len(t, ds.Automations, 1)
	require.Contains(t, ds.SourceErrors, "journeys")
	assert.Contains(t, ds.SourceErrors["journeys"], "403")
}

func TestPlatformUnavailableAbortsLoad(t *testing.T) {
	client := newFakeClient()
	client.failSources["automations"] = fmt.Errorf("connection refused: %w", core.ErrPlatformUnavailable)

	loader := New(client, nil, testConfig(), zap.NewNop())
	_, err := loader.Load(context.Background(), Options{})
	assert.ErrorIs(t, err, core.ErrPlatformUnavailable)
}

func TestAutomationDetailHydrationMergesAndReportsProgress(t *testing.T) {
	client := newFakeClient()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("auto-%d", i)
		client.automations = append(client.automations, core.Record{"id": id, "name": "Auto " + id})
		client.details[id] = core.Record{
			"lastRunTime": "2024-01-15T03:00:00Z",
			"status":      "PausedSchedule",
		}
	}

	var progress []int
	loader := New(client, nil, testConfig(), zap.NewNop())
	ds, err := loader.Load(context.Background(), Options{
		IncludeAutomationDetail: true,
		OnProgress: func(stage string, completed, total int) {
			assert.Equal(t, "automation_detail", stage)
			assert.Equal(t, 5, total)
			progress = append(progress, completed)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(5), atomic.LoadInt32(&client.detailCalls))
	assert.Equal(t, []int{2, 4, 5}, progress)
	rec := ds.AutomationsByID["auto-3"]
	require.NotNil(t, rec)
	assert.Equal(t, "PausedSchedule", core.FirstString(rec, "status"))
	assert.Equal(t, "Auto auto-3", core.FirstString(rec, "name"))
}

func TestDetailFetchFailureKeepsSummary(t *testing.T) {
	client := newFakeClient()
	client.automations = []core.Record{{"id": "auto-1", "name": "Keep Me"}}
	// No detail registered: GetAutomation fails.

	loader := New(client, nil, testConfig(), zap.NewNop())
	ds, err := loader.Load(context.Background(), Options{IncludeAutomationDetail: true})
	require.NoError(t, err)
	assert.Equal(t, "Keep Me", core.FirstString(ds.AutomationsByID["auto-1"], "name"))
}

func TestQueryTextHydrationIsBoundedAndFillsOnlyMissing(t *testing.T) {
	client := newFakeClient()
	client.queryDelay = 2 * time.Millisecond
	client.queries = append(client.queries, core.Record{
		"queryDefinitionId": "q-has-text",
		"queryText":         "SELECT 1",
	})
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("q-%d", i)
		client.queries = append(client.queries, core.Record{"queryDefinitionId": id})
		client.queryText[id] = "SELECT * FROM [DE_" + id + "]"
	}

	var stages []string
	loader := New(client, nil, testConfig(), zap.NewNop())
	ds, err := loader.Load(context.Background(), Options{
		IncludeQueryText: true,
		OnProgress: func(stage string, completed, total int) {
			assert.Equal(t, 10, total)
			stages = append(stages, stage)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(10), atomic.LoadInt32(&client.queryTxtCalls),
		"queries that already carry text must not be re-fetched")
	assert.LessOrEqual(t, atomic.LoadInt32(&client.maxInFlight), int32(3))
	assert.NotEmpty(t, stages)

	for _, rec := range ds.Queries {
		assert.NotEmpty(t, core.FirstString(rec, "queryText"))
	}
}

func TestCachedAggregateKeepsDegradedSourceSignal(t *testing.T) {
	store := cache.NewMemoryStore(time.Hour)
	ctx := context.Background()

	client1 := newFakeClient()
	client1.failSources["journeys"] = errors.New("interaction API returned 403")
	loader1 := New(client1, store, testConfig(), zap.NewNop())
	first, err := loader1.Load(ctx, Options{})
	require.NoError(t, err)
	require.Contains(t, first.SourceErrors, "journeys")

	client2 := newFakeClient()
	loader2 := New(client2, store, testConfig(), zap.NewNop())
	ds, err := loader2.Load(ctx, Options{})
	require.NoError(t, err)

	assert.True(t, ds.FromCache)
	require.Contains(t, ds.SourceErrors, "journeys",
		"a cache-served run must still report the dataset as partial")
	assert.Contains(t, ds.SourceErrors["journeys"], "403")
}

func TestDegradedSourceSignalSurvivesFileCacheRoundTrip(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir(), time.Hour, cache.DefaultLockConfig(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	client1 := newFakeClient()
	client1.failSources["dataExtracts"] = errors.New("boom")
	loader1 := New(client1, store, testConfig(), zap.NewNop())
	_, err = loader1.Load(ctx, Options{})
	require.NoError(t, err)

	// The file store JSON round-trips extra metadata as map[string]any.
	loader2 := New(newFakeClient(), store, testConfig(), zap.NewNop())
	ds, err := loader2.Load(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, ds.FromCache)
	assert.Equal(t, "boom", ds.SourceErrors["dataExtracts"])
}

func TestLoadWritesThroughToCache(t *testing.T) {
	store := cache.NewMemoryStore(time.Hour)
	client := newFakeClient()
	client.imports = []core.Record{{"id": "imp-1"}}
	loader := New(client, store, testConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := loader.Load(ctx, Options{})
	require.NoError(t, err)

	info, err := store.Info(ctx, CacheType, "510001234")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 1, info.ItemCounts["imports"])
}
