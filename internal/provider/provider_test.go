package provider_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/store"
	"github.com/headline-goat/launch-goat/internal/testutil"
)

func TestResultValidate(t *testing.T) {
	ok := provider.Result{ExperimentID: "x", Variants: []provider.Variant{
		{Name: "control", Users: 10, Conversions: 1},
		{Name: "treatment", Users: 10, Conversions: 2},
	}}
	require.NoError(t, ok.Validate())

	cases := map[string]provider.Result{
		"one variant": {ExperimentID: "x", Variants: []provider.Variant{{Name: "control", Users: 1}}},
		"conversions over users": {ExperimentID: "x", Variants: []provider.Variant{
			{Name: "control", Users: 10, Conversions: 11},
			{Name: "treatment", Users: 10},
		}},
		"negative users": {ExperimentID: "x", Variants: []provider.Variant{
			{Name: "control", Users: -1},
			{Name: "treatment", Users: 10},
		}},
		"duplicate names": {ExperimentID: "x", Variants: []provider.Variant{
			{Name: "a", Users: 10},
			{Name: "a", Users: 10},
		}},
	}
	for name, r := range cases {
		err := r.Validate()
		assert.ErrorIs(t, err, provider.ErrInvalid, name)
	}
}

func TestResultToTable(t *testing.T) {
	r := provider.Result{ExperimentID: "x", Variants: []provider.Variant{
		{Name: "Control", Users: 100, Conversions: 10, Metrics: map[string]float64{"errors": 3}},
		{Name: "TREATMENT", Users: 120, Conversions: 15, Metrics: map[string]float64{"crashes": 1}},
	}}

	table := r.ToTable()
	assert.Equal(t, []string{"variant", "users", "conversions", "crashes", "errors"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"control", "100", "10", "0", "3"}, table.Rows[0])
	assert.Equal(t, []string{"treatment", "120", "15", "1", "0"}, table.Rows[1])

	ds, err := dataset.New(table, nil)
	require.NoError(t, err)
	assert.False(t, ds.IsMultivariant())
	assert.ElementsMatch(t, []string{"crashes", "errors"}, ds.Schema.Guardrails)
}

func TestRegistry(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("dummy", provider.NewDummy)
	reg.Register("growthbook", provider.GrowthBookFactory(""))

	assert.Equal(t, []string{"dummy", "growthbook"}, reg.Names())

	p, err := reg.Get("dummy", "key")
	require.NoError(t, err)
	assert.Equal(t, "dummy", p.Name())

	_, err = reg.Get("statsig", "key")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = reg.Get("dummy", provider.InvalidDummyKey)
	assert.ErrorIs(t, err, provider.ErrAuth)

	_, err = reg.Get("growthbook", "")
	assert.ErrorIs(t, err, provider.ErrAuth)
}

func TestDummy(t *testing.T) {
	ctx := context.Background()
	p, err := provider.NewDummy("key")
	require.NoError(t, err)

	exps, err := p.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Len(t, exps, 4)

	res, err := p.FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	assert.Equal(t, int64(1200), res.Variants[1].Conversions)

	_, err = p.FetchExperiment(ctx, "exp_error")
	assert.ErrorIs(t, err, provider.ErrUpstream)

	_, err = p.FetchExperiment(ctx, "nope")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "dummy", perr.Provider)
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	s := testutil.SetupTestStore(t)
	testutil.SeedExperiment(t, s, "checkout", []string{"control", "treatment"}, []int{20, 20}, []int{2, 5})

	require.NoError(t, s.RecordEvent(ctx, "checkout", 1, store.GuardrailKind("crash_count"), "visitor-1-0", 0))
	require.NoError(t, s.RecordEvent(ctx, "checkout", 0, store.MetricKind("revenue"), "visitor-0-0", 3))
	require.NoError(t, s.RecordEvent(ctx, "checkout", 0, store.MetricKind("revenue"), "visitor-0-1", 4))

	p := provider.NewLocal(s)
	exps, err := p.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "checkout", exps[0].ID)
	assert.Equal(t, "running", exps[0].Status)

	res, err := p.FetchExperiment(ctx, "checkout")
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	require.Len(t, res.Variants, 2)

	control, treatment := res.Variants[0], res.Variants[1]
	assert.Equal(t, "control", control.Name)
	assert.Equal(t, int64(20), control.Users)
	assert.Equal(t, int64(2), control.Conversions)
	assert.Equal(t, 7.0, control.Metrics["revenue_sum"])
	assert.Equal(t, 25.0, control.Metrics["revenue_sum_sq"])
	assert.Equal(t, int64(5), treatment.Conversions)
	assert.Equal(t, 1.0, treatment.Metrics["crash_count"])

	split, err := p.ExpectedSplit(ctx, "checkout")
	require.NoError(t, err)
	assert.Nil(t, split)

	_, err = p.FetchExperiment(ctx, "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func openWarehouse(t *testing.T) *sqlx.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlite3")
	t.Cleanup(func() { db.Close() })

	db.MustExec(`CREATE TABLE experiment_variants (
		experiment_id TEXT NOT NULL,
		experiment_name TEXT,
		status TEXT,
		variant TEXT NOT NULL,
		users INTEGER NOT NULL,
		conversions INTEGER NOT NULL,
		metrics TEXT
	)`)
	db.MustExec(`INSERT INTO experiment_variants VALUES
		('exp_a', 'Checkout', 'running', 'treatment', 1000, 120, '{"error_count": 4}'),
		('exp_a', 'Checkout', 'running', 'control', 1000, 100, '{"error_count": 2}'),
		('exp_b', 'Pricing', 'stopped', 'control', 50, 5, NULL),
		('exp_b', 'Pricing', 'stopped', 'variant_a', 50, 6, NULL)`)
	return db
}

func TestWarehouse(t *testing.T) {
	ctx := context.Background()
	w, err := provider.NewWarehouse(openWarehouse(t), "experiment_variants")
	require.NoError(t, err)

	exps, err := w.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "exp_a", exps[0].ID)
	assert.Equal(t, "Pricing", exps[1].Name)

	res, err := w.FetchExperiment(ctx, "exp_a")
	require.NoError(t, err)
	require.Len(t, res.Variants, 2)
	assert.Equal(t, "control", res.Variants[0].Name)
	assert.Equal(t, 2.0, res.Variants[0].Metrics["error_count"])
	assert.Equal(t, int64(120), res.Variants[1].Conversions)

	res, err = w.FetchExperiment(ctx, "exp_b")
	require.NoError(t, err)
	assert.Nil(t, res.Variants[1].Metrics)

	_, err = w.FetchExperiment(ctx, "exp_z")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestWarehouse_RejectsTableName(t *testing.T) {
	_, err := provider.NewWarehouse(nil, "variants; DROP TABLE x")
	assert.ErrorIs(t, err, provider.ErrInvalid)
}

func fastRetry() provider.GrowthBookOption {
	return provider.WithRetryPolicy(provider.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Factor: 2})
}

func TestGrowthBook_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/experiments", r.URL.Path)
		fmt.Fprint(w, `{"experiments":[
			{"id":"e1","name":"Hero","status":"running","dateUpdated":"2024-03-01T10:00:00Z"},
			{"id":"e2"}
		]}`)
	}))
	defer srv.Close()

	gb := provider.NewGrowthBook(srv.URL, "secret", fastRetry())
	exps, err := gb.ListExperiments(context.Background())
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "Hero", exps[0].Name)
	require.NotNil(t, exps[0].LastUpdated)
	assert.Equal(t, 2024, exps[0].LastUpdated.Year())
	assert.Equal(t, "Unknown Experiment", exps[1].Name)
	assert.Equal(t, "unknown", exps[1].Status)
	assert.Nil(t, exps[1].LastUpdated)
}

func TestGrowthBook_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/experiments/e1", r.URL.Path)
		fmt.Fprint(w, `{"experiment":{
			"variations":[{"name":"Control"},{"name":"Treatment"}],
			"results":[
				{"variationId":0,"users":1000,"conversions":100,"error_count":3},
				{"variationId":1,"users":1000,"count":130}
			]
		}}`)
	}))
	defer srv.Close()

	gb := provider.NewGrowthBook(srv.URL, "secret", fastRetry())
	res, err := gb.FetchExperiment(context.Background(), "e1")
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	require.Len(t, res.Variants, 2)
	assert.Equal(t, "Control", res.Variants[0].Name)
	assert.Equal(t, int64(100), res.Variants[0].Conversions)
	assert.Equal(t, 3.0, res.Variants[0].Metrics["error_count"])
	assert.Equal(t, int64(130), res.Variants[1].Conversions)
	assert.NotContains(t, res.Variants[1].Metrics, "count")
}

func TestGrowthBook_FetchWithoutResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"experiment":{"variations":[{"name":"A"},{"name":"B"}]}}`)
	}))
	defer srv.Close()

	res, err := provider.NewGrowthBook(srv.URL, "k", fastRetry()).FetchExperiment(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, res.Variants, 2)
	assert.Equal(t, "B", res.Variants[1].Name)
	assert.Zero(t, res.Variants[1].Users)
}

func TestGrowthBook_StatusMapping(t *testing.T) {
	cases := []struct {
		status   int
		kind     error
		attempts int32
	}{
		{http.StatusUnauthorized, provider.ErrAuth, 1},
		{http.StatusNotFound, provider.ErrNotFound, 1},
		{http.StatusBadRequest, provider.ErrUpstream, 1},
		{http.StatusTooManyRequests, provider.ErrRateLimited, 3},
		{http.StatusBadGateway, provider.ErrUpstream, 3},
	}

	for _, tc := range cases {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tc.status)
		}))

		_, err := provider.NewGrowthBook(srv.URL, "k", fastRetry()).FetchExperiment(context.Background(), "e1")
		srv.Close()

		assert.ErrorIs(t, err, tc.kind, "status %d", tc.status)
		assert.Equal(t, tc.attempts, calls.Load(), "status %d", tc.status)
	}
}

func TestGrowthBook_RetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"experiments":[]}`)
	}))
	defer srv.Close()

	exps, err := provider.NewGrowthBook(srv.URL, "k", fastRetry()).ListExperiments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, exps)
	assert.Equal(t, int32(2), calls.Load())
}

type countingProvider struct {
	provider.Provider
	fetches int
	fail    bool
}

func (c *countingProvider) FetchExperiment(ctx context.Context, id string) (provider.Result, error) {
	c.fetches++
	if c.fail {
		return provider.Result{}, errors.New("boom")
	}
	return c.Provider.FetchExperiment(ctx, id)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	dummy, err := provider.NewDummy("k")
	require.NoError(t, err)
	inner := &countingProvider{Provider: dummy}

	p := provider.NewCached(inner, "k", provider.NewMemoryCache(), time.Minute, zap.NewNop())
	first, err := p.FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)
	second, err := p.FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.fetches)
	assert.Equal(t, "dummy", p.Name())
}

func TestCached_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	dummy, err := provider.NewDummy("k")
	require.NoError(t, err)
	inner := &countingProvider{Provider: dummy, fail: true}

	p := provider.NewCached(inner, "k", provider.NewMemoryCache(), time.Minute, zap.NewNop())
	_, err = p.FetchExperiment(ctx, "exp_001")
	require.Error(t, err)
	_, err = p.FetchExperiment(ctx, "exp_001")
	require.Error(t, err)
	assert.Equal(t, 2, inner.fetches)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := provider.NewMemoryCache()
	r := provider.Result{ExperimentID: "x"}

	c.Set(ctx, "k", r, time.Hour)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "x", got.ExperimentID)

	c.Set(ctx, "gone", r, -time.Second)
	_, ok = c.Get(ctx, "gone")
	assert.False(t, ok)
}

func TestNewCache_FallsBackWithoutRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := provider.NewCache(ctx, "", zap.NewNop())
	assert.IsType(t, &provider.MemoryCache{}, c)

	c = provider.NewCache(ctx, "redis://127.0.0.1:1/0", zap.NewNop())
	assert.IsType(t, &provider.MemoryCache{}, c)

	c = provider.NewCache(ctx, "not a url", zap.NewNop())
	assert.IsType(t, &provider.MemoryCache{}, c)
}

func TestCacheKey(t *testing.T) {
	a := provider.CacheKey("growthbook", "key-a", "e1")
	b := provider.CacheKey("growthbook", "key-b", "e1")

	assert.Regexp(t, `^growthbook:[0-9a-f]{12}:e1:results$`, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, provider.CacheKey("growthbook", "key-a", "e1"))
	assert.NotContains(t, a, "key-a")
}

func TestCached_ScopedByAPIKey(t *testing.T) {
	ctx := context.Background()
	dummy, err := provider.NewDummy("k")
	require.NoError(t, err)
	inner := &countingProvider{Provider: dummy}
	cache := provider.NewMemoryCache()

	_, err = provider.NewCached(inner, "key-a", cache, time.Minute, zap.NewNop()).FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)
	_, err = provider.NewCached(inner, "key-b", cache, time.Minute, zap.NewNop()).FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)
	_, err = provider.NewCached(inner, "key-a", cache, time.Minute, zap.NewNop()).FetchExperiment(ctx, "exp_001")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.fetches)
}
