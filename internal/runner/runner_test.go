package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-quant/internal/guard"
	"ai-quant/internal/interfaces"
	"ai-quant/internal/scoring"
	"ai-quant/internal/signal"
	"ai-quant/internal/store"
	"ai-quant/internal/types"
)

// memStore is an in-memory Store good enough for pipeline tests.
type memStore struct {
	mu         sync.Mutex
	rawURLs    map[string]bool
	analysis   []types.AnalysisRecord
	executions []types.TradeExecution
	snapshots  []types.AccountSnapshot
	alerts     []types.NewsAlert

	countErr error
	queryErr error
}

func newMemStore() *memStore {
	return &memStore{rawURLs: map[string]bool{}}
}

func (s *memStore) InsertRaw(ctx context.Context, item types.RawItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rawURLs[item.URL] {
		return false, nil
	}
	s.rawURLs[item.URL] = true
	return true, nil
}

func (s *memStore) InsertAnalysis(ctx context.Context, rec types.AnalysisRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = append(s.analysis, rec)
	return true, nil
}

func (s *memStore) QueryAnalysisBetween(ctx context.Context, start, end time.Time) ([]types.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []types.AnalysisRecord
	for _, r := range s.analysis {
		if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) InsertExecution(ctx context.Context, exec types.TradeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, exec)
	return nil
}

func (s *memStore) CountExecutionsSince(ctx context.Context, start time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, e := range s.executions {
		if !e.CreatedAt.Before(start) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) QueryExecutionsSince(ctx context.Context, start time.Time) ([]types.TradeExecution, error) {
	return nil, nil
}

func (s *memStore) InsertAccountSnapshot(ctx context.Context, v types.AccountValues, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, types.AccountSnapshot{AccountValues: v, CreatedAt: at})
	return nil
}

func (s *memStore) LatestAccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error) {
	return nil, nil
}

func (s *memStore) InsertAlerts(ctx context.Context, alerts []types.NewsAlert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
	return len(alerts), nil
}

func (s *memStore) QueryAlertsSince(ctx context.Context, start time.Time) ([]types.NewsAlert, error) {
	return nil, nil
}

type fakeCollector struct {
	items []types.RawItem
	err   error
}

func (c *fakeCollector) Collect(ctx context.Context) ([]types.RawItem, error) {
	return c.items, c.err
}

// scriptedScorer answers with the canned elements regardless of titles,
// unless echo is set, in which case it echoes a valid per-title response.
type scriptedScorer struct {
	elements []map[string]any
	echo     bool
	err      error
}

func (s *scriptedScorer) ScoreTitles(ctx context.Context, titles []string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.echo {
		out := make([]map[string]any, len(titles))
		for i := range titles {
			out[i] = map[string]any{"ticker": nil, "sentiment": 0.0, "summary": "", "risk_tags": []string{}}
		}
		b, _ := json.Marshal(out)
		return b, nil
	}
	b, _ := json.Marshal(s.elements)
	return b, nil
}

type fakeGateway struct {
	price      float64
	priceErr   error
	ack        types.OrderAck
	orderCalls int
	accountErr error
}

func (g *fakeGateway) ReferencePrice(ctx context.Context, ticker string) (float64, error) {
	return g.price, g.priceErr
}

func (g *fakeGateway) SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error) {
	g.orderCalls++
	return g.ack, nil
}

func (g *fakeGateway) Account(ctx context.Context) (types.AccountValues, error) {
	if g.accountErr != nil {
		return types.AccountValues{}, g.accountErr
	}
	return types.AccountValues{NetLiquidation: 10000, Cash: 5000, BuyingPower: 10000}, nil
}

func testConfig() *store.Config {
	c := &store.Config{}
	c.Mode = "SIMULATE"
	c.NotionalUSD = 40
	c.RunTimeoutSeconds = 30
	c.Keywords = []string{"fed"}
	return c
}

func newTestRunner(t *testing.T, cfg *store.Config, col *fakeCollector, sc interfaces.Scorer, st *memStore, gw *fakeGateway) *Runner {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	orch := scoring.NewOrchestrator(sc, st, scoring.OrchestratorParams{
		BatchSize:     10,
		Concurrency:   1,
		Policy:        scoring.Policy{MaxAttempts: 1},
		RatePerSecond: 1000,
	})
	g := guard.New(gw, guard.Params{Mode: cfg.Mode, NotionalUSD: cfg.NotionalUSD})
	// The real clock keeps the validator's created_at stamps inside the
	// selector's day window.
	return New(cfg, col, orch, signal.NewSelector(st), g, st, gw)
}

func headlines(urls ...string) []types.RawItem {
	items := make([]types.RawItem, len(urls))
	for i, u := range urls {
		items[i] = types.RawItem{Source: "test", Title: "headline " + u, URL: u}
	}
	return items
}

func TestRunOnce_SimulatedTrade(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1", "https://x/2")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
		{"ticker": nil, "sentiment": -0.1, "summary": "noise", "risk_tags": []string{}},
	}}
	gw := &fakeGateway{price: 200}

	r := newTestRunner(t, testConfig(), col, sc, st, gw)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSimulated, summary.Outcome)
	assert.Equal(t, 2, summary.ItemsCollected)
	assert.Equal(t, 2, summary.ItemsInserted)
	assert.Equal(t, 2, summary.Scoring.RecordsPersisted)
	require.NotNil(t, summary.Signal)
	assert.Equal(t, "AAPL", summary.Signal.Ticker)
	require.NotNil(t, summary.Intent)
	assert.InDelta(t, 0.2, summary.Intent.Quantity, 1e-9)

	// Simulated runs still leave an execution row; no order was submitted.
	require.Len(t, st.executions, 1)
	assert.Equal(t, "SIMULATE", st.executions[0].Mode)
	assert.Zero(t, gw.orderCalls)
	require.Len(t, st.snapshots, 1)
}

func TestRunOnce_LiveTrade(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "LIVE"

	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "NVDA", "sentiment": 0.8, "summary": "up", "risk_tags": []string{}},
	}}
	gw := &fakeGateway{price: 100, ack: types.OrderAck{OrderID: "ord-1", Status: "filled"}}

	r := newTestRunner(t, cfg, col, sc, st, gw)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeExecuted, summary.Outcome)
	assert.Equal(t, 1, gw.orderCalls)
	require.Len(t, st.executions, 1)
	assert.Equal(t, "filled", st.executions[0].OrderStatus)
}

func TestRunOnce_NoEligibleSignalSkips(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{echo: true} // never names a ticker

	r := newTestRunner(t, testConfig(), col, sc, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Equal(t, "no eligible signal", summary.Reason)
	assert.Empty(t, st.executions)
}

func TestRunOnce_CollectionFailureSkips(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{err: errors.New("all feeds down")}

	r := newTestRunner(t, testConfig(), col, &scriptedScorer{echo: true}, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Equal(t, "collection failed", summary.Reason)
	assert.Empty(t, st.executions)
}

func TestRunOnce_AlreadyTradedTodaySkips(t *testing.T) {
	st := newMemStore()
	st.executions = append(st.executions, types.TradeExecution{
		Ticker:    "MSFT",
		CreatedAt: time.Now().UTC(),
	})

	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
	}}

	r := newTestRunner(t, testConfig(), col, sc, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Equal(t, "already traded today", summary.Reason)
	// Items were still collected and scored for later days.
	assert.Equal(t, 1, summary.Scoring.RecordsPersisted)
	require.Len(t, st.executions, 1, "no new execution row")
}

func TestRunOnce_ExecutionHistoryUnavailableSkips(t *testing.T) {
	st := newMemStore()
	st.countErr = errors.New("connection refused")

	r := newTestRunner(t, testConfig(), &fakeCollector{}, &scriptedScorer{echo: true}, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Empty(t, st.executions)
}

func TestRunOnce_PriceFailureAborts(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
	}}
	gw := &fakeGateway{priceErr: errors.New("feed down")}

	r := newTestRunner(t, testConfig(), col, sc, st, gw)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeAborted, summary.Outcome)
	assert.Equal(t, "no price available", summary.Reason)
	require.Len(t, st.executions, 1)
	assert.Equal(t, "no price available", st.executions[0].Error)
	assert.Zero(t, gw.orderCalls)
}

func TestRunOnce_RejectedScoringBatchStillSkipsCleanly(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1", "https://x/2")}
	// One element for two titles: the batch is rejected whole.
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
	}}

	r := newTestRunner(t, testConfig(), col, sc, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Scoring.BatchesRejected)
	assert.Zero(t, summary.Scoring.RecordsPersisted)
	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Equal(t, "no eligible signal", summary.Reason)
}

func TestRunOnce_DuplicateURLsStillScored(t *testing.T) {
	st := newMemStore()
	st.rawURLs["https://x/1"] = true

	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{echo: true}

	r := newTestRunner(t, testConfig(), col, sc, st, &fakeGateway{price: 100})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	// A previously seen URL is not re-inserted, but its headline is still
	// scored so today's selection window has a record for it.
	assert.Equal(t, 1, summary.ItemsCollected)
	assert.Zero(t, summary.ItemsInserted)
	assert.Equal(t, 1, summary.Scoring.ItemsSubmitted)
	assert.Equal(t, 1, summary.Scoring.RecordsPersisted)
}

func TestRunOnce_AbortedTradeRecoversNextRun(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
	}}
	gw := &fakeGateway{priceErr: errors.New("feed down")}

	r := newTestRunner(t, testConfig(), col, sc, st, gw)

	first, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAborted, first.Outcome)
	require.Len(t, st.executions, 1)

	// Roll the clock forward a day: yesterday's aborted execution and
	// analysis records fall out of today's windows.
	st.executions[0].CreatedAt = st.executions[0].CreatedAt.AddDate(0, 0, -1)
	for i := range st.analysis {
		st.analysis[i].CreatedAt = st.analysis[i].CreatedAt.AddDate(0, 0, -1)
	}

	// Price feed recovers, the headline is still circulating.
	gw.priceErr = nil
	gw.price = 200

	second, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSimulated, second.Outcome)
	require.NotNil(t, second.Signal)
	assert.Equal(t, "AAPL", second.Signal.Ticker)
	require.Len(t, st.executions, 2, "the deferred trade happens on the next run")
}

// blockingScorer stalls until the context is cancelled.
type blockingScorer struct{}

func (s *blockingScorer) ScoreTitles(ctx context.Context, titles []string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunOnce_RunTimeoutAbandonsScoring(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeoutSeconds = 1

	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	gw := &fakeGateway{price: 100}

	r := newTestRunner(t, cfg, col, &blockingScorer{}, st, gw)

	start := time.Now()
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second, "the budget must bound the run")
	assert.Equal(t, types.OutcomeSkipped, summary.Outcome)
	assert.Equal(t, "no eligible signal", summary.Reason)
	assert.Equal(t, 1, summary.Scoring.BatchesRejected)
	assert.Zero(t, summary.Scoring.RecordsPersisted)
	assert.Empty(t, st.analysis, "an abandoned batch persists nothing")
	assert.Empty(t, st.executions)
	assert.Zero(t, gw.orderCalls)
}

func TestRunOnce_ZeroTimeoutRunsUnbounded(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeoutSeconds = 0 // a config built without LoadConfig defaults

	st := newMemStore()
	col := &fakeCollector{items: headlines("https://x/1")}
	sc := &scriptedScorer{elements: []map[string]any{
		{"ticker": "AAPL", "sentiment": 0.9, "summary": "beat", "risk_tags": []string{}},
	}}

	r := newTestRunner(t, cfg, col, sc, st, &fakeGateway{price: 200})
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSimulated, summary.Outcome, "zero budget must not expire the run at birth")
}

func TestRunOnce_RejectsOverlappingRuns(t *testing.T) {
	st := newMemStore()
	r := newTestRunner(t, testConfig(), &fakeCollector{}, &scriptedScorer{echo: true}, st, &fakeGateway{price: 100})

	r.running.Store(true)
	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	r.running.Store(false)
	_, err = r.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunOnce_KeywordAlertsRecorded(t *testing.T) {
	st := newMemStore()
	col := &fakeCollector{items: []types.RawItem{
		{Source: "rss", Title: "Fed holds rates steady", URL: "https://x/1"},
	}}

	r := newTestRunner(t, testConfig(), col, &scriptedScorer{echo: true}, st, &fakeGateway{price: 100})
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, st.alerts, 1)
	assert.Equal(t, "fed", st.alerts[0].Keyword)
}
