// Package runner drives one end-to-end pass: collect, persist, score,
// select, execute. Every stage failure degrades to "no trade today";
// a run never crashes the process and is never retried in-process.
package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ai-quant/internal/collect"
	"ai-quant/internal/guard"
	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/scoring"
	"ai-quant/internal/signal"
	"ai-quant/internal/store"
	"ai-quant/internal/trace"
	"ai-quant/internal/tradelog"
	"ai-quant/internal/types"
)

// ErrRunInProgress is returned when a run is requested while another is
// still active. Overlapping schedule fires are dropped, not queued.
var ErrRunInProgress = errors.New("run already in progress")

type Runner struct {
	cfg       *store.Config
	collector interfaces.Collector
	scoring   *scoring.Orchestrator
	selector  *signal.Selector
	guard     *guard.Guard
	store     interfaces.Store
	gw        interfaces.Gateway

	running atomic.Bool
	now     func() time.Time
}

func New(cfg *store.Config, collector interfaces.Collector, sc *scoring.Orchestrator,
	sel *signal.Selector, g *guard.Guard, st interfaces.Store, gw interfaces.Gateway) *Runner {
	return &Runner{
		cfg:       cfg,
		collector: collector,
		scoring:   sc,
		selector:  sel,
		guard:     g,
		store:     st,
		gw:        gw,
		now:       time.Now,
	}
}

// RunOnce executes a single pipeline pass. It always returns a summary; the
// error is non-nil only when the run could not start at all.
func (r *Runner) RunOnce(ctx context.Context) (types.RunSummary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return types.RunSummary{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	// A zero budget means no deadline, not an already-expired context.
	var cancel context.CancelFunc
	if d := r.cfg.RunTimeout(); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ctx, span := trace.StartSpan(ctx, "pipeline-run")
	defer span.End()

	summary := types.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
	}
	logger.Info(ctx, "Run starting", "run_id", summary.RunID, "mode", r.guard.Mode())

	r.run(ctx, &summary)

	summary.FinishedAt = r.now().UTC()
	logger.RunSummary(ctx, summary.RunID, string(summary.Outcome), summary.Reason,
		"items_collected", summary.ItemsCollected,
		"items_inserted", summary.ItemsInserted,
		"batches_accepted", summary.Scoring.BatchesAccepted,
		"batches_rejected", summary.Scoring.BatchesRejected,
		"records_persisted", summary.Scoring.RecordsPersisted,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String())
	return summary, nil
}

func (r *Runner) run(ctx context.Context, summary *types.RunSummary) {
	// Ingest. An adapter-level failure ends the run as a skip; an empty
	// result is not a failure and the run continues.
	items, err := r.collector.Collect(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Collection failed", err)
		r.finishSkipped(summary, "collection failed")
		return
	}
	items = collect.Dedupe(items)
	summary.ItemsCollected = len(items)

	fresh := r.persistRaw(ctx, items)
	summary.ItemsInserted = len(fresh)

	r.recordAlerts(ctx, fresh)

	// Score the whole deduplicated set, not only first-seen items. A
	// headline still circulating after an aborted run gets a fresh record
	// inside today's selection window, so the deferred trade can happen.
	if len(items) > 0 {
		summary.Scoring = r.scoring.Run(ctx, items)
	}

	now := r.now()
	dayStart, _ := signal.DayBounds(now)

	// Single-position rule: at most one execution row per UTC day.
	n, err := r.store.CountExecutionsSince(ctx, dayStart)
	if err != nil {
		logger.ErrorWithErr(ctx, "Execution count query failed", err)
		r.finishSkipped(summary, "execution history unavailable")
		return
	}
	if n > 0 {
		r.finishSkipped(summary, "already traded today")
		return
	}

	sig, err := r.selector.SelectForDay(ctx, now)
	if err != nil {
		logger.ErrorWithErr(ctx, "Signal selection failed", err)
		r.finishSkipped(summary, "signal selection failed")
		return
	}
	if sig == nil {
		r.finishSkipped(summary, "no eligible signal")
		return
	}
	summary.Signal = sig
	logger.Info(ctx, "Signal selected",
		"ticker", sig.Ticker, "sentiment", sig.Sentiment, "run_id", summary.RunID)

	res := r.guard.Execute(ctx, *sig)
	summary.Intent = res.Intent
	summary.Order = res.Order
	summary.Reason = res.Reason

	switch res.State {
	case guard.StateExecuted:
		summary.Outcome = types.OutcomeExecuted
		if summary.Reason == "" {
			summary.Reason = "order submitted"
		}
	case guard.StateSimulated:
		summary.Outcome = types.OutcomeSimulated
	default:
		summary.Outcome = types.OutcomeAborted
	}

	r.recordExecution(ctx, summary, res)
	r.snapshotAccount(ctx)
}

func (r *Runner) finishSkipped(summary *types.RunSummary, reason string) {
	summary.Outcome = types.OutcomeSkipped
	summary.Reason = reason
}

// persistRaw inserts collected items and returns the ones not seen before.
// Per-item insert failures are logged and skipped.
func (r *Runner) persistRaw(ctx context.Context, items []types.RawItem) []types.RawItem {
	fresh := make([]types.RawItem, 0, len(items))
	for _, it := range items {
		inserted, err := r.store.InsertRaw(ctx, it)
		if err != nil {
			logger.ErrorWithErr(ctx, "Raw item insert failed", err, "url", it.URL)
			continue
		}
		if inserted {
			fresh = append(fresh, it)
		}
	}
	return fresh
}

func (r *Runner) recordAlerts(ctx context.Context, fresh []types.RawItem) {
	alerts := collect.MatchKeywords(fresh, r.cfg.Keywords, r.now().UTC())
	if len(alerts) == 0 {
		return
	}
	if n, err := r.store.InsertAlerts(ctx, alerts); err != nil {
		logger.ErrorWithErr(ctx, "Alert insert failed", err)
	} else if n > 0 {
		logger.Info(ctx, "Keyword alerts recorded", "count", n)
	}
}

// recordExecution persists the guard's terminal state as an execution row
// and a trade log line. Both are best effort; the trade itself is done.
func (r *Runner) recordExecution(ctx context.Context, summary *types.RunSummary, res guard.Result) {
	exec := types.TradeExecution{
		Mode:      r.guard.Mode(),
		CreatedAt: r.now().UTC(),
	}
	entry := tradelog.Entry{
		RunID:  summary.RunID,
		Kind:   "outcome",
		Mode:   r.guard.Mode(),
		Status: string(res.State),
		Reason: res.Reason,
	}
	if summary.Signal != nil {
		exec.Ticker = summary.Signal.Ticker
		entry.Ticker = summary.Signal.Ticker
	}
	if res.Intent != nil {
		exec.AmountUSD = res.Intent.NotionalUSD
		exec.Price = res.Intent.ReferencePrice
		exec.Qty = res.Intent.Quantity
		entry.NotionalUSD = res.Intent.NotionalUSD
		entry.Price = res.Intent.ReferencePrice
		entry.Qty = res.Intent.Quantity
	}
	if res.Order != nil {
		exec.OrderStatus = res.Order.Status
		entry.OrderID = res.Order.OrderID
	}
	if res.State == guard.StateAborted {
		exec.Error = res.Reason
	}

	if res.Intent != nil {
		intentEntry := entry
		intentEntry.Kind = "intent"
		intentEntry.Status = ""
		intentEntry.Reason = ""
		if err := tradelog.Append(intentEntry); err != nil {
			logger.ErrorWithErr(ctx, "Trade log append failed", err)
		}
	}

	if err := r.store.InsertExecution(ctx, exec); err != nil {
		logger.ErrorWithErr(ctx, "Execution insert failed", err, "ticker", exec.Ticker)
	}
	if err := tradelog.Append(entry); err != nil {
		logger.ErrorWithErr(ctx, "Trade log append failed", err)
	}
}

func (r *Runner) snapshotAccount(ctx context.Context) {
	vals, err := r.gw.Account(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Account fetch failed", err)
		return
	}
	if err := r.store.InsertAccountSnapshot(ctx, vals, r.now().UTC()); err != nil {
		logger.ErrorWithErr(ctx, "Account snapshot insert failed", err)
	}
}
