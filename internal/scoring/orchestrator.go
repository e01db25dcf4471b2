package scoring

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/trace"
	"ai-quant/internal/types"
)

// Orchestrator drives the external scoring service for a whole run: it
// partitions items into batches, retries each batch call with exponential
// backoff, validates responses atomically and persists accepted records.
// Batches are independent; one exhausted or rejected batch never aborts the
// run, it only contributes nothing.
type Orchestrator struct {
	scorer    interfaces.Scorer
	store     interfaces.Store
	validator *Validator

	batchSize   int
	callTimeout time.Duration
	concurrency int
	policy      Policy
	limiter     *rate.Limiter
	sleep       SleepFunc
}

type OrchestratorParams struct {
	BatchSize     int
	CallTimeout   time.Duration
	Concurrency   int
	Policy        Policy
	RatePerSecond float64
	MaxSummaryLen int
}

func NewOrchestrator(scorer interfaces.Scorer, store interfaces.Store, p OrchestratorParams) *Orchestrator {
	if p.BatchSize <= 0 {
		p.BatchSize = 15
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if p.RatePerSecond <= 0 {
		p.RatePerSecond = 1
	}
	return &Orchestrator{
		scorer:      scorer,
		store:       store,
		validator:   NewValidator(p.MaxSummaryLen),
		batchSize:   p.BatchSize,
		callTimeout: p.CallTimeout,
		concurrency: p.Concurrency,
		policy:      p.Policy,
		limiter:     rate.NewLimiter(rate.Limit(p.RatePerSecond), 1),
		sleep:       SleepContext,
	}
}

// batchOutcome is what one worker reports back for one batch.
type batchOutcome struct {
	accepted  bool
	persisted int
}

// Run scores every item and returns the aggregate. Counters are accumulated
// by this goroutine alone; workers only send outcomes over the channel.
func (o *Orchestrator) Run(ctx context.Context, items []types.RawItem) types.BatchStats {
	ctx, span := trace.StartSpan(ctx, "scoring-run")
	defer span.End()

	stats := types.BatchStats{ItemsSubmitted: len(items)}

	batches := partition(items, o.batchSize)
	if len(batches) == 0 {
		return stats
	}

	logger.Info(ctx, "Scoring run started",
		"items", len(items), "batches", len(batches), "batch_size", o.batchSize)

	work := make(chan []types.RawItem)
	outcomes := make(chan batchOutcome)

	workers := o.concurrency
	if workers > len(batches) {
		workers = len(batches)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				outcomes <- o.processBatch(ctx, batch)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, b := range batches {
			select {
			case work <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		if out.accepted {
			stats.BatchesAccepted++
		} else {
			stats.BatchesRejected++
		}
		stats.RecordsPersisted += out.persisted
	}

	logger.Info(ctx, "Scoring run finished",
		"batches_accepted", stats.BatchesAccepted,
		"batches_rejected", stats.BatchesRejected,
		"records_persisted", stats.RecordsPersisted)

	return stats
}

// processBatch runs the call/validate/persist cycle for one batch. The
// identical batch is re-sent on every retry; there is no re-splitting.
func (o *Orchestrator) processBatch(ctx context.Context, batch []types.RawItem) batchOutcome {
	titles := make([]string, len(batch))
	for i, it := range batch {
		titles[i] = it.Title
	}

	var body []byte
	err := o.policy.Do(ctx, o.sleep, func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx := ctx
		if o.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
			defer cancel()
		}
		b, err := o.scorer.ScoreTitles(callCtx, titles)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Scoring batch abandoned after retries", err,
			"titles", len(titles), "max_attempts", o.policy.MaxAttempts)
		return batchOutcome{}
	}

	records, err := o.validator.ValidateBatch(titles, body)
	if err != nil {
		logger.ErrorWithErr(ctx, "Scoring batch rejected by validator", err, "titles", len(titles))
		return batchOutcome{}
	}

	out := batchOutcome{accepted: true}
	for _, rec := range records {
		inserted, err := o.store.InsertAnalysis(ctx, rec)
		if err != nil {
			// One failed write never aborts its siblings.
			logger.ErrorWithErr(ctx, "Failed to persist analysis record", err, "ticker", rec.Ticker)
			continue
		}
		if inserted {
			out.persisted++
		}
	}
	return out
}

func partition(items []types.RawItem, size int) [][]types.RawItem {
	var batches [][]types.RawItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
