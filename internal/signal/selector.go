package signal

import (
	"context"
	"time"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/types"
)

// Selector picks at most one tradeable signal per UTC day. Selection is a
// read-only projection: eligible records (present ticker, no risk tags),
// highest sentiment, earliest created_at on ties. Repeated calls over the
// same data return the same record.
type Selector struct {
	store interfaces.Store
}

func NewSelector(store interfaces.Store) *Selector {
	return &Selector{store: store}
}

// DayBounds returns [start, end) of the UTC calendar day containing now.
func DayBounds(now time.Time) (time.Time, time.Time) {
	u := now.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// SelectForDay returns the day's eligible signal, or nil when none exists.
// Nil is a normal outcome, not an error.
func (s *Selector) SelectForDay(ctx context.Context, now time.Time) (*types.AnalysisRecord, error) {
	dayStart, dayEnd := DayBounds(now)

	records, err := s.store.QueryAnalysisBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	best := pick(records)
	if best == nil {
		logger.Info(ctx, "No eligible signal for the day",
			"day", dayStart.Format("2006-01-02"), "records", len(records))
		return nil, nil
	}

	logger.Info(ctx, "Signal selected",
		"ticker", best.Ticker, "sentiment", best.Sentiment, "created_at", best.CreatedAt)
	return best, nil
}

// pick scans in store order. A candidate replaces the current best only on
// strictly higher sentiment, or equal sentiment with strictly earlier
// created_at, which makes the choice deterministic for identical data.
func pick(records []types.AnalysisRecord) *types.AnalysisRecord {
	var best *types.AnalysisRecord
	for i := range records {
		r := &records[i]
		if !r.Eligible() {
			continue
		}
		if best == nil ||
			r.Sentiment > best.Sentiment ||
			(r.Sentiment == best.Sentiment && r.CreatedAt.Before(best.CreatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
