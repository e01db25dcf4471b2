package collect

import (
	"context"
	"strings"
	"time"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/types"
)

// Service merges multiple collectors into one deduplicated sequence.
// Per-source failures are absorbed by the sources themselves; the merged
// result is deduplicated by URL, first occurrence wins.
type Service struct {
	sources []interfaces.Collector
}

var _ interfaces.Collector = (*Service)(nil)

func NewService(sources ...interfaces.Collector) *Service {
	return &Service{sources: sources}
}

func (s *Service) Collect(ctx context.Context) ([]types.RawItem, error) {
	var merged []types.RawItem
	for _, src := range s.sources {
		items, err := src.Collect(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Collector source failed", err)
			continue
		}
		merged = append(merged, items...)
	}

	deduped := Dedupe(merged)
	logger.Info(ctx, "Collection completed", "collected", len(merged), "deduped", len(deduped))
	return deduped, nil
}

// Dedupe drops items without a URL and repeated URLs, keeping first-seen
// order. The URL is the natural key; the store enforces the same rule.
func Dedupe(items []types.RawItem) []types.RawItem {
	seen := make(map[string]bool, len(items))
	out := make([]types.RawItem, 0, len(items))
	for _, it := range items {
		if it.URL == "" || seen[it.URL] {
			continue
		}
		seen[it.URL] = true
		out = append(out, it)
	}
	return out
}

// MatchKeywords scans titles for watchlist keywords, case-insensitively.
// One item can hit several keywords and produces one alert per hit.
func MatchKeywords(items []types.RawItem, keywords []string, at time.Time) []types.NewsAlert {
	var alerts []types.NewsAlert
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		lowered := strings.ToLower(kw)
		for _, it := range items {
			if !strings.Contains(strings.ToLower(it.Title), lowered) {
				continue
			}
			alerts = append(alerts, types.NewsAlert{
				Keyword:   kw,
				Source:    it.Source,
				Title:     it.Title,
				URL:       it.URL,
				CreatedAt: at.UTC(),
			})
		}
	}
	return alerts
}
