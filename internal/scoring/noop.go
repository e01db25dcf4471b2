package scoring

import (
	"context"
	"encoding/json"
)

// NoopScorer emits a neutral response for every title: no ticker, zero
// sentiment. Downstream this can never produce an eligible signal, so a
// pipeline wired to it never trades. Useful for offline runs and smoke tests.
type NoopScorer struct{}

func NewNoopScorer() *NoopScorer { return &NoopScorer{} }

func (s *NoopScorer) ScoreTitles(ctx context.Context, titles []string) ([]byte, error) {
	elements := make([]map[string]any, len(titles))
	for i := range titles {
		elements[i] = map[string]any{
			"ticker":    nil,
			"sentiment": 0.0,
			"summary":   "",
			"risk_tags": []string{},
		}
	}
	return json.Marshal(elements)
}
