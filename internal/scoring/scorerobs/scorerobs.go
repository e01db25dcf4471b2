package scorerobs

import (
	"context"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/trace"
)

// observableScorer wraps a Scorer with observability (logging & tracing)
type observableScorer struct {
	scorer interfaces.Scorer
}

// Compile-time interface check
var _ interfaces.Scorer = (*observableScorer)(nil)

// Wrap wraps a scorer with observability middleware
func Wrap(scorer interfaces.Scorer) interfaces.Scorer {
	return &observableScorer{scorer: scorer}
}

func (os *observableScorer) ScoreTitles(ctx context.Context, titles []string) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "scorer.ScoreTitles")
	defer span.End()

	// Skip(1) so the log lines carry the actual caller, not this wrapper
	logger.DebugSkip(ctx, 1, "Submitting batch to scoring service", "titles", len(titles))

	body, err := os.scorer.ScoreTitles(ctx, titles)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Scoring call failed", err, "titles", len(titles))
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Scoring response received", "titles", len(titles), "bytes", len(body))
	return body, nil
}
