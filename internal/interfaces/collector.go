package interfaces

import (
	"context"

	"ai-quant/internal/types"
)

// Collector produces deduplicated raw items. An empty slice is a normal
// outcome, not an error; errors mean the collector itself is broken.
type Collector interface {
	Collect(ctx context.Context) ([]types.RawItem, error)
}
