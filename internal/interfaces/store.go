package interfaces

import (
	"context"
	"time"

	"ai-quant/internal/types"
)

// Store is the append-only persistence adapter. There is no update path:
// duplicate raw-item writes are absorbed by the URL uniqueness constraint.
type Store interface {
	// InsertRaw writes one raw item. Returns false without error when the
	// URL was already present.
	InsertRaw(ctx context.Context, item types.RawItem) (bool, error)

	// InsertAnalysis writes one validated analysis record.
	InsertAnalysis(ctx context.Context, rec types.AnalysisRecord) (bool, error)

	// QueryAnalysisBetween returns records with created_at in [start, end),
	// ordered by created_at then insertion order.
	QueryAnalysisBetween(ctx context.Context, start, end time.Time) ([]types.AnalysisRecord, error)

	InsertExecution(ctx context.Context, exec types.TradeExecution) error
	CountExecutionsSince(ctx context.Context, start time.Time) (int, error)
	QueryExecutionsSince(ctx context.Context, start time.Time) ([]types.TradeExecution, error)

	InsertAccountSnapshot(ctx context.Context, v types.AccountValues, at time.Time) error
	LatestAccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error)

	InsertAlerts(ctx context.Context, alerts []types.NewsAlert) (int, error)
	QueryAlertsSince(ctx context.Context, start time.Time) ([]types.NewsAlert, error)
}
