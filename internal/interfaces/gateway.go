package interfaces

import (
	"context"

	"ai-quant/internal/types"
)

// Gateway is the brokerage connection used by the execution guard.
type Gateway interface {
	// ReferencePrice quotes a current price for sizing. Implementations
	// return an error when no usable quote exists; they never invent one.
	ReferencePrice(ctx context.Context, ticker string) (float64, error)

	// SubmitMarketBuy places a fractional market buy. The returned ack may
	// report a pending status; callers treat pending as not confirmed.
	SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error)

	// Account returns a best-effort account snapshot.
	Account(ctx context.Context) (types.AccountValues, error)
}
