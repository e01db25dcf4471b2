package brokerobs

import (
	"context"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/trace"
	"ai-quant/internal/types"
)

// observableGateway wraps a Gateway with observability (logging & tracing)
type observableGateway struct {
	gw interfaces.Gateway
}

// Compile-time interface check
var _ interfaces.Gateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(gw interfaces.Gateway) interfaces.Gateway {
	return &observableGateway{gw: gw}
}

func (og *observableGateway) ReferencePrice(ctx context.Context, ticker string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.ReferencePrice")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching reference price", "ticker", ticker)

	price, err := og.gw.ReferencePrice(ctx, ticker)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch reference price", err, "ticker", ticker)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Reference price fetched", "ticker", ticker, "price", price)
	return price, nil
}

func (og *observableGateway) SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.SubmitMarketBuy")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting market buy", "ticker", ticker, "qty", qty)

	ack, err := og.gw.SubmitMarketBuy(ctx, ticker, qty)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit market buy", err, "ticker", ticker, "qty", qty)
		return types.OrderAck{}, err
	}

	logger.InfoSkip(ctx, 1, "Market buy acknowledged",
		"ticker", ticker, "qty", qty, "order_id", ack.OrderID, "status", ack.Status)
	return ack, nil
}

func (og *observableGateway) Account(ctx context.Context) (types.AccountValues, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.Account")
	defer span.End()

	v, err := og.gw.Account(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account values", err)
		return types.AccountValues{}, err
	}

	logger.DebugSkip(ctx, 1, "Account values fetched",
		"net_liquidation", v.NetLiquidation, "cash", v.Cash, "buying_power", v.BuyingPower)
	return v, nil
}
