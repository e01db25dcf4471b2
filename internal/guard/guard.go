package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/logger"
	"ai-quant/internal/trace"
	"ai-quant/internal/types"
)

// State is one step of the per-run execution state machine.
type State string

const (
	StateIdle      State = "IDLE"
	StatePricing   State = "PRICING"
	StateSizing    State = "SIZING"
	StateSimulated State = "SIMULATED"
	StateExecuted  State = "EXECUTED"
	StateAborted   State = "ABORTED"
)

// MinQuantity guards against pathological pricing or rounding degeneracy.
const MinQuantity = 1e-6

const (
	ModeSimulate = "SIMULATE"
	ModeLive     = "LIVE"
)

// Guard walks IDLE -> PRICING -> SIZING -> {SIMULATED|EXECUTED|ABORTED}
// exactly once per run. The mode is fixed at construction; unless it was
// explicitly set to live the gateway submit call is unreachable.
type Guard struct {
	gw           interfaces.Gateway
	mode         string
	notionalUSD  float64
	priceTimeout time.Duration
	orderTimeout time.Duration
}

type Params struct {
	Mode         string
	NotionalUSD  float64
	PriceTimeout time.Duration
	OrderTimeout time.Duration
}

// Result is the terminal outcome of one guard run. Terminal states are final
// for the run; a failed trade is deferred to the next scheduled run, never
// retried in-process.
type Result struct {
	State  State
	Intent *types.TradeIntent
	Order  *types.OrderAck
	Reason string
}

func New(gw interfaces.Gateway, p Params) *Guard {
	mode := ModeSimulate
	if p.Mode == ModeLive {
		mode = ModeLive
	}
	return &Guard{
		gw:           gw,
		mode:         mode,
		notionalUSD:  p.NotionalUSD,
		priceTimeout: p.PriceTimeout,
		orderTimeout: p.OrderTimeout,
	}
}

// Mode returns the effective execution mode.
func (g *Guard) Mode() string { return g.mode }

// Execute runs the state machine for the given signal.
func (g *Guard) Execute(ctx context.Context, sig types.AnalysisRecord) Result {
	ctx, span := trace.StartSpan(ctx, "guard-execute")
	defer span.End()

	// PRICING
	price, err := g.fetchPrice(ctx, sig.Ticker)
	if err != nil {
		logger.ErrorWithErr(ctx, "Price fetch failed, aborting", err, "ticker", sig.Ticker)
		return Result{State: StateAborted, Reason: "no price available"}
	}
	if price <= 0 {
		logger.Warn(ctx, "Non-positive reference price, aborting", "ticker", sig.Ticker, "price", price)
		return Result{State: StateAborted, Reason: "no price available"}
	}

	// SIZING
	qty, _ := decimal.NewFromFloat(g.notionalUSD).
		Div(decimal.NewFromFloat(price)).
		Round(9).
		Float64()
	if qty <= MinQuantity {
		logger.Warn(ctx, "Degenerate quantity, aborting",
			"ticker", sig.Ticker, "price", price, "qty", qty)
		return Result{State: StateAborted, Reason: fmt.Sprintf("quantity %g below minimum", qty)}
	}

	intent := &types.TradeIntent{
		Ticker:         sig.Ticker,
		NotionalUSD:    g.notionalUSD,
		ReferencePrice: price,
		Quantity:       qty,
		Mode:           g.mode,
	}

	if g.mode != ModeLive {
		// Default path: log only, no gateway order call. Nothing can bypass
		// this branch from outside the guard.
		logger.Trade(ctx, intent.Ticker, g.mode, intent.NotionalUSD, price, qty, "", "simulated",
			"note", fmt.Sprintf("would buy $%.2f of %s at %.4f", intent.NotionalUSD, intent.Ticker, price))
		return Result{State: StateSimulated, Intent: intent, Reason: "simulate mode"}
	}

	// EXECUTING (live only, explicit configuration)
	ack, err := g.submitOrder(ctx, intent)
	if err != nil {
		logger.ErrorWithErr(ctx, "Order submission failed, aborting", err,
			"ticker", intent.Ticker, "qty", qty)
		return Result{State: StateAborted, Intent: intent, Reason: "order submission failed: " + err.Error()}
	}

	if ack.Rejected() {
		logger.Warn(ctx, "Order terminally rejected by gateway, aborting",
			"ticker", intent.Ticker, "order_id", ack.OrderID, "status", ack.Status)
		return Result{State: StateAborted, Intent: intent, Order: &ack, Reason: "order " + ack.Status}
	}

	logger.Trade(ctx, intent.Ticker, g.mode, intent.NotionalUSD, price, qty, ack.OrderID, ack.Status)
	if !ack.Confirmed() {
		logger.Warn(ctx, "Order not confirmed filled, recording as unconfirmed",
			"ticker", intent.Ticker, "order_id", ack.OrderID, "status", ack.Status)
	}
	return Result{State: StateExecuted, Intent: intent, Order: &ack}
}

func (g *Guard) fetchPrice(ctx context.Context, ticker string) (float64, error) {
	if g.priceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.priceTimeout)
		defer cancel()
	}
	return g.gw.ReferencePrice(ctx, ticker)
}

func (g *Guard) submitOrder(ctx context.Context, intent *types.TradeIntent) (types.OrderAck, error) {
	if g.orderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.orderTimeout)
		defer cancel()
	}
	return g.gw.SubmitMarketBuy(ctx, intent.Ticker, intent.Quantity)
}
