package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-quant/internal/types"
)

// spyGateway records calls so tests can prove the order path was, or was
// not, reached.
type spyGateway struct {
	price    float64
	priceErr error
	ack      types.OrderAck
	orderErr error

	priceCalls int
	orderCalls int
	gotTicker  string
	gotQty     float64
}

func (g *spyGateway) ReferencePrice(ctx context.Context, ticker string) (float64, error) {
	g.priceCalls++
	return g.price, g.priceErr
}

func (g *spyGateway) SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error) {
	g.orderCalls++
	g.gotTicker = ticker
	g.gotQty = qty
	return g.ack, g.orderErr
}

func (g *spyGateway) Account(ctx context.Context) (types.AccountValues, error) {
	return types.AccountValues{}, nil
}

func signalFor(ticker string) types.AnalysisRecord {
	return types.AnalysisRecord{
		Ticker:    ticker,
		Sentiment: 0.9,
		Summary:   "s",
		RiskTags:  []string{},
		CreatedAt: time.Now().UTC(),
	}
}

func TestNew_DefaultsToSimulate(t *testing.T) {
	for _, mode := range []string{"", "LIVE ", "live", "DRY_RUN", "garbage"} {
		g := New(&spyGateway{}, Params{Mode: mode, NotionalUSD: 40})
		assert.Equal(t, ModeSimulate, g.Mode(), "mode input: %q", mode)
	}

	g := New(&spyGateway{}, Params{Mode: ModeLive, NotionalUSD: 40})
	assert.Equal(t, ModeLive, g.Mode())
}

func TestExecute_SimulateNeverSubmitsOrder(t *testing.T) {
	gw := &spyGateway{price: 200}
	g := New(gw, Params{Mode: ModeSimulate, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("AAPL"))

	assert.Equal(t, StateSimulated, res.State)
	require.NotNil(t, res.Intent)
	assert.Equal(t, "AAPL", res.Intent.Ticker)
	assert.Equal(t, 40.0, res.Intent.NotionalUSD)
	assert.Equal(t, 200.0, res.Intent.ReferencePrice)
	assert.InDelta(t, 0.2, res.Intent.Quantity, 1e-9)
	assert.Nil(t, res.Order)

	assert.Equal(t, 1, gw.priceCalls)
	assert.Zero(t, gw.orderCalls, "simulate mode must never reach the order call")
}

func TestExecute_PriceErrorAborts(t *testing.T) {
	gw := &spyGateway{priceErr: errors.New("feed down")}
	g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("AAPL"))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "no price available", res.Reason)
	assert.Zero(t, gw.orderCalls)
}

func TestExecute_NonPositivePriceAborts(t *testing.T) {
	for _, price := range []float64{0, -3.5} {
		gw := &spyGateway{price: price}
		g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

		res := g.Execute(context.Background(), signalFor("AAPL"))
		assert.Equal(t, StateAborted, res.State, "price: %v", price)
		assert.Zero(t, gw.orderCalls)
	}
}

func TestExecute_DegenerateQuantityAborts(t *testing.T) {
	// Tiny notional against a huge price collapses below the floor.
	gw := &spyGateway{price: 1e12}
	g := New(gw, Params{Mode: ModeLive, NotionalUSD: 0.0001})

	res := g.Execute(context.Background(), signalFor("AAPL"))

	assert.Equal(t, StateAborted, res.State)
	assert.Zero(t, gw.orderCalls)
}

func TestExecute_LiveSubmitsOrder(t *testing.T) {
	gw := &spyGateway{price: 100, ack: types.OrderAck{OrderID: "ord-1", Status: "filled"}}
	g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("NVDA"))

	assert.Equal(t, StateExecuted, res.State)
	require.NotNil(t, res.Order)
	assert.Equal(t, "ord-1", res.Order.OrderID)
	assert.True(t, res.Order.Confirmed())

	assert.Equal(t, 1, gw.orderCalls)
	assert.Equal(t, "NVDA", gw.gotTicker)
	assert.InDelta(t, 0.4, gw.gotQty, 1e-9)
}

func TestExecute_LiveOrderRejectionAborts(t *testing.T) {
	gw := &spyGateway{price: 100, orderErr: errors.New("insufficient buying power")}
	g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("NVDA"))

	assert.Equal(t, StateAborted, res.State)
	assert.Contains(t, res.Reason, "order submission failed")
	require.NotNil(t, res.Intent, "the intent survives for the execution record")
	assert.Nil(t, res.Order)
}

func TestExecute_LiveRejectedAckAborts(t *testing.T) {
	for _, status := range []string{"rejected", "canceled", "cancelled", "expired"} {
		gw := &spyGateway{price: 100, ack: types.OrderAck{OrderID: "ord-3", Status: status}}
		g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

		res := g.Execute(context.Background(), signalFor("NVDA"))

		assert.Equal(t, StateAborted, res.State, "status: %s", status)
		assert.Equal(t, "order "+status, res.Reason)
		require.NotNil(t, res.Order, "the ack survives for the execution record")
	}
}

func TestExecute_LivePendingAckStillExecuted(t *testing.T) {
	gw := &spyGateway{price: 100, ack: types.OrderAck{OrderID: "ord-2", Status: "accepted"}}
	g := New(gw, Params{Mode: ModeLive, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("NVDA"))

	assert.Equal(t, StateExecuted, res.State)
	require.NotNil(t, res.Order)
	assert.False(t, res.Order.Confirmed())
}

func TestExecute_FractionalQuantityPrecision(t *testing.T) {
	// 40 / 3 must not pick up float drift past nine decimals.
	gw := &spyGateway{price: 3}
	g := New(gw, Params{Mode: ModeSimulate, NotionalUSD: 40})

	res := g.Execute(context.Background(), signalFor("AAPL"))

	require.NotNil(t, res.Intent)
	assert.Equal(t, 13.333333333, res.Intent.Quantity)
}
