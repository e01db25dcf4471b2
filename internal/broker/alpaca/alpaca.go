package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/types"
)

// Gateway talks to an Alpaca-compatible brokerage API. The trading endpoint
// defaults to the paper environment; pointing it at the live environment is a
// deployment decision, the simulate/live trade gate lives in the guard.
type Gateway struct {
	endpoint     string // trading API, e.g. https://paper-api.alpaca.markets
	dataEndpoint string // market data API
	keyID        string
	secret       string
	client       *http.Client
}

var _ interfaces.Gateway = (*Gateway)(nil)

type Params struct {
	Endpoint     string
	DataEndpoint string
	KeyID        string
	Secret       string
}

func New(p Params) *Gateway {
	return &Gateway{
		endpoint:     p.Endpoint,
		dataEndpoint: p.DataEndpoint,
		keyID:        p.KeyID,
		secret:       p.Secret,
		client:       &http.Client{},
	}
}

// ReferencePrice returns the latest trade price for the ticker.
func (g *Gateway) ReferencePrice(ctx context.Context, ticker string) (float64, error) {
	var out struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	path := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", g.dataEndpoint, ticker)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	if out.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", ticker)
	}
	return out.Trade.Price, nil
}

// SubmitMarketBuy places a fractional market day order. The client order ID
// makes an accidental double submission idempotent on the broker side.
func (g *Gateway) SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error) {
	reqBody := map[string]any{
		"symbol":          ticker,
		"qty":             strconv.FormatFloat(qty, 'f', -1, 64),
		"side":            "buy",
		"type":            "market",
		"time_in_force":   "day",
		"client_order_id": uuid.NewString(),
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodPost, g.endpoint+"/v2/orders", reqBody, &out); err != nil {
		return types.OrderAck{}, err
	}
	return types.OrderAck{OrderID: out.ID, Status: out.Status}, nil
}

// Account fetches the current account values.
func (g *Gateway) Account(ctx context.Context) (types.AccountValues, error) {
	var out struct {
		Equity      string `json:"equity"`
		Cash        string `json:"cash"`
		BuyingPower string `json:"buying_power"`
	}
	if err := g.do(ctx, http.MethodGet, g.endpoint+"/v2/account", nil, &out); err != nil {
		return types.AccountValues{}, err
	}
	return types.AccountValues{
		NetLiquidation: parseMoney(out.Equity),
		Cash:           parseMoney(out.Cash),
		BuyingPower:    parseMoney(out.BuyingPower),
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, url string, payload, v any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("APCA-API-KEY-ID", g.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", g.secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broker http %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func parseMoney(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
