package mock

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/types"
)

// Gateway is an offline brokerage for local runs. Prices are pseudo-random
// but stable per ticker so repeated runs stay comparable, and every order is
// acknowledged as filled.
type Gateway struct{}

var _ interfaces.Gateway = (*Gateway)(nil)

func New() *Gateway { return &Gateway{} }

func (g *Gateway) ReferencePrice(ctx context.Context, ticker string) (float64, error) {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return 20 + rng.Float64()*480, nil
}

func (g *Gateway) SubmitMarketBuy(ctx context.Context, ticker string, qty float64) (types.OrderAck, error) {
	return types.OrderAck{OrderID: uuid.NewString(), Status: "filled"}, nil
}

func (g *Gateway) Account(ctx context.Context) (types.AccountValues, error) {
	return types.AccountValues{NetLiquidation: 10000, Cash: 10000, BuyingPower: 10000}, nil
}
