package types

import "time"

// RawItem is an immutable collected headline. URL is the natural key used
// for deduplication; items without a URL are never persisted.
type RawItem struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AnalysisRecord is a validated scoring result. A record exists only if the
// whole response batch passed validation. An empty Ticker means the scoring
// service had no confident symbol; it is never guessed.
type AnalysisRecord struct {
	Ticker    string    `json:"ticker,omitempty"`
	Sentiment float64   `json:"sentiment"`
	Summary   string    `json:"summary"`
	RiskTags  []string  `json:"risk_tags"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the record can be considered for trading:
// a present ticker and no risk tags.
func (r AnalysisRecord) Eligible() bool {
	return r.Ticker != "" && len(r.RiskTags) == 0
}

// TradeIntent is built once per run by the execution guard and discarded at
// run end; it only survives as a trade log entry and an execution row.
type TradeIntent struct {
	Ticker         string  `json:"ticker"`
	NotionalUSD    float64 `json:"notional_usd"`
	ReferencePrice float64 `json:"reference_price"`
	Quantity       float64 `json:"quantity"`
	Mode           string  `json:"mode"`
}

// OrderAck is the brokerage gateway's answer to a market order.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Confirmed reports whether the gateway confirmed the fill. Anything pending
// is treated conservatively as not confirmed.
func (a OrderAck) Confirmed() bool { return a.Status == "filled" }

// Rejected reports a terminal failure acknowledgment. Pending states are
// not rejections.
func (a OrderAck) Rejected() bool {
	switch a.Status {
	case "rejected", "canceled", "cancelled", "expired":
		return true
	}
	return false
}

// TradeExecution is the append-only record of one guard terminal state.
type TradeExecution struct {
	Ticker      string    `json:"ticker"`
	AmountUSD   float64   `json:"amount_usd"`
	Price       float64   `json:"price"`
	Qty         float64   `json:"qty"`
	Mode        string    `json:"mode"`
	OrderStatus string    `json:"order_status,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountValues is a point-in-time view of the brokerage account.
type AccountValues struct {
	NetLiquidation float64 `json:"net_liquidation"`
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buying_power"`
}

// AccountSnapshot is a persisted AccountValues.
type AccountSnapshot struct {
	AccountValues
	CreatedAt time.Time `json:"created_at"`
}

// NewsAlert records a collected title that matched a watchlist keyword.
type NewsAlert struct {
	Keyword   string    `json:"keyword"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchStats aggregates a scoring run. It is observational only; downstream
// stages are gated by the data that was persisted, not by these counts.
type BatchStats struct {
	ItemsSubmitted   int `json:"items_submitted"`
	BatchesAccepted  int `json:"batches_accepted"`
	BatchesRejected  int `json:"batches_rejected"`
	RecordsPersisted int `json:"records_persisted"`
}

// RunOutcome classifies how a run ended. None of these are process failures.
type RunOutcome string

const (
	OutcomeExecuted  RunOutcome = "executed"
	OutcomeSimulated RunOutcome = "simulated"
	OutcomeSkipped   RunOutcome = "skipped"
	OutcomeAborted   RunOutcome = "aborted"
)

// RunSummary is the per-run human-readable result. It is always produced,
// success or partial failure.
type RunSummary struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	ItemsCollected int             `json:"items_collected"`
	ItemsInserted  int             `json:"items_inserted"`
	Scoring        BatchStats      `json:"scoring"`
	Signal         *AnalysisRecord `json:"signal,omitempty"`
	Intent         *TradeIntent    `json:"intent,omitempty"`
	Order          *OrderAck       `json:"order,omitempty"`
	Outcome        RunOutcome      `json:"outcome"`
	Reason         string          `json:"reason"`
}
