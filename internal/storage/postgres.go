package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ai-quant/internal/interfaces"
	"ai-quant/internal/types"
)

// Repository is the append-only Postgres store. Raw items, analysis records
// and executions are insert-only; dedup of raw items is delegated entirely to
// the unique constraint on url, so concurrent writers need no locking.
type Repository struct {
	db *pgxpool.Pool
}

var _ interfaces.Store = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool returns the underlying database pool.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

const schema = `
CREATE TABLE IF NOT EXISTS raw_news (
	id BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sentiment_signal (
	id BIGSERIAL PRIMARY KEY,
	ticker TEXT,
	sentiment DOUBLE PRECISION NOT NULL,
	summary TEXT NOT NULL,
	risk_tags JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sentiment_signal_created_at ON sentiment_signal (created_at);

CREATE TABLE IF NOT EXISTS trade_execution (
	id BIGSERIAL PRIMARY KEY,
	ticker TEXT NOT NULL,
	amount_usd DOUBLE PRECISION NOT NULL,
	price DOUBLE PRECISION,
	qty DOUBLE PRECISION,
	mode TEXT NOT NULL,
	order_status TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_execution_created_at ON trade_execution (created_at);

CREATE TABLE IF NOT EXISTS account_snapshot (
	id BIGSERIAL PRIMARY KEY,
	net_liquidation DOUBLE PRECISION,
	cash DOUBLE PRECISION,
	buying_power DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS news_alert (
	id BIGSERIAL PRIMARY KEY,
	keyword TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_news_alert_created_at ON news_alert (created_at);
`

// InitSchema creates all tables idempotently.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// InsertRaw writes one raw item. A duplicate url is absorbed silently and
// reported as not-inserted.
func (r *Repository) InsertRaw(ctx context.Context, item types.RawItem) (bool, error) {
	if item.URL == "" {
		return false, nil
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO raw_news (source, title, url, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
	`, item.Source, item.Title, item.URL, item.FetchedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert raw item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) InsertAnalysis(ctx context.Context, rec types.AnalysisRecord) (bool, error) {
	var ticker any
	if rec.Ticker != "" {
		ticker = rec.Ticker
	}

	tags := rec.RiskTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("marshal risk tags: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO sentiment_signal (ticker, sentiment, summary, risk_tags, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ticker, rec.Sentiment, rec.Summary, tagsJSON, rec.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert analysis record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) QueryAnalysisBetween(ctx context.Context, start, end time.Time) ([]types.AnalysisRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ticker, sentiment, summary, risk_tags, created_at
		FROM sentiment_signal
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query analysis records: %w", err)
	}
	defer rows.Close()

	var records []types.AnalysisRecord
	for rows.Next() {
		var rec types.AnalysisRecord
		var ticker *string
		var tagsJSON []byte
		if err := rows.Scan(&ticker, &rec.Sentiment, &rec.Summary, &tagsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		if ticker != nil {
			rec.Ticker = *ticker
		}
		if err := json.Unmarshal(tagsJSON, &rec.RiskTags); err != nil {
			return nil, fmt.Errorf("unmarshal risk tags: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analysis rows: %w", err)
	}
	return records, nil
}

func (r *Repository) InsertExecution(ctx context.Context, exec types.TradeExecution) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO trade_execution (ticker, amount_usd, price, qty, mode, order_status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, exec.Ticker, exec.AmountUSD, exec.Price, exec.Qty, exec.Mode,
		nullable(exec.OrderStatus), nullable(exec.Error), exec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *Repository) CountExecutionsSince(ctx context.Context, start time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM trade_execution WHERE created_at >= $1
	`, start.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

func (r *Repository) QueryExecutionsSince(ctx context.Context, start time.Time) ([]types.TradeExecution, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ticker, amount_usd, COALESCE(price, 0), COALESCE(qty, 0), mode,
		       COALESCE(order_status, ''), COALESCE(error, ''), created_at
		FROM trade_execution
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, start.UTC())
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var execs []types.TradeExecution
	for rows.Next() {
		var e types.TradeExecution
		if err := rows.Scan(&e.Ticker, &e.AmountUSD, &e.Price, &e.Qty, &e.Mode,
			&e.OrderStatus, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execution rows: %w", err)
	}
	return execs, nil
}

func (r *Repository) InsertAccountSnapshot(ctx context.Context, v types.AccountValues, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO account_snapshot (net_liquidation, cash, buying_power, created_at)
		VALUES ($1, $2, $3, $4)
	`, v.NetLiquidation, v.Cash, v.BuyingPower, at.UTC())
	if err != nil {
		return fmt.Errorf("insert account snapshot: %w", err)
	}
	return nil
}

func (r *Repository) LatestAccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT net_liquidation, cash, buying_power, created_at
		FROM account_snapshot
		ORDER BY created_at DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query account snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var snap types.AccountSnapshot
	if err := rows.Scan(&snap.NetLiquidation, &snap.Cash, &snap.BuyingPower, &snap.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan account snapshot: %w", err)
	}
	return &snap, nil
}

func (r *Repository) InsertAlerts(ctx context.Context, alerts []types.NewsAlert) (int, error) {
	inserted := 0
	for _, a := range alerts {
		_, err := r.db.Exec(ctx, `
			INSERT INTO news_alert (keyword, source, title, url, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, a.Keyword, a.Source, a.Title, nullable(a.URL), a.CreatedAt.UTC())
		if err != nil {
			return inserted, fmt.Errorf("insert alert: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

func (r *Repository) QueryAlertsSince(ctx context.Context, start time.Time) ([]types.NewsAlert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT keyword, source, title, COALESCE(url, ''), created_at
		FROM news_alert
		WHERE created_at >= $1
		ORDER BY keyword, created_at
	`, start.UTC())
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.NewsAlert
	for rows.Next() {
		var a types.NewsAlert
		if err := rows.Scan(&a.Keyword, &a.Source, &a.Title, &a.URL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alert rows: %w", err)
	}
	return alerts, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
