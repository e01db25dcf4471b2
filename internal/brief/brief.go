// Package brief renders the daily markdown summary: account state, trades
// executed today and keyword alerts grouped by keyword.
package brief

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ai-quant/internal/interfaces"
)

// Generate writes dir/<date>-brief.md covering the UTC day containing now
// and returns the path it wrote.
func Generate(ctx context.Context, st interfaces.Store, dir string, now time.Time) (string, error) {
	day := now.UTC().Truncate(24 * time.Hour)

	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Brief %s\n\n", day.Format("2006-01-02"))

	snap, err := st.LatestAccountSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("query account snapshot: %w", err)
	}
	b.WriteString("## Account\n\n")
	if snap == nil {
		b.WriteString("No account snapshot recorded.\n\n")
	} else {
		fmt.Fprintf(&b, "| Net Liquidation | Cash | Buying Power | As Of |\n")
		fmt.Fprintf(&b, "|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %.2f | %.2f | %.2f | %s |\n\n",
			snap.NetLiquidation, snap.Cash, snap.BuyingPower, snap.CreatedAt.UTC().Format(time.RFC3339))
	}

	execs, err := st.QueryExecutionsSince(ctx, day)
	if err != nil {
		return "", fmt.Errorf("query executions: %w", err)
	}
	b.WriteString("## Trades\n\n")
	if len(execs) == 0 {
		b.WriteString("No trades today.\n\n")
	} else {
		fmt.Fprintf(&b, "| Ticker | Mode | Notional | Price | Qty | Status |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
		for _, e := range execs {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %.4f | %.6f | %s |\n",
				e.Ticker, e.Mode, e.AmountUSD, e.Price, e.Qty, e.OrderStatus)
		}
		b.WriteString("\n")
	}

	alerts, err := st.QueryAlertsSince(ctx, day)
	if err != nil {
		return "", fmt.Errorf("query alerts: %w", err)
	}
	b.WriteString("## Alerts\n\n")
	if len(alerts) == 0 {
		b.WriteString("No keyword alerts today.\n")
	} else {
		byKeyword := map[string][]string{}
		for _, a := range alerts {
			byKeyword[a.Keyword] = append(byKeyword[a.Keyword], fmt.Sprintf("- [%s](%s)", a.Title, a.URL))
		}
		keys := make([]string, 0, len(byKeyword))
		for k := range byKeyword {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "### %s\n\n", k)
			b.WriteString(strings.Join(byKeyword[k], "\n"))
			b.WriteString("\n\n")
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, day.Format("2006-01-02")+"-brief.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
