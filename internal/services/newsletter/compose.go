package newsletter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/portfolio"
)

// HoldingSection is the commentary block of one analysed holding
type HoldingSection struct {
	Ticker      string
	DisplayName string
	PctChange   float64
	Commentary  string
}

// SnapshotRow is one line of the portfolio snapshot table. Nil changes did not resolve.
type SnapshotRow struct {
	Ticker  string
	Company string
	Shares  float64
	Weekly  *float64
	YTD     *float64
}

// Newsletter is the composed content of one user's newsletter
type Newsletter struct {
	Subject       string
	Date          time.Time
	Intro         string
	MarketRecap   string
	Holdings      []HoldingSection
	Snapshot      []SnapshotRow
	FailedTickers []string
}

// BuildSnapshot lists every held ticker with its weekly and year to date change
func BuildSnapshot(holdings models.Holdings, weekly, ytd map[string]models.Result) []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(holdings))
	for _, ticker := range holdings.Tickers() {
		rows = append(rows, SnapshotRow{
			Ticker:  ticker,
			Company: portfolio.CompanyName(ticker),
			Shares:  holdings[ticker],
			Weekly:  pctOf(weekly[ticker]),
			YTD:     pctOf(ytd[ticker]),
		})
	}
	return rows
}

func pctOf(r models.Result) *float64 {
	if !r.OK() {
		return nil
	}
	pct := r.Record.PctChange
	return &pct
}

// Markdown renders the newsletter as a single markdown document
func (n *Newsletter) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", n.Subject)
	fmt.Fprintf(&b, "_%s_\n\n", n.Date.Format("January 02, 2006"))
	b.WriteString(strings.TrimSpace(n.Intro))
	b.WriteString("\n\n")

	b.WriteString("## Market Recap\n\n")
	recap := strings.TrimSpace(n.MarketRecap)
	if recap == "" {
		recap = RecapPlaceholder
	}
	b.WriteString(recap)
	b.WriteString("\n\n")

	if len(n.Holdings) > 0 {
		b.WriteString("## Holdings Analysis\n\n")
		for _, h := range n.Holdings {
			fmt.Fprintf(&b, "### %s (%s) %+.2f%%\n\n", h.DisplayName, h.Ticker, h.PctChange)
			b.WriteString(strings.TrimSpace(h.Commentary))
			b.WriteString("\n\n")
		}
	}

	if len(n.Snapshot) > 0 {
		b.WriteString("## Portfolio Snapshot\n\n")
		b.WriteString("| Ticker | Company | Shares | Week | YTD |\n")
		b.WriteString("|---|---|---:|---:|---:|\n")
		for _, row := range n.Snapshot {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				row.Ticker, row.Company, formatShares(row.Shares), formatPct(row.Weekly), formatPct(row.YTD))
		}
		b.WriteString("\n")
	}

	if len(n.FailedTickers) > 0 {
		fmt.Fprintf(&b, "_Prices could not be resolved for: %s._\n", strings.Join(n.FailedTickers, ", "))
	}

	return strings.TrimSpace(b.String()) + "\n"
}

func formatPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *p)
}

func formatShares(shares float64) string {
	if shares == float64(int64(shares)) {
		return fmt.Sprintf("%d", int64(shares))
	}
	return fmt.Sprintf("%.4g", shares)
}
