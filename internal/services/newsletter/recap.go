package newsletter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

const (
	// MaxRecapBullets caps the market recap length
	MaxRecapBullets = 5
	// RecapPlaceholder is shown when the recap cannot be generated
	RecapPlaceholder = "_Market recap is unavailable this week. Key events could not be summarized at this time._"
)

// MarketRecap writes the weekly market update section with web search
type MarketRecap struct {
	llm    interfaces.ContentGenerator
	model  string
	clock  common.Clock
	logger arbor.ILogger
}

// NewMarketRecap creates a market recap writer. llm may be nil, in which case
// Generate always returns the placeholder.
func NewMarketRecap(llm interfaces.ContentGenerator, model string, clock common.Clock, logger arbor.ILogger) *MarketRecap {
	return &MarketRecap{
		llm:    llm,
		model:  model,
		clock:  clock,
		logger: logger,
	}
}

// Generate returns up to MaxRecapBullets markdown bullets on the past week's market
// events relevant to tickers. Failures are logged and yield RecapPlaceholder.
func (m *MarketRecap) Generate(ctx context.Context, tickers []string) string {
	if m.llm == nil {
		return RecapPlaceholder
	}

	resp, err := m.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Model:        m.model,
		Temperature:  0.3,
		GoogleSearch: true,
		Messages: []interfaces.Message{
			{Role: "user", Content: m.buildPrompt(tickers)},
		},
	})
	if err != nil {
		m.logger.Error().Err(err).Strs("tickers", tickers).Msg("Market recap generation failed")
		return RecapPlaceholder
	}

	text := limitBullets(stripOuterCodeFences(resp.Text), MaxRecapBullets)
	if text == "" {
		m.logger.Warn().Msg("Market recap returned an empty response")
		return RecapPlaceholder
	}

	if len(resp.Sources) > 0 && !strings.Contains(text, "http") {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\nSources: ")
		for i, src := range resp.Sources {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "[%d](%s)", i+1, src)
		}
		text = b.String()
	}

	m.logger.Info().
		Int("length", len(text)).
		Int("sources", len(resp.Sources)).
		Msg("Market recap generated")

	return text
}

func (m *MarketRecap) buildPrompt(tickers []string) string {
	today := m.clock.Now().UTC()
	weekAgo := today.AddDate(0, 0, -7)

	return fmt.Sprintf(`You are a financial news analyst. Your task is to create a concise 'Weekly Market Update' section covering significant market activities and news from the past week, specifically between %s (%s) and %s (%s).
The section should be no more than %d bullet points and focus on macroeconomic events, political news, or broad market trends that have likely impacted, or are relevant to, a portfolio holding these tickers: %s.
For each point, briefly explain the event and its potential relevance to these holdings or their sectors.
Examples of what to look for:
- Major economic data releases (inflation, employment, GDP) and their implications for these stocks.
- Central bank policy shifts (Federal Reserve, ECB) affecting market sentiment towards these assets.
- Significant geopolitical events with broad market impact or specific sector relevance to the given tickers.
- Noteworthy movements in major indices (S&P 500, Nasdaq) if they reflect a trend impacting the portfolio.
- Key commodity price changes (oil, gold) if relevant to any of the specified tickers.
Prioritize information that would help an investor understand the context for their portfolio's performance.
Use credible, cited news sources found via web search. Incorporate inline markdown links to the source within each bullet point.

Return only the bullet points, as a markdown list, ready for publication.`,
		weekAgo.Format(models.DateFormat), weekAgo.Weekday(), today.Format(models.DateFormat), today.Weekday(),
		MaxRecapBullets, strings.Join(tickers, ", "))
}

// limitBullets keeps text up to and including the nth top-level bullet
func limitBullets(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	bullets := 0
	for i, line := range lines {
		if isTopLevelBullet(line) {
			bullets++
			if bullets > n {
				return strings.TrimSpace(strings.Join(lines[:i], "\n"))
			}
		}
	}
	return strings.TrimSpace(text)
}

func isTopLevelBullet(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "• ")
}
