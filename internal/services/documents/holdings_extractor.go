package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/transform"
)

const (
	// MaxPromptChars bounds the statement text sent to the model
	MaxPromptChars = 4000
	// DefaultShares is assumed when a holding names no quantity
	DefaultShares = 100
)

const holdingsSystemPrompt = "You are a financial analyst expert at extracting portfolio data from documents."

// holdingsReply is the JSON shape the model is asked to return
type holdingsReply struct {
	Holdings []struct {
		Ticker string   `json:"ticker"`
		Shares *float64 `json:"shares"`
	} `json:"holdings"`
}

// HoldingsExtractor reads holdings out of statement text with an LLM
type HoldingsExtractor struct {
	llm    interfaces.ContentGenerator
	model  string
	logger arbor.ILogger
}

// NewHoldingsExtractor creates a holdings extractor. An empty model uses the default provider model.
func NewHoldingsExtractor(llm interfaces.ContentGenerator, model string, logger arbor.ILogger) *HoldingsExtractor {
	return &HoldingsExtractor{
		llm:    llm,
		model:  model,
		logger: logger,
	}
}

// ExtractHoldings asks the model for {ticker, shares} pairs found in text.
// Tickers are cleaned; duplicate tickers are summed.
func (h *HoldingsExtractor) ExtractHoldings(ctx context.Context, text string) (models.Holdings, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no document text to extract holdings from")
	}

	resp, err := h.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Model:             h.model,
		Temperature:       0.1,
		SystemInstruction: holdingsSystemPrompt,
		Messages: []interfaces.Message{
			{Role: "user", Content: buildHoldingsPrompt(text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("holdings extraction failed: %w", err)
	}

	holdings, err := ParseHoldingsReply(resp.Text)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Int("holdings", len(holdings)).
		Strs("tickers", holdings.Tickers()).
		Str("provider", resp.Provider).
		Msg("Extracted holdings from document")

	return holdings, nil
}

func buildHoldingsPrompt(text string) string {
	return fmt.Sprintf(`Analyze the following document content and extract stock portfolio information.
Extract all stock tickers and the number of shares held. Look for:
- Stock symbols (like AAPL, MSFT, GOOGL, etc.)
- Company names that can be mapped to tickers
- Number of shares, quantities, or positions

Content:
%s

Return the data as a JSON object with this exact format:
{
  "holdings": [
    {"ticker": "AAPL", "shares": 100},
    {"ticker": "MSFT", "shares": 50}
  ]
}`, transform.Truncate(text, MaxPromptChars))
}

// ParseHoldingsReply parses the first JSON object in a model reply.
// A holding without shares gets DefaultShares; negative shares are rejected.
func ParseHoldingsReply(text string) (models.Holdings, error) {
	var reply holdingsReply
	if err := transform.DecodeFirstJSONObject(text, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse holdings reply: %w", err)
	}

	holdings := make(models.Holdings)
	for _, item := range reply.Holdings {
		ticker := common.Clean(item.Ticker)
		if ticker == "" {
			continue
		}
		shares := float64(DefaultShares)
		if item.Shares != nil {
			shares = *item.Shares
		}
		holdings[ticker] += shares
	}

	if err := holdings.Validate(); err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("no holdings found in reply")
	}
	return holdings, nil
}
