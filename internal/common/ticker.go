// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// DefaultTickerAliases maps vendor-specific spellings to the canonical symbol
// the price providers accept.
var DefaultTickerAliases = map[string]string{
	"BRKB":  "BRK.B",
	"BRKA":  "BRK.A",
	"BRK-B": "BRK.B",
	"BRK-A": "BRK.A",
	"BRK/B": "BRK.B",
	"BRK/A": "BRK.A",
	"BFB":   "BF.B",
	"BF-B":  "BF.B",
	"GOOG":  "GOOGL",
}

// knownExchanges are exchange qualifiers stripped from "EXCHANGE:CODE" input.
var knownExchanges = map[string]bool{
	"NYSE":   true,
	"NASDAQ": true,
	"AMEX":   true,
	"ARCA":   true,
	"BATS":   true,
	"MUTF":   true,
	"OTC":    true,
}

// TickerNormalizer maps ticker spellings to canonical symbols and produces the
// ordered candidate list a resolver should try.
// Normalization is purely string based; candidates are validated by fetching.
type TickerNormalizer struct {
	aliases map[string]string
}

// NewTickerNormalizer creates a normalizer with the default alias table plus any extras.
// Extra entries override defaults.
func NewTickerNormalizer(extra map[string]string) *TickerNormalizer {
	aliases := make(map[string]string, len(DefaultTickerAliases)+len(extra))
	for k, v := range DefaultTickerAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.ToUpper(strings.TrimSpace(v))
		if k != "" && v != "" {
			aliases[k] = v
		}
	}
	return &TickerNormalizer{aliases: aliases}
}

// Clean trims, uppercases and strips a known exchange qualifier.
//   - " msft " -> "MSFT"
//   - "NASDAQ:MSFT" -> "MSFT"
func Clean(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if idx := strings.Index(ticker, ":"); idx > 0 {
		if knownExchanges[ticker[:idx]] {
			ticker = ticker[idx+1:]
		}
	}
	return ticker
}

// Normalize returns the canonical form of ticker using the alias table.
// Tickers without an alias are returned cleaned but otherwise unchanged.
func (n *TickerNormalizer) Normalize(ticker string) string {
	cleaned := Clean(ticker)
	if canonical, ok := n.aliases[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// Variations returns the candidates to try for ticker, in order:
// normalized form (if different), share-class heuristic, then the original input.
func (n *TickerNormalizer) Variations(ticker string) []string {
	original := Clean(ticker)
	if original == "" {
		return nil
	}

	candidates := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	normalized := n.Normalize(original)
	if normalized != original {
		add(normalized)
	}

	if _, aliased := n.aliases[original]; !aliased {
		add(shareClassVariant(original))
	}

	add(original)
	return candidates
}

// shareClassVariant inserts a dot before the final letter of a 4-letter ticker
// with a 3-letter root, e.g. "ABCD" -> "ABC.D". Returns "" when the shape does not match.
func shareClassVariant(ticker string) string {
	if len(ticker) != 4 {
		return ""
	}
	for i := 0; i < len(ticker); i++ {
		if ticker[i] < 'A' || ticker[i] > 'Z' {
			return ""
		}
	}
	return ticker[:3] + "." + ticker[3:]
}

// CleanTickers cleans and de-duplicates a ticker list, preserving order.
func CleanTickers(tickers []string) []string {
	result := make([]string, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		c := Clean(t)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		result = append(result, c)
	}
	return result
}
