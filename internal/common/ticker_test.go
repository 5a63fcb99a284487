package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickerNormalizer_Normalize(t *testing.T) {
	n := NewTickerNormalizer(nil)

	tests := []struct {
		input string
		want  string
	}{
		{"BRKB", "BRK.B"},
		{"BRKA", "BRK.A"},
		{"BRK-B", "BRK.B"},
		{"brk/b", "BRK.B"},
		{"GOOG", "GOOGL"},
		{"GOOGL", "GOOGL"},
		{"AAPL", "AAPL"},
		{"  msft  ", "MSFT"},
		{"NASDAQ:MSFT", "MSFT"},
		{"NYSE:BRKB", "BRK.B"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := n.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTickerNormalizer_Variations(t *testing.T) {
	n := NewTickerNormalizer(nil)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"aliased share class", "BRKB", []string{"BRK.B", "BRKB"}},
		{"aliased class A", "BRKA", []string{"BRK.A", "BRKA"}},
		{"aliased without heuristic", "GOOG", []string{"GOOGL", "GOOG"}},
		{"four letter heuristic", "ABCD", []string{"ABC.D", "ABCD"}},
		{"short ticker", "GE", []string{"GE"}},
		{"five letter fund", "DRGVX", []string{"DRGVX"}},
		{"already dotted", "BRK.B", []string{"BRK.B"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Variations(tt.input))
		})
	}
}

func TestTickerNormalizer_VariationsOrder(t *testing.T) {
	n := NewTickerNormalizer(nil)
	variations := n.Variations("BRKB")

	dotted, literal := -1, -1
	for i, v := range variations {
		switch v {
		case "BRK.B":
			dotted = i
		case "BRKB":
			literal = i
		}
	}

	assert.GreaterOrEqual(t, dotted, 0)
	assert.Greater(t, literal, dotted, "normalized form must be tried before the literal input")
	assert.Equal(t, "BRKB", variations[len(variations)-1], "original input is always last")
}

func TestTickerNormalizer_ExtraAliases(t *testing.T) {
	n := NewTickerNormalizer(map[string]string{
		"fb":   "meta",
		"GOOG": "GOOG",
	})

	assert.Equal(t, "META", n.Normalize("FB"))
	assert.Equal(t, "GOOG", n.Normalize("GOOG"), "extra entries override defaults")
}

func TestCleanTickers(t *testing.T) {
	got := CleanTickers([]string{" aapl", "AAPL", "", "nasdaq:msft", "MSFT", "nvda"})
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, got)
}
