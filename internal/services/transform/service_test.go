package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestHTMLToText(t *testing.T) {
	s := NewService(arbor.NewLogger())

	html := `<html><head><script>var x = 1;</script><style>.a{}</style></head>
<body><h1>Holdings</h1><table><tr><td>AAPL</td><td>10</td></tr><tr><td>MSFT</td><td>5</td></tr></table></body></html>`

	text, err := s.HTMLToText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "Holdings")
	assert.Contains(t, text, "AAPL 10")
	assert.Contains(t, text, "MSFT 5")
	assert.NotContains(t, text, "var x")
}

func TestHTMLToMarkdown(t *testing.T) {
	s := NewService(arbor.NewLogger())

	out, err := s.HTMLToMarkdown(`<h2>Quote</h2><p>Previous close <b>181.18</b></p>`, "https://finance.yahoo.com")
	require.NoError(t, err)
	assert.Contains(t, out, "## Quote")
	assert.Contains(t, out, "**181.18**")

	empty, err := s.HTMLToMarkdown("   ", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestDecodeFirstJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]float64
		wantErr bool
	}{
		{"bare", `{"2024-01-05": 181.18}`, map[string]float64{"2024-01-05": 181.18}, false},
		{"fenced", "```json\n{\"2024-01-05\": 181.18}\n```", map[string]float64{"2024-01-05": 181.18}, false},
		{"trailing braces", "{\"2024-01-05\": 181.18}\nSources: {Yahoo Finance}", map[string]float64{"2024-01-05": 181.18}, false},
		{"leading braces", "Prices {as of Friday}: {\"2024-01-05\": 181.18}", map[string]float64{"2024-01-05": 181.18}, false},
		{"no object", "no prices today", nil, true},
		{"broken object", `{"2024-01-05": }`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]float64
			err := DecodeFirstJSONObject(tt.text, &got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSONObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
