package documents

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/services/transform"
)

func newTestExtractor() *Extractor {
	logger := arbor.NewLogger()
	return NewExtractor(transform.NewService(logger), logger)
}

func TestKind(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"application/pdf", KindPDF},
		{"text/html; charset=utf-8", KindHTML},
		{"text/csv", KindCSV},
		{"text/plain", KindText},
		{".pdf", KindPDF},
		{"PDF", KindPDF},
		{"statement.HTM", KindHTML},
		{"/tmp/holdings.csv", KindCSV},
		{"notes.md", KindText},
		{"application/vnd.ms-excel", ""},
		{".docx", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.input))
		})
	}
}

func TestContentStreamText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "one operator per line",
			stream: "BT\n/F1 12 Tf\n72 712 Td\n(Apple Inc.) Tj\n0 -14 Td\n(AAPL 10) Tj\nET",
			want:   "Apple Inc.\nAAPL 10",
		},
		{
			name:   "single line",
			stream: "BT /F1 12 Tf 31.19 794.57 Td (MSFT 5 shares) Tj ET",
			want:   "MSFT 5 shares",
		},
		{
			name:   "kerned array",
			stream: "BT 72 700 Td [(Micro) -20 (soft)] TJ ET",
			want:   "Microsoft",
		},
		{
			name:   "escaped parentheses",
			stream: `BT 72 700 Td (Alphabet \(Class A\)) Tj ET`,
			want:   "Alphabet (Class A)",
		},
		{
			name:   "graphics only",
			stream: "q 1 0 0 1 0 0 cm 0 0 100 100 re f Q",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentStreamText(tt.stream))
		})
	}
}

func TestExtractText_Formats(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()

	text, err := e.ExtractText(ctx, []byte(`<html><body><table><tr><td>AAPL</td><td>10</td></tr></table></body></html>`), "text/html")
	require.NoError(t, err)
	assert.Contains(t, text, "AAPL 10")

	text, err = e.ExtractText(ctx, []byte("ticker,shares\nAAPL,10\nMSFT,5\n"), ".csv")
	require.NoError(t, err)
	assert.Equal(t, "ticker\tshares\nAAPL\t10\nMSFT\t5", text)

	text, err = e.ExtractText(ctx, []byte("  GOOGL 3 shares \n"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "GOOGL 3 shares", text)
}

func TestExtractText_Errors(t *testing.T) {
	e := newTestExtractor()
	ctx := context.Background()

	_, err := e.ExtractText(ctx, nil, "text/plain")
	assert.Error(t, err)

	_, err = e.ExtractText(ctx, []byte("data"), ".docx")
	assert.Error(t, err)

	_, err = e.ExtractText(ctx, []byte("   \n "), "text/plain")
	assert.Error(t, err)

	_, err = e.ExtractText(ctx, []byte("not a pdf"), "application/pdf")
	assert.Error(t, err)
}

func TestExtractText_PDF(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 10, "Brokerage Statement")
	pdf.Ln(10)
	pdf.Cell(0, 10, "AAPL 10 shares")

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	text, err := newTestExtractor().ExtractText(context.Background(), buf.Bytes(), "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Brokerage Statement")
	assert.Contains(t, text, "AAPL 10 shares")
}
