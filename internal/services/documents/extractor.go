// -----------------------------------------------------------------------
// Document Extractor - plain text from uploaded holdings statements
// PDF via pdfcpu, HTML via the transform service, CSV and text as-is
// -----------------------------------------------------------------------

package documents

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/services/transform"
)

// Document kinds understood by the extractor
const (
	KindPDF  = "pdf"
	KindHTML = "html"
	KindCSV  = "csv"
	KindText = "text"
)

var (
	// Literal string operands in a PDF content stream, e.g. (Apple Inc.)
	pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
	// Text showing operators and the positioning operators that start a new line
	pdfTextOpRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*(?:Tj|'|")|\[((?:\\.|[^\]\\])*)\]\s*TJ|\b(?:Td|TD|ET)\b|T\*`)
)

// Extractor implements interfaces.DocumentExtractor
type Extractor struct {
	transform *transform.Service
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.DocumentExtractor = (*Extractor)(nil)

// NewExtractor creates a new document extractor
func NewExtractor(transformer *transform.Service, logger arbor.ILogger) *Extractor {
	return &Extractor{
		transform: transformer,
		logger:    logger,
	}
}

// Kind maps a MIME type, file name or extension to a document kind.
// Returns "" for unsupported inputs.
func Kind(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch ct {
	case "application/pdf":
		return KindPDF
	case "text/html", "application/xhtml+xml":
		return KindHTML
	case "text/csv", "application/csv":
		return KindCSV
	case "text/plain", "text/markdown":
		return KindText
	}

	ext := filepath.Ext(ct)
	if ext == "" {
		ext = "." + ct
	}
	switch ext {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	case ".csv":
		return KindCSV
	case ".txt", ".text", ".md":
		return KindText
	}
	return ""
}

// ExtractText returns the plain text of a document
func (e *Extractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}

	kind := Kind(contentType)
	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = e.extractPDF(ctx, data)
	case KindHTML:
		text, err = e.transform.HTMLToText(string(data))
	case KindCSV:
		text, err = csvToText(data)
	case KindText:
		text = string(data)
	default:
		return "", fmt.Errorf("unsupported document type: %q", contentType)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s text: %w", kind, err)
	}

	text = strings.TrimSpace(text)
	e.logger.Debug().
		Str("kind", kind).
		Int("bytes", len(data)).
		Int("text_length", len(text)).
		Msg("Extracted document text")

	if text == "" {
		return "", fmt.Errorf("no text found in %s document", kind)
	}
	return text, nil
}

// extractPDF writes data to a temp file for pdfcpu, extracts the page content
// streams and pulls the text operands out of them in page order.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "pulse-pdf-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "statement.pdf")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF context: %w", err)
	}

	outDir := filepath.Join(tempDir, "content")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create content dir: %w", err)
	}

	if err := api.ExtractContentFile(tempFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("failed to read content dir: %w", err)
	}

	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(pageSuffix(file.Name()), "page_%d", &pageNum); err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] += ContentStreamText(string(content))
	}

	pages := make([]int, 0, len(pageTexts))
	for p := range pageTexts {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var builder strings.Builder
	for _, p := range pages {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(pageTexts[p])
	}

	e.logger.Debug().
		Int("page_count", pdfCtx.PageCount).
		Int("pages_with_content", len(pages)).
		Msg("Extracted PDF content")

	return builder.String(), nil
}

// pageSuffix returns the "page_N..." tail of a pdfcpu content file name
// such as "statement_Content_page_1.txt".
func pageSuffix(name string) string {
	if idx := strings.LastIndex(name, "page_"); idx >= 0 {
		return name[idx:]
	}
	return name
}

// ContentStreamText extracts the literal text operands of a PDF content stream,
// breaking lines on text positioning operators.
func ContentStreamText(stream string) string {
	var builder strings.Builder
	for _, m := range pdfTextOpRe.FindAllStringSubmatchIndex(stream, -1) {
		switch {
		case m[2] >= 0:
			builder.WriteString(unescapePDFString(stream[m[2]:m[3]]))
		case m[4] >= 0:
			for _, s := range pdfStringRe.FindAllStringSubmatch(stream[m[4]:m[5]], -1) {
				builder.WriteString(unescapePDFString(s[1]))
			}
		default:
			builder.WriteString("\n")
		}
	}

	lines := strings.Split(builder.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func unescapePDFString(s string) string {
	replacer := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, " ", `\r`, " ", `\t`, " ")
	return replacer.Replace(s)
}

// csvToText renders CSV rows as tab separated lines
func csvToText(data []byte) (string, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, strings.Join(record, "\t"))
	}
	return strings.Join(lines, "\n"), nil
}
