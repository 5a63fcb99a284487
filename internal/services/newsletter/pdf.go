package newsletter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont       = "Arial"
	pdfFontSize   = 10.0
	pdfLineHeight = 5.0
	pdfMargin     = 15.0
	pdfPageWidth  = 210.0 - 2*pdfMargin
)

// PDFRenderer lays out newsletter markdown as an A4 PDF attachment
type PDFRenderer struct {
	logger arbor.ILogger
}

// NewPDFRenderer creates a PDF renderer
func NewPDFRenderer(logger arbor.ILogger) *PDFRenderer {
	return &PDFRenderer{logger: logger}
}

// Render converts markdown to PDF bytes. title is stored in the document metadata.
func (p *PDFRenderer) Render(markdown, title string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetCreator("Pulse", true)
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont(pdfFont, "I", 8)
		doc.SetTextColor(136, 136, 136)
		doc.CellFormat(0, 5, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "C", false, 0, "")
		doc.SetTextColor(0, 0, 0)
	})
	doc.AddPage()
	doc.SetFont(pdfFont, "", pdfFontSize)

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify))
	source := []byte(markdown)
	root := md.Parser().Parse(text.NewReader(source))

	r := &pdfWriter{
		pdf:       doc,
		source:    source,
		translate: doc.UnicodeTranslatorFromDescriptor(""),
		size:      pdfFontSize,
	}
	if err := ast.Walk(root, r.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	p.logger.Debug().
		Str("title", title).
		Int("markdown_len", len(markdown)).
		Int("pdf_size", buf.Len()).
		Msg("Newsletter PDF rendered")

	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfWriter) setFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, r.size)
}

func (r *pdfWriter) write(s string) {
	r.pdf.Write(pdfLineHeight, r.translate(s))
}

func (r *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			r.size = map[int]float64{1: 16, 2: 13, 3: 11}[node.Level]
			if r.size == 0 {
				r.size = pdfFontSize
			}
			r.bold = true
		} else {
			r.size = pdfFontSize
			r.bold = false
			r.pdf.Ln(pdfLineHeight + 2)
		}
		r.setFont()

	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(pdfLineHeight)
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}

	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.HardLineBreak() {
				r.pdf.Ln(pdfLineHeight)
			} else if node.SoftLineBreak() {
				r.write(" ")
			}
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.setFont()

	case *ast.CodeSpan:
		if entering {
			r.write(nodeText(node, r.source))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			r.writeLink(nodeText(node, r.source), string(node.Destination))
		}
		return ast.WalkSkipChildren, nil

	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.source))
			r.writeLink(url, url)
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.pdf.SetX(pdfMargin + float64(r.listLevel-1)*5)
			r.write("- ")
		}

	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.SetDrawColor(200, 200, 200)
			r.pdf.Line(pdfMargin, y, pdfMargin+pdfPageWidth, y)
			r.pdf.Ln(5)
		}

	case *extast.Table:
		if entering {
			r.table(tableRows(node, r.source))
		}
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (r *pdfWriter) writeLink(label, url string) {
	r.pdf.SetTextColor(0, 102, 204)
	r.pdf.WriteLinkString(pdfLineHeight, r.translate(label), url)
	r.pdf.SetTextColor(0, 0, 0)
}

// table draws rows with the first row as a filled header. Cells are single line.
func (r *pdfWriter) table(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	cols := len(rows[0])

	r.pdf.SetFont(pdfFont, "B", 9)
	widths := make([]float64, cols)
	total := 0.0
	for _, row := range rows {
		for j := 0; j < cols && j < len(row); j++ {
			if w := r.pdf.GetStringWidth(r.translate(row[j])) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}
	for _, w := range widths {
		total += w
	}
	scale := pdfPageWidth / total
	for j := range widths {
		widths[j] *= scale
	}

	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont(pdfFont, "B", 9)
			r.pdf.SetFillColor(240, 240, 240)
		} else {
			r.pdf.SetFont(pdfFont, "", 9)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = r.translate(row[j])
			}
			for r.pdf.GetStringWidth(cell) > widths[j]-2 && len(cell) > 1 {
				cell = cell[:len(cell)-1]
			}
			r.pdf.CellFormat(widths[j], 6, cell, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(3)
	r.setFont()
}

func tableRows(table *extast.Table, source []byte) [][]string {
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			var row []string
			for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
				row = append(row, nodeText(cell, source))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// nodeText concatenates the text segments below n
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
