package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// Service converts quote pages and HTML statements into text an LLM can read
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new transform service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// HTMLToMarkdown converts HTML content to markdown.
// baseURL is used for resolving relative links. Falls back to plain text
// when conversion fails or produces nothing.
func (s *Service) HTMLToMarkdown(html string, baseURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	s.logger.Debug().
		Int("html_length", len(html)).
		Str("base_url", baseURL).
		Msg("Converting HTML to markdown")

	converter := md.NewConverter(baseURL, true, nil)
	converter.Remove("script", "style", "noscript", "svg")

	converted, err := converter.ConvertString(html)
	if err != nil || strings.TrimSpace(converted) == "" {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using plain text")
		return s.HTMLToText(html)
	}

	return blankLinesRe.ReplaceAllString(converted, "\n\n"), nil
}

// HTMLToText returns the visible text of an HTML document, one block per line
func (s *Service) HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, svg").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3, h4, h5, h6, table").Each(func(i int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(i int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// Truncate shortens text to at most max runes for prompt budgets
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// ErrNoJSONObject is returned when a reply holds no decodable JSON object
var ErrNoJSONObject = errors.New("no JSON object in reply")

// DecodeFirstJSONObject decodes the first complete JSON object in text into v.
// Prose and braces after the object are ignored.
func DecodeFirstJSONObject(text string, v any) error {
	var lastErr error
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw json.RawMessage
		err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw)
		if err == nil {
			return json.Unmarshal(raw, v)
		}
		lastErr = err

		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrNoJSONObject, lastErr)
	}
	return ErrNoJSONObject
}
