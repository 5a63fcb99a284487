package newsletter

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/pulse/internal/templates"
)

// EmailFooter is printed under every rendered newsletter
const EmailFooter = "This newsletter was automatically generated by Pulse. It is not financial advice."

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithXHTML(),
	),
)

// MarkdownToHTML converts GitHub flavoured markdown to an HTML fragment
func MarkdownToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML converts the newsletter markdown and wraps it in the email layout.
// templatesDir may hold an email.html override.
func RenderHTML(markdown, title, templatesDir string) (string, error) {
	fragment, err := MarkdownToHTML(markdown)
	if err != nil {
		fragment = "<pre>" + template.HTMLEscapeString(markdown) + "</pre>"
	}

	return templates.RenderEmail(templatesDir, templates.EmailData{
		Title:   title,
		Content: template.HTML(fragment),
		Footer:  EmailFooter,
	})
}

// RenderText returns the plain text alternative of the newsletter markdown
func RenderText(markdown string) string {
	return strings.TrimSpace(markdown) + "\n\n--\n" + EmailFooter + "\n"
}

// stripOuterCodeFences removes a markdown code fence wrapping the whole content.
// An unclosed opening fence is stripped too.
func stripOuterCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	firstNewline := strings.Index(content, "\n")
	if firstNewline == -1 {
		return ""
	}

	inner := content[firstNewline+1:]
	if idx := strings.LastIndex(inner, "```"); idx != -1 && strings.TrimSpace(inner[idx+3:]) == "" {
		inner = inner[:idx]
	}

	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(inner), "`"))
}
