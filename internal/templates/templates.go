// Package templates provides the embedded newsletter email layout with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.html
// 2. Embedded default: internal/templates/{name}.html
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

//go:embed *.html
var fs embed.FS

// EmailTemplate is the name of the newsletter email layout
const EmailTemplate = "email"

// EmailData is the input of the email layout. Content is trusted rendered HTML.
type EmailData struct {
	Title   string
	Content template.HTML
	Footer  string
}

// GetTemplate loads a template by name with resolution order:
// 1. User override: templatesDir/{name}.html
// 2. Embedded default: internal/templates/{name}.html
func GetTemplate(name string, templatesDir string) (*template.Template, error) {
	if templatesDir != "" {
		userPath := filepath.Join(templatesDir, name+".html")
		if data, err := os.ReadFile(userPath); err == nil {
			return parseTemplate(name, data)
		}
	}

	data, err := fs.ReadFile(name + ".html")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", name)
	}
	return parseTemplate(name, data)
}

// RenderEmail wraps rendered HTML content in the email layout
func RenderEmail(templatesDir string, data EmailData) (string, error) {
	tmpl, err := GetTemplate(EmailTemplate, templatesDir)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", EmailTemplate, err)
	}
	return buf.String(), nil
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".html") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".html"))
		}
	}
	return names, nil
}

func parseTemplate(name string, data []byte) (*template.Template, error) {
	t, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return t, nil
}
