package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListEmbeddedTemplates(t *testing.T) {
	names, err := ListEmbeddedTemplates()
	require.NoError(t, err)
	assert.Contains(t, names, EmailTemplate)
}

func TestRenderEmail_Embedded(t *testing.T) {
	out, err := RenderEmail("", EmailData{
		Title:   "Weekly <Pulse>",
		Content: "<h1>Hello</h1>",
		Footer:  "Sent by Pulse",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Hello</h1>")
	assert.Contains(t, out, "Weekly &lt;Pulse&gt;")
	assert.Contains(t, out, "Sent by Pulse")
}

func TestRenderEmail_UserOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "email.html"), []byte("<main>{{.Content}}</main>"), 0644))

	out, err := RenderEmail(dir, EmailData{Content: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "<main><p>x</p></main>", out)
}

func TestGetTemplate_Unknown(t *testing.T) {
	_, err := GetTemplate("missing", t.TempDir())
	assert.Error(t, err)
}
