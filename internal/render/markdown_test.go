package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTMLFormatsMarkdown(t *testing.T) {
	out := string(NewMarkdown().HTML("**Cuti** tahunan:\n\n- 12 hari\n- tidak hangus"))
	require.Contains(t, out, "<strong>Cuti</strong>")
	require.Contains(t, out, "<li>12 hari</li>")
}

func TestHTMLStripsScripts(t *testing.T) {
	out := string(NewMarkdown().HTML("hi <script>alert(1)</script><img src=x onerror=alert(2)>"))
	require.NotContains(t, out, "<script")
	require.NotContains(t, out, "onerror")
}

func TestHTMLHighlightsCode(t *testing.T) {
	out := string(NewMarkdown().HTML("```go\nfunc main() {}\n```"))
	require.Contains(t, out, "<pre")
	require.Contains(t, out, "main")
}

func TestHTMLLinksOpenSafely(t *testing.T) {
	out := string(NewMarkdown().HTML("[docs](https://example.org)"))
	require.Contains(t, out, "nofollow")
	require.Contains(t, out, "noopener")
	require.Contains(t, out, `target="_blank"`)
}
