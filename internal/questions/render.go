package questions

import (
	"fmt"
	"html"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/models"
)

// Renderer turns markdown and code snippets into HTML.
type Renderer interface {
	Markdown(md models.Markdown) string
	Snippet(code string, lineNumbers bool) string
}

// EscapeRenderer is the fallback renderer when the host supplies none. It
// emits the source text escaped, without markdown processing.
type EscapeRenderer struct{}

func (EscapeRenderer) Markdown(md models.Markdown) string {
	paragraphs := strings.Split(strings.TrimSpace(md), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(p))
	}
	return b.String()
}

func (EscapeRenderer) Snippet(code string, lineNumbers bool) string {
	return fmt.Sprintf(`<pre class="snippet" data-line-numbers="%t"><code>%s</code></pre>`,
		lineNumbers, html.EscapeString(strings.TrimRight(code, "\n")))
}
