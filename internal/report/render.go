package report

import (
	"github.com/charmbracelet/glamour"
)

const defaultRenderWidth = 80

// Renderer converts report markdown to styled terminal output.
type Renderer struct {
	renderer *glamour.TermRenderer
}

// NewRenderer builds a terminal renderer wrapping at width columns. Width
// zero or below falls back to the default. A failed construction downgrades
// rendering to raw markdown.
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = defaultRenderWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r = nil
	}
	return &Renderer{renderer: r}
}

// Render converts markdown to styled terminal output. On any rendering
// failure the raw markdown is returned unchanged.
func (r *Renderer) Render(markdown string) string {
	if markdown == "" || r.renderer == nil {
		return markdown
	}
	out, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
