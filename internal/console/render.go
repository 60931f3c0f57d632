package console

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns reply text into what is printed.
type Renderer interface {
	Render(text string) string
}

// PlainRenderer prints replies unchanged.
type PlainRenderer struct{}

func (PlainRenderer) Render(text string) string {
	return text
}

// MarkdownRenderer renders replies as terminal markdown. It falls back to
// the raw text if rendering fails.
type MarkdownRenderer struct {
	r *glamour.TermRenderer
}

func NewMarkdownRenderer(width int) (*MarkdownRenderer, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &MarkdownRenderer{r: r}, nil
}

func (m *MarkdownRenderer) Render(text string) string {
	out, err := m.r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// NewRenderer picks markdown rendering only when asked for and out is a
// terminal; piped output always gets the raw reply.
func NewRenderer(markdown bool, out *os.File) Renderer {
	if !markdown || !term.IsTerminal(int(out.Fd())) {
		return PlainRenderer{}
	}
	width, _, err := term.GetSize(int(out.Fd()))
	if err != nil {
		width = 80
	}
	r, err := NewMarkdownRenderer(width)
	if err != nil {
		return PlainRenderer{}
	}
	return r
}
