// Package render is the presentation collaborator: raw chunk echo on the
// streaming hot path, one goldmark pass over the complete text once the
// response settles.
package render

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	codeBlockRegex = regexp.MustCompile(`(?s)<pre><code(?: class="language-[a-zA-Z0-9]+")?>(.*?)</code></pre>`)
	headingRegex   = regexp.MustCompile(`<h[1-6][^>]*>(.*?)</h[1-6]>`)
	strongRegex    = regexp.MustCompile(`<strong>(.*?)</strong>`)
	emRegex        = regexp.MustCompile(`<em>(.*?)</em>`)
	inlineCodeRe   = regexp.MustCompile(`<code>([^<]+)</code>`)
	listItemRegex  = regexp.MustCompile(`<li>(.*?)</li>`)
	htmlTagRegex   = regexp.MustCompile(`<[^>]+>`)
	multiNewline   = regexp.MustCompile(`\n{3,}`)
	markdownHint   = regexp.MustCompile("(^|\n)(#|```|[-*] |\\d+\\. |> )|\\*\\*|`")
)

// Terminal writes streamed chunks verbatim and re-renders the settled text
// as styled markdown.
type Terminal struct {
	out     io.Writer
	md      goldmark.Markdown
	heading lipgloss.Style
	code    lipgloss.Style
	errText lipgloss.Style
	rule    lipgloss.Style
}

// NewTerminal creates a renderer for the given theme ("dark" or "light").
func NewTerminal(out io.Writer, theme string) *Terminal {
	accent := lipgloss.Color("63")
	if theme == "light" {
		accent = lipgloss.Color("25")
	}
	return &Terminal{
		out: out,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
		),
		heading: lipgloss.NewStyle().Bold(true).Foreground(accent),
		code:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		errText: lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		rule:    lipgloss.NewStyle().Faint(true),
	}
}

// Chunk prints raw streamed text. No markdown work happens here.
func (t *Terminal) Chunk(text string) {
	fmt.Fprint(t.out, text)
}

// Settle performs the one rich render of the finished response. Plain
// answers just get a closing newline; the formatted view is appended only
// when the text actually carries markdown.
func (t *Terminal) Settle(full string) {
	fmt.Fprintln(t.out)
	if !markdownHint.MatchString(full) {
		return
	}
	fmt.Fprintln(t.out, t.rule.Render("── formatted ──"))
	fmt.Fprintln(t.out, t.renderMarkdown(full))
}

// Fail prints the user-facing error notice inline, where the response
// would have been.
func (t *Terminal) Fail(msg string) {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.errText.Render("Error: "+msg))
}

func (t *Terminal) renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := t.md.Convert([]byte(src), &buf); err != nil {
		return src
	}

	out := buf.String()
	out = codeBlockRegex.ReplaceAllStringFunc(out, func(m string) string {
		inner := codeBlockRegex.FindStringSubmatch(m)[1]
		return "\n" + t.code.Render(html.UnescapeString(strings.TrimRight(inner, "\n"))) + "\n"
	})
	out = headingRegex.ReplaceAllStringFunc(out, func(m string) string {
		inner := headingRegex.FindStringSubmatch(m)[1]
		return "\n" + t.heading.Render(htmlTagRegex.ReplaceAllString(inner, "")) + "\n"
	})
	out = strongRegex.ReplaceAllString(out, lipgloss.NewStyle().Bold(true).Render("$1"))
	out = emRegex.ReplaceAllString(out, lipgloss.NewStyle().Italic(true).Render("$1"))
	out = inlineCodeRe.ReplaceAllStringFunc(out, func(m string) string {
		inner := inlineCodeRe.FindStringSubmatch(m)[1]
		return t.code.Render(html.UnescapeString(inner))
	})
	out = listItemRegex.ReplaceAllString(out, "  • $1\n")
	out = strings.ReplaceAll(out, "<br>\n", "\n")
	out = strings.ReplaceAll(out, "<br />", "\n")
	out = htmlTagRegex.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	out = multiNewline.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
