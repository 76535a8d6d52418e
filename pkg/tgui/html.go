// Package tgui builds message bodies for Telegram's HTML parse mode.
package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode="HTML".
// Values of type H are treated as already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Escf formats then escapes.
func Escf(format string, args ...any) H { return Esc(fmt.Sprintf(format, args...)) }

func B(s string) H    { return H("<b>" + html.EscapeString(s) + "</b>") }
func Code(s string) H { return H("<code>" + html.EscapeString(s) + "</code>") }

// Link builds an anchor; both the text and the href are escaped.
func Link(text, url string) H {
	return H(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`)
}

// Doc accumulates lines of safe HTML. The zero value is ready to use.
type Doc struct {
	b strings.Builder
}

// Line writes parts followed by a newline.
func (d *Doc) Line(parts ...H) *Doc {
	for _, p := range parts {
		d.b.WriteString(string(p))
	}
	d.b.WriteByte('\n')
	return d
}

// Blank writes an empty line.
func (d *Doc) Blank() *Doc {
	d.b.WriteByte('\n')
	return d
}

// String returns the document without trailing newlines.
func (d *Doc) String() string { return strings.TrimRight(d.b.String(), "\n") }
