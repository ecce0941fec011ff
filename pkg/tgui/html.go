package tgui

import (
	"html"
	"strings"
)

// H is HTML already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw trusts s as HTML.
func Raw(s string) H { return H(s) }

func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

func tag(name, text string) H {
	var b strings.Builder
	b.Grow(len(text) + 2*len(name) + 5)
	b.WriteString("<" + name + ">")
	b.WriteString(html.EscapeString(text))
	b.WriteString("</" + name + ">")
	return H(b.String())
}

// JoinH joins the parts that are not blank.
func JoinH(sep string, parts ...H) H {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) != "" {
			kept = append(kept, string(p))
		}
	}
	return H(strings.Join(kept, sep))
}
