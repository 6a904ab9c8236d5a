// Package mailtext reduces e-mail bodies to the single line of text the
// parser reads.
package mailtext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var spaceRe = regexp.MustCompile(`[\s\p{Z}]+`)

// Plain collapses runs of whitespace, including no-break spaces, to one space.
func Plain(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// FromHTML drops markup, style and script blocks, decodes entities and
// collapses whitespace. Text in separate elements is kept apart by a space.
func FromHTML(s string) string {
	var b strings.Builder
	var skip atom.Atom

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return Plain(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Style || a == atom.Script {
				skip = a
			}
			b.WriteString(" ")
		case html.EndTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == skip {
				skip = 0
			}
			b.WriteString(" ")
		case html.SelfClosingTagToken:
			b.WriteString(" ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
