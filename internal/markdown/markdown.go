// Package markdown rewrites CommonMark (plus ~~strikethrough~~) into the
// lightweight markup chat clients understand.
package markdown

import (
	"html"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Dialect is an output markup.
type Dialect int

const (
	// WhatsApp emits *bold*, _italic_, ~strike~ and ``` fences.
	WhatsApp Dialect = iota
	// TelegramHTML emits the HTML subset accepted by the Bot API.
	TelegramHTML
)

var parser = goldmark.New(goldmark.WithExtensions(extension.Strikethrough)).Parser()

// Convert renders src in dialect d. The result is trimmed.
func Convert(src string, d Dialect) string {
	source := []byte(src)
	doc := parser.Parse(text.NewReader(source))
	w := walker{src: source, d: d}
	return strings.TrimSpace(w.node(doc))
}

type walker struct {
	src []byte
	d   Dialect
}

func (w walker) html() bool { return w.d == TelegramHTML }

func (w walker) esc(s string) string {
	if w.html() {
		return html.EscapeString(s)
	}
	return s
}

func (w walker) children(n ast.Node) string {
	var b strings.Builder
	i := 0
	list, isList := n.(*ast.List)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if isList {
			if list.IsOrdered() {
				b.WriteString(strconv.Itoa(list.Start+i) + ". ")
			} else {
				b.WriteString("- ")
			}
		}
		b.WriteString(w.node(c))
		i++
	}
	return b.String()
}

// plain returns the raw text under n without markup.
func (w walker) plain(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(w.src))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func lines(n ast.Node, src []byte) string {
	var b strings.Builder
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func (w walker) node(n ast.Node) string {
	switch t := n.(type) {
	case *ast.Text:
		s := w.esc(string(t.Segment.Value(w.src)))
		if t.SoftLineBreak() || t.HardLineBreak() {
			s += "\n"
		}
		return s
	case *ast.String:
		return w.esc(string(t.Value))
	case *ast.CodeSpan:
		if w.html() {
			return "<code>" + html.EscapeString(w.plain(t)) + "</code>"
		}
		return "`" + w.plain(t) + "`"
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		code := strings.TrimSuffix(lines(n, w.src), "\n")
		if w.html() {
			return "<pre>" + html.EscapeString(code) + "</pre>\n"
		}
		return "```" + code + "```\n"
	case *ast.HTMLBlock:
		raw := lines(n, w.src)
		if t.HasClosure() {
			raw += string(t.ClosureLine.Value(w.src))
		}
		return w.esc(strings.TrimSuffix(raw, "\n"))
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < t.Segments.Len(); i++ {
			seg := t.Segments.At(i)
			b.Write(seg.Value(w.src))
		}
		return w.esc(b.String())
	case *ast.ThematicBreak:
		return "\n---\n"
	case *ast.Image:
		alt, url := w.esc(w.plain(t)), string(t.Destination)
		if w.html() {
			return `<a href="` + html.EscapeString(url) + `">` + alt + "</a>"
		}
		return "[" + alt + "](" + url + ")"
	case *ast.AutoLink:
		url := string(t.URL(w.src))
		if w.html() {
			return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(string(t.Label(w.src))) + "</a>"
		}
		return "[" + string(t.Label(w.src)) + "](" + url + ")"
	}

	inner := w.children(n)
	switch t := n.(type) {
	case *ast.Emphasis:
		switch {
		case t.Level >= 2 && w.html():
			return "<b>" + inner + "</b>"
		case t.Level >= 2:
			return "*" + inner + "*"
		case w.html():
			return "<i>" + inner + "</i>"
		default:
			return "_" + inner + "_"
		}
	case *east.Strikethrough:
		if w.html() {
			return "<s>" + inner + "</s>"
		}
		return "~" + inner + "~"
	case *ast.Heading:
		if w.html() {
			return "\n<b>" + inner + "</b>\n"
		}
		return "\n*" + inner + "*\n"
	case *ast.Paragraph, *ast.TextBlock:
		return inner + "\n"
	case *ast.Link:
		url := string(t.Destination)
		if w.html() {
			return `<a href="` + html.EscapeString(url) + `">` + inner + "</a>"
		}
		return "[" + inner + "](" + url + ")"
	case *ast.Blockquote:
		if w.html() {
			return "<blockquote>" + strings.TrimSuffix(inner, "\n") + "</blockquote>\n"
		}
		return "> " + inner
	}
	return inner
}
