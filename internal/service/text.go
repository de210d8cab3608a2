package service

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

// innerText renders nodes the way a browser reports innerText: block
// elements and <br> break lines, whitespace runs collapse outside <pre>.
func innerText(nodes ...*html.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		renderText(n, &sb, false)
	}
	return sb.String()
}

func renderText(n *html.Node, sb *strings.Builder, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			sb.WriteString(n.Data)
			return
		}
		sb.WriteString(collapseSpace(n.Data))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		if n.Data == "br" {
			sb.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	inPre := pre || (n.Type == html.ElementNode && n.Data == "pre")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, sb, inPre)
	}
	if block {
		sb.WriteByte('\n')
	}
}

// collapseSpace replaces every whitespace run with a single space, keeping
// a leading or trailing one so adjacent inline text stays separated.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\u00a0':
			if !space {
				sb.WriteByte(' ')
			}
			space = true
		default:
			sb.WriteRune(r)
			space = false
		}
	}
	return sb.String()
}

func inlineText(s string) string {
	return strings.TrimSpace(collapseSpace(s))
}

// normalizeBody trims every line and drops blank ones.
func normalizeBody(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// normalizeTimestamp renders a parseable timestamp as RFC 3339 in UTC and
// returns anything else trimmed but unchanged. Partial dates parse with year
// zero and are kept raw.
func normalizeTimestamp(raw string) string {
	raw = strings.TrimSpace(raw)
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil || t.Year() == 0 {
		return raw
	}
	return t.UTC().Format(time.RFC3339)
}
