// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sanitize cleans converted Markdown bodies and metadata text.
//
// Body removes complete figure blocks, strips remaining HTML tags and
// comments, and normalizes whitespace. The transform is applied until it
// reaches a fixed point, so Body(Body(x)) == Body(x) for every x.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	figureRe  = regexp.MustCompile(`(?is)<figure\b[^>]*>.*?</figure\s*>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	// tagRe matches a tag-shaped fragment. Only names in htmlElements are
	// stripped, so inequalities in math ("a<b and c>d") and Markdown
	// autolinks ("<https://...>") pass through.
	tagRe        = regexp.MustCompile(`</?([A-Za-z][A-Za-z0-9-]*)(?:\s[^<>]*)?/?>`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
	paragraphRe  = regexp.MustCompile(`\n\s*\n`)
	strictPolicy = bluemonday.StrictPolicy()
)

// htmlElements lists the element names pandoc and pdf extractors emit as
// raw HTML in GFM output.
var htmlElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "blockquote": true, "br": true,
	"caption": true, "center": true, "code": true, "col": true, "colgroup": true,
	"dd": true, "del": true, "details": true, "div": true, "dl": true, "dt": true,
	"em": true, "embed": true, "figcaption": true, "figure": true, "font": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "i": true, "iframe": true, "img": true, "input": true,
	"ins": true, "kbd": true, "li": true, "mark": true, "math": true,
	"mi": true, "mn": true, "mo": true, "mrow": true, "msub": true, "msup": true,
	"object": true, "ol": true, "p": true, "picture": true, "pre": true,
	"q": true, "s": true, "script": true, "section": true, "small": true,
	"source": true, "span": true, "strike": true, "strong": true, "style": true,
	"sub": true, "summary": true, "sup": true, "svg": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true, "tt": true, "u": true, "ul": true, "video": true, "wbr": true,
}

// Body sanitizes a converted document body.
func Body(s string) string {
	for {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
}

// pass applies one round of cleaning. It only removes text, apart from the
// one-time \r to \n rewrite, so iterating it terminates.
func pass(s string) string {
	s = figureRe.ReplaceAllString(s, "")
	s = commentRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		if htmlElements[strings.ToLower(m[1])] {
			return ""
		}
		return tag
	})
	return normalize(s)
}

// normalize converts line endings to \n, trims trailing whitespace on each
// line, collapses runs of blank lines to one and trims the document.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PlainText reduces metadata text (titles, abstracts, author names) to a
// single line of plain text: markup removed, entities decoded and
// whitespace collapsed.
func PlainText(s string) string {
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// Paragraph is PlainText for multi-paragraph text such as abstracts:
// blank-line paragraph breaks survive, other whitespace is collapsed.
func Paragraph(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	parts := paragraphRe.Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = PlainText(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
