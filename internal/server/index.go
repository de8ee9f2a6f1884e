// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed index.md
var defaultIndex []byte

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
	),
)

// landingPage holds the index Markdown and its pre-rendered HTML.
type landingPage struct {
	md   []byte
	html []byte
}

// loadLandingPage reads the page from path, or uses the embedded page
// when path is empty.
func loadLandingPage(path string) (*landingPage, error) {
	md := defaultIndex
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading index page: %w", err)
		}
		md = b
	}
	body, err := renderHTML(md)
	if err != nil {
		return nil, err
	}
	return &landingPage{md: md, html: body}, nil
}

func renderHTML(md []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!doctype html><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(pageTitle(md)))
	buf.WriteString("</title><body>\n")
	if err := markdown.Convert(md, &buf); err != nil {
		return nil, fmt.Errorf("rendering index page: %w", err)
	}
	buf.WriteString("</body>\n")
	return buf.Bytes(), nil
}

// pageTitle returns the first level-one heading, or "markxiv".
func pageTitle(md []byte) string {
	for _, line := range strings.Split(string(md), "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return "markxiv"
}

// wantsHTML reports whether the Accept header prefers a browser page.
// A missing header counts as a browser.
func wantsHTML(accept string) bool {
	if accept == "" {
		return true
	}
	accept = strings.ToLower(accept)
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}
