// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoText reports a PDF whose content streams carry no extractable text,
// typically a scanned document.
var ErrNoText = errors.New("no text content found in PDF")

// Pdfcpu extracts text in-process by reading page content streams with
// pdfcpu. It needs no external programs but only understands literal
// string operands, so it is a fallback for hosts without poppler.
type Pdfcpu struct{}

// NewPdfcpu returns the in-process raw backend.
func NewPdfcpu() *Pdfcpu { return &Pdfcpu{} }

// Name identifies the backend in errors and logs.
func (p *Pdfcpu) Name() string { return "pdfcpu" }

// ExtractRaw returns the text of each page, pages separated by a blank line.
func (p *Pdfcpu) ExtractRaw(ctx context.Context, pdf []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if text := textFromStream(data); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n\n"), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here).
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromStream collects the literal operands of text-showing operators
// and turns line-positioning operators into newlines.
func textFromStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fields := bytes.Fields(line)
		op := string(fields[len(fields)-1])
		switch op {
		case "Tj", "TJ":
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case "'", `"`:
			newline()
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case "T*", "ET":
			newline()
		case "Td", "TD":
			// "tx ty Td": a vertical move starts a new line, a horizontal
			// one separates words.
			if len(fields) >= 3 {
				if ty, err := strconv.ParseFloat(string(fields[len(fields)-2]), 64); err == nil && ty != 0 {
					newline()
					continue
				}
			}
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte(' ')
			}
		}
	}
	return cleanLines(sb.String())
}

// decodePDFString handles the escape sequences of PDF literal strings.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			// Octal escape of up to three digits (e.g. \040 for space).
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanLines collapses spaces within lines and drops empty lines.
func cleanLines(text string) string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
