// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv implements the metadata and source providers against the
// arXiv export API, the e-print endpoint and the PDF endpoint.
package arxiv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/markxiv/internal/httputil"
	"github.com/pdiddy/markxiv/pkg/types"
)

// Default endpoints. Tests substitute httptest servers via the Client fields.
const (
	DefaultAPIBase    = "https://export.arxiv.org/api/query"
	DefaultEprintBase = "https://arxiv.org/e-print/"
	DefaultPDFBase    = "https://arxiv.org/pdf/"

	DefaultUserAgent = "markxiv/0.1 (+https://github.com/pdiddy/markxiv)"
	defaultTimeout   = 15 * time.Second
)

// maxPayload bounds any single download.
const maxPayload int64 = 256 << 20

// errTooLarge reports a response body over maxPayload.
var errTooLarge = errors.New("response exceeds size limit")

// Client talks to arXiv. The zero value is not usable; call NewClient.
type Client struct {
	HTTP       *http.Client
	UserAgent  string
	MaxRetries int
	Logger     *slog.Logger

	APIBase    string
	EprintBase string
	PDFBase    string
}

// NewClient builds a client from cfg. A nil logger uses slog.Default().
func NewClient(cfg types.HTTPConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		HTTP:       &http.Client{Timeout: timeout},
		UserAgent:  ua,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
		APIBase:    DefaultAPIBase,
		EprintBase: DefaultEprintBase,
		PDFBase:    DefaultPDFBase,
	}
}

// get performs a GET with retries on throttling and returns the status,
// content type and body. Non-2xx bodies are drained and discarded.
func (c *Client) get(ctx context.Context, url, accept string) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxRetries, c.Logger)
	if err != nil {
		return 0, "", nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		c.Logger.DebugContext(ctx, "arxiv request", "url", url, "status", resp.StatusCode, "elapsed", time.Since(start))
		return resp.StatusCode, ct, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload+1))
	if err != nil {
		return 0, "", nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > maxPayload {
		return 0, "", nil, errTooLarge
	}
	c.Logger.DebugContext(ctx, "arxiv request", "url", url, "status", resp.StatusCode,
		"bytes", len(body), "elapsed", time.Since(start))
	return resp.StatusCode, ct, body, nil
}

// FetchSource downloads the e-print for key. A source archive is returned
// as FormArchive. When arXiv has no source (it serves the PDF instead, or
// answers 400/403/404) the rendered PDF is returned as FormRendered; when
// neither exists the error is types.ErrSourceUnavailable.
func (c *Client) FetchSource(ctx context.Context, key types.DocumentKey) (types.Source, error) {
	id := key.String()
	status, ct, body, err := c.get(ctx, c.EprintBase+id,
		"application/x-eprint-tar, application/x-tar, application/octet-stream")
	if err != nil {
		return types.Source{}, fmt.Errorf("fetching e-print %s: %w", id, err)
	}

	switch {
	case status == http.StatusOK:
		if strings.Contains(ct, "application/pdf") || looksLikePDF(body) {
			return types.Source{Form: types.FormRendered, Data: body}, nil
		}
		// HTML error pages occasionally arrive with a 200.
		if strings.Contains(ct, "text/html") || looksLikeHTML(body) {
			return types.Source{}, fmt.Errorf("fetching e-print %s: arXiv returned HTML", id)
		}
		return types.Source{Form: types.FormArchive, Data: body}, nil
	case status == http.StatusBadRequest || status == http.StatusForbidden || status == http.StatusNotFound:
		pdf, err := c.FetchRendered(ctx, key)
		if err != nil {
			return types.Source{}, err
		}
		return types.Source{Form: types.FormRendered, Data: pdf}, nil
	default:
		return types.Source{}, fmt.Errorf("fetching e-print %s: HTTP %d", id, status)
	}
}

// FetchRendered downloads the PDF for key. A 404 is reported as
// types.ErrSourceUnavailable.
func (c *Client) FetchRendered(ctx context.Context, key types.DocumentKey) ([]byte, error) {
	id := key.String()
	status, _, body, err := c.get(ctx, c.PDFBase+id, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("fetching PDF %s: %w", id, err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("fetching PDF %s: %w", id, types.ErrSourceUnavailable)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetching PDF %s: HTTP %d", id, status)
	}
	if !looksLikePDF(body) {
		return nil, fmt.Errorf("fetching PDF %s: unexpected non-PDF payload", id)
	}
	return body, nil
}

func looksLikePDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func looksLikeHTML(b []byte) bool {
	head := b
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
