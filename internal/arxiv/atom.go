// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/markxiv/pkg/types"
)

// MaxSearchResults caps Search regardless of the requested count.
const MaxSearchResults = 50

const defaultSearchResults = 10

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// isError reports the pseudo-entry the API returns for malformed or
// unknown identifiers.
func (e arxivEntry) isError() bool {
	return strings.Contains(e.ID, "/api/errors") || strings.TrimSpace(e.Title) == "Error"
}

func (e arxivEntry) authors() []string {
	var out []string
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (e arxivEntry) published() time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) feed(ctx context.Context, params url.Values) (*arxivFeed, error) {
	status, _, body, err := c.get(ctx, c.APIBase+"?"+params.Encode(), "application/atom+xml")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, types.ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", status)
	}
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return &feed, nil
}

// FetchMetadata retrieves title, abstract, authors and publication date
// for baseID. An empty feed or an API error entry is types.ErrNotFound.
func (c *Client) FetchMetadata(ctx context.Context, baseID string) (types.Metadata, error) {
	feed, err := c.feed(ctx, url.Values{"id_list": {baseID}})
	if err != nil {
		return types.Metadata{}, fmt.Errorf("fetching metadata for %s: %w", baseID, err)
	}
	if len(feed.Entries) == 0 || feed.Entries[0].isError() {
		return types.Metadata{}, fmt.Errorf("fetching metadata for %s: %w", baseID, types.ErrNotFound)
	}
	entry := feed.Entries[0]
	return types.Metadata{
		Title:     strings.TrimSpace(entry.Title),
		Abstract:  strings.TrimSpace(entry.Summary),
		Authors:   entry.authors(),
		Published: entry.published(),
	}, nil
}

// Search runs a free-text query across all fields. maxResults is clamped
// to [1, MaxSearchResults]; zero selects the default of 10.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}
	switch {
	case maxResults <= 0:
		maxResults = defaultSearchResults
	case maxResults > MaxSearchResults:
		maxResults = MaxSearchResults
	}

	feed, err := c.feed(ctx, url.Values{
		"search_query": {"all:" + query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
	})
	if err != nil {
		return nil, fmt.Errorf("searching arXiv: %w", err)
	}

	var results []types.SearchResult
	for _, entry := range feed.Entries {
		id := extractArxivID(entry.ID)
		title := strings.TrimSpace(entry.Title)
		if id == "" || title == "" || entry.isError() {
			continue
		}
		results = append(results, types.SearchResult{
			ID:        id,
			Title:     title,
			Authors:   entry.authors(),
			Abstract:  strings.TrimSpace(entry.Summary),
			Published: entry.published(),
		})
	}
	return results, nil
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL, keeping any
// version suffix (e.g. "http://arxiv.org/abs/1706.03762v7" -> "1706.03762v7",
// "http://arxiv.org/abs/hep-th/9901001v1" -> "hep-th/9901001v1").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(idURL[idx+len(prefix):])
}
