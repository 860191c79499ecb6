package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leonardcser/readthrough/internal/cache"
)

// SearchPrefix marks keys answered by the Searcher: "search:<query>".
const SearchPrefix = "search:"

// DefaultSearchEndpoint is the DuckDuckGo HTML endpoint.
const DefaultSearchEndpoint = "https://html.duckduckgo.com/html/"

const searchLimit = 10

// extractDDGURL extracts the actual URL from DuckDuckGo's redirect URL format
// Input: //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=...
// Output: https://example.com
func extractDDGURL(ddgURL string) string {
	if strings.HasPrefix(ddgURL, "//duckduckgo.com/l/") {
		ddgURL = "https:" + ddgURL
	}
	u, err := url.Parse(ddgURL)
	if err != nil {
		return ddgURL
	}
	uddg := u.Query().Get("uddg")
	if uddg == "" {
		return ddgURL
	}
	actualURL, err := url.QueryUnescape(uddg)
	if err != nil {
		return ddgURL
	}
	return actualURL
}

type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Searcher fills cache misses for search keys with a JSON result list.
type Searcher struct {
	client   *http.Client
	endpoint string
}

var _ cache.ValueFactory = (*Searcher)(nil)

// NewSearcher builds a searcher against endpoint, or the DuckDuckGo HTML
// endpoint when empty.
func NewSearcher(endpoint string) *Searcher {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	return &Searcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: endpoint,
	}
}

// IsSearch reports whether key is a search key.
func IsSearch(key string) bool { return strings.HasPrefix(key, SearchPrefix) }

// Value implements cache.ValueFactory.
func (s *Searcher) Value(ctx context.Context, key string) (string, error) {
	results, err := s.Search(ctx, strings.TrimPrefix(key, SearchPrefix), searchLimit)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 || limit > 20 {
		limit = searchLimit
	}
	values := url.Values{"q": {q}, "kl": {"us-en"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", NextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, limit)
	doc.Find("div.result.results_links.results_links_deep.web-result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find("a.result__a").First()
		link := strings.TrimSpace(a.AttrOr("href", ""))
		title := singleLine(a.Text())
		desc := singleLine(s.Find("a.result__snippet").First().Text())
		if title != "" && link != "" {
			results = append(results, SearchResult{Title: title, Description: desc, Link: extractDDGURL(link)})
		}
		return len(results) < limit
	})

	if len(results) == 0 {
		// Fallback: scan anchor list and nearest snippet up the tree
		doc.Find("a.result__a").EachWithBreak(func(_ int, n *goquery.Selection) bool {
			if len(results) >= limit {
				return false
			}
			title := singleLine(n.Text())
			link := strings.TrimSpace(n.AttrOr("href", ""))
			desc := singleLine(n.Parents().Find("a.result__snippet").First().Text())
			results = append(results, SearchResult{Title: title, Description: desc, Link: extractDDGURL(link)})
			return true
		})
	}
	return results, nil
}

// singleLine trims and collapses internal whitespace/newlines to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
