package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/leonardcser/readthrough/internal/cache"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
	maxLinks        = 50
)

var errNotURL = errors.New("key is not an http(s) URL")

type PageSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
}

// Fetcher fills cache misses for URL keys with a JSON PageSummary of the
// page behind the URL.
type Fetcher struct {
	c *colly.Collector
}

var _ cache.ValueFactory = (*Fetcher)(nil)

// NewFetcher builds a fetcher. delay is the minimum pause between two
// requests to the same domain.
func NewFetcher(delay time.Duration) *Fetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
	})
	c.SetRequestTimeout(RequestTimeout)
	return &Fetcher{c: c}
}

// IsURL reports whether key is something the fetcher can handle.
func IsURL(key string) bool {
	return strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://")
}

// Value implements cache.ValueFactory.
func (f *Fetcher) Value(ctx context.Context, key string) (string, error) {
	ps, err := f.Fetch(ctx, key)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Fetch downloads rawURL and summarizes it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*PageSummary, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !IsURL(rawURL) {
		return nil, errNotURL
	}

	var (
		pageHTML    []byte
		finalURL    string
		contentType string
	)
	// A clone per call keeps callbacks from piling up on the shared
	// collector while still sharing its limits.
	c := f.c.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", NextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		pageHTML = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(pageHTML) == 0 {
		return nil, errors.New("empty response body")
	}
	if len(pageHTML) > MaxResponseSize {
		pageHTML = pageHTML[:MaxResponseSize]
		pageHTML = append(pageHTML, []byte("... [response trimmed due to size]")...)
	}

	lowerCT := strings.ToLower(contentType)
	if !strings.HasPrefix(lowerCT, "text/") {
		return nil, errors.New("unsupported content type: binary files like images or PDFs are not supported")
	}
	if !strings.Contains(lowerCT, "text/html") {
		return &PageSummary{URL: finalURL, Text: string(pageHTML)}, nil
	}
	return summarize(finalURL, pageHTML)
}

func summarize(finalURL string, pageHTML []byte) (*PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	// Remove non-visible elements
	doc.Find("script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea, progress, ins, applet").Remove()

	ps := &PageSummary{
		URL:         finalURL,
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", "")),
		Links:       extractLinks(doc, finalURL),
	}
	plainText := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	doc.Find("a").Remove()
	doc.Find("header, footer, aside").Remove()

	htmlStr, err := doc.Html()
	if err != nil {
		return nil, err
	}
	markdown, err := htmltomarkdown.ConvertString(htmlStr)
	if err != nil {
		ps.Text = plainText
	} else {
		ps.Text = strings.TrimSpace(markdown)
	}
	return ps, nil
}

// extractLinks resolves, canonicalizes and sorts the page's links, keeping
// at most maxLinks.
func extractLinks(doc *goquery.Document, finalURL string) []string {
	base, _ := url.Parse(finalURL)
	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		switch u.Scheme {
		case "", "javascript", "mailto", "tel":
			return
		}
		u.Fragment = ""
		set[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(set))
	for l := range set {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
