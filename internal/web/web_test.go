package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/readthrough/internal/cache"
)

const page = `<!doctype html>
<html>
<head>
  <title> Example Page </title>
  <meta name="description" content="An example">
  <script>var ignored = true;</script>
</head>
<body>
  <header>Site nav</header>
  <h1>Hello</h1>
  <p>Some <strong>body</strong> text.</p>
  <a href="/about#team">About</a>
  <a href="https://other.example/x">Other</a>
  <a href="mailto:me@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <footer>Footer</footer>
</body>
</html>`

func TestFetcherSummarizesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := NewFetcher(0)
	ps, err := f.Fetch(context.Background(), srv.URL+"/start")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/start", ps.URL)
	assert.Equal(t, "Example Page", ps.Title)
	assert.Equal(t, "An example", ps.Description)
	assert.Equal(t, []string{srv.URL + "/about", "https://other.example/x"}, ps.Links)
	assert.Contains(t, ps.Text, "Hello")
	assert.Contains(t, ps.Text, "body")
	assert.NotContains(t, ps.Text, "Site nav")
	assert.NotContains(t, ps.Text, "ignored")
	assert.NotContains(t, ps.Text, "Footer")
}

func TestFetcherValueIsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "plain body")
	}))
	defer srv.Close()

	v, err := NewFetcher(0).Value(context.Background(), srv.URL)
	require.NoError(t, err)

	var ps PageSummary
	require.NoError(t, json.Unmarshal([]byte(v), &ps))
	assert.Equal(t, "plain body", ps.Text)
}

func TestFetcherRejectsBinaryAndNonURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "ftp://example.com")
	assert.ErrorIs(t, err, errNotURL)
}

func TestFetcherHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(0).Fetch(ctx, "http://127.0.0.1:1")
	assert.ErrorIs(t, err, context.Canceled)
}

const results = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc">The Go
     Programming Language</a>
  <a class="result__snippet">Build simple, secure, scalable systems.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
</div>
</body></html>`

func TestSearcherParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, results)
	}))
	defer srv.Close()

	v, err := NewSearcher(srv.URL+"/html/").Value(context.Background(), "search:golang")
	require.NoError(t, err)

	var got []SearchResult
	require.NoError(t, json.Unmarshal([]byte(v), &got))
	require.Len(t, got, 2)
	assert.Equal(t, SearchResult{
		Title:       "The Go Programming Language",
		Description: "Build simple, secure, scalable systems.",
		Link:        "https://go.dev/",
	}, got[0])
	assert.Equal(t, "https://pkg.go.dev/", got[1].Link)
}

func TestSearcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSearcher(srv.URL)
	_, err := s.Value(context.Background(), "search:golang")
	assert.ErrorContains(t, err, "429")

	_, err = s.Value(context.Background(), "search:   ")
	assert.ErrorContains(t, err, "empty query")
}

func TestExtractDDGURL(t *testing.T) {
	assert.Equal(t, "https://example.com", extractDDGURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=x"))
	assert.Equal(t, "https://plain.example", extractDDGURL("https://plain.example"))
}

func TestRouterDispatch(t *testing.T) {
	named := func(name string) cache.ValueFactory {
		return cache.ValueFunc(func(_ context.Context, key string) (string, error) {
			return name + ":" + key, nil
		})
	}
	r := &Router{Fetcher: named("fetch"), Searcher: named("search"), Fallback: named("fallback")}
	ctx := context.Background()

	for key, want := range map[string]string{
		"https://go.dev": "fetch:https://go.dev",
		"http://go.dev":  "fetch:http://go.dev",
		"search:go":      "search:search:go",
		"plain":          "fallback:plain",
	} {
		got, err := r.Value(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	v, err := (&Router{}).Value(ctx, "https://go.dev")
	require.NoError(t, err)
	assert.NotEmpty(t, v, "an empty router falls back to random values")
}

func TestRouterPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	r := &Router{Fallback: cache.ValueFunc(func(context.Context, string) (string, error) { return "", boom })}
	_, err := r.Value(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
}

func TestNextUserAgent(t *testing.T) {
	for range 20 {
		assert.Contains(t, userAgents, NextUserAgent())
	}
}

func TestNewRouterSkipsNilFactories(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	assert.Nil(t, r.Fetcher)
	assert.Nil(t, r.Searcher)
}
