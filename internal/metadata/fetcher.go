// Package metadata retrieves live title and meta description tags for
// page URLs. Targets rarely allow direct cross-origin fetches, so
// requests route through an ordered chain of proxy templates; the first
// proxy that yields parseable HTML wins.
package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"searchlens.app/analyzer/common/logger"
	"searchlens.app/analyzer/core/config"
)

// Sentinel values recorded when every proxy in the chain fails. They
// are persisted like real metadata so a failed page is visibly failed
// instead of silently empty.
const (
	FallbackTitle       = "Fetch Error"
	FallbackDescription = "Could not retrieve metadata."
)

// PageMeta is the live metadata of one page.
type PageMeta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Failed reports whether this result is the fetch-error sentinel.
func (m PageMeta) Failed() bool {
	return m.Title == FallbackTitle && m.Description == FallbackDescription
}

// Fetcher resolves page metadata through the proxy chain.
type Fetcher struct {
	client  *http.Client
	proxies []string
	limiter *rate.Limiter
}

func NewFetcher(cfg config.MetadataConfig) *Fetcher {
	timeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		proxies: cfg.Proxies,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Fetch tries each proxy in order and returns the first successful
// parse. When the whole chain fails it returns the sentinel PageMeta
// and a nil error; the error return is reserved for context
// cancellation.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (PageMeta, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		PageURL:   logger.Ptr(pageURL),
		Component: "analyzer.metadata",
	})

	for _, proxy := range f.proxies {
		if err := ctx.Err(); err != nil {
			return PageMeta{}, err
		}

		meta, err := f.fetchVia(ctx, proxy, pageURL)
		if err != nil {
			slog.DebugContext(ctx, "proxy attempt failed",
				"proxy", proxyHost(proxy),
				"error", err)
			continue
		}
		return meta, nil
	}

	slog.WarnContext(ctx, "all metadata proxies failed")
	return PageMeta{Title: FallbackTitle, Description: FallbackDescription}, nil
}

// FetchBulk resolves metadata for many URLs sequentially, pacing
// requests through the shared limiter. It returns per-URL results plus
// how many came back as the failure sentinel.
func (f *Fetcher) FetchBulk(ctx context.Context, urls []string) (map[string]PageMeta, int, error) {
	results := make(map[string]PageMeta, len(urls))
	failed := 0

	for _, u := range urls {
		if err := f.limiter.Wait(ctx); err != nil {
			return results, failed, err
		}
		meta, err := f.Fetch(ctx, u)
		if err != nil {
			return results, failed, err
		}
		if meta.Failed() {
			failed++
		}
		results[u] = meta
	}
	return results, failed, nil
}

func (f *Fetcher) fetchVia(ctx context.Context, proxyTemplate, pageURL string) (PageMeta, error) {
	target := fmt.Sprintf(proxyTemplate, url.QueryEscape(pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return PageMeta{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return PageMeta{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PageMeta{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Cap the body read; we only need the head of the document.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return PageMeta{}, fmt.Errorf("read body: %w", err)
	}

	return parseMeta(body)
}

func parseMeta(body []byte) (PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return PageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	description = strings.TrimSpace(description)

	// A proxy response only counts as the page when it carries a real
	// title; description-only documents are typically proxy error pages.
	if title == "" {
		return PageMeta{}, fmt.Errorf("no title in document")
	}
	return PageMeta{Title: title, Description: description}, nil
}

func proxyHost(template string) string {
	if u, err := url.Parse(fmt.Sprintf(template, "")); err == nil {
		return u.Host
	}
	return template
}
