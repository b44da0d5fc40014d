package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/car-listing-crawler/internal/metrics"
)

// IndexPageURL builds the address of 1-based index page n.
func IndexPageURL(baseURL string, page, perPage int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d&countpage=%d&indexName=auto&custom=1&abroad=2", baseURL, sep, page, perPage)
}

// ParseListingLinks returns the hrefs of every anchor matching selector.
// Relative hrefs are resolved against pageURL; see normalizeLink.
func ParseListingLinks(pageURL string, body []byte, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}
	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if link, ok := normalizeLink(base, href); ok {
			links = append(links, link)
		}
	})
	return links, nil
}

// IndexClient fetches index pages and extracts listing links from them.
type IndexClient struct {
	cfg     Config
	fetcher Fetcher
	logger  *zap.Logger
}

// NewIndexClient constructs an IndexClient.
func NewIndexClient(cfg Config, fetcher Fetcher, logger *zap.Logger) *IndexClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexClient{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Links fetches index page n and returns the listing URLs on it.
func (c *IndexClient) Links(ctx context.Context, page int) ([]string, error) {
	pageURL := IndexPageURL(c.cfg.BaseURL, page, c.cfg.PerPage)
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		metrics.ObserveIndexPage("error")
		return nil, fmt.Errorf("fetch index page %d: %w", page, err)
	}
	links, err := ParseListingLinks(pageURL, resp.Body, c.cfg.ListingSelector)
	if err != nil {
		metrics.ObserveIndexPage("error")
		return nil, fmt.Errorf("index page %d: %w", page, err)
	}
	if len(links) == 0 {
		metrics.ObserveIndexPage("empty")
	} else {
		metrics.ObserveIndexPage("listings")
	}
	return links, nil
}
