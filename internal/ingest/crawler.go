package ingest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/security"
)

// Crawler fetches a bounded slice of a documentation site.
//
// For each source it fetches the base page, harvests same-domain links whose
// URL mentions one of the requested subtopics, and visits those up to the
// page budget. Every request goes through the SSRF validator's transport,
// so DNS rebinding to private addresses is caught at dial time.
type Crawler struct {
	cfg       config.CrawlerConfig
	validator *security.URL
	logger    log.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(cfg config.CrawlerConfig, validator *security.URL, logger log.Logger) *Crawler {
	return &Crawler{cfg: cfg, validator: validator, logger: logger}
}

// Crawl fetches up to maxPages pages from one documentation source and
// returns the extracted pages plus every URL that was attempted.
// Individual page failures are logged and skipped; the error return covers
// only failures that prevent the crawl from starting.
func (c *Crawler) Crawl(ctx context.Context, source string, keywords []string, maxPages int) ([]Page, []string, error) {
	if err := c.validator.Validate(source); err != nil {
		return nil, nil, fmt.Errorf("unsafe source %q: %w", source, err)
	}
	base, err := url.Parse(source)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing source URL: %w", err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(c.cfg.UserAgent),
		colly.AllowedDomains(base.Hostname()),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(time.Duration(c.cfg.TimeoutMs) * time.Millisecond)
	collector.WithTransport(c.validator.SafeTransport())
	collector.SetRedirectHandler(c.validator.ValidateRedirect)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       time.Duration(c.cfg.DelayMs) * time.Millisecond,
	}); err != nil {
		return nil, nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var (
		mu        sync.Mutex
		pages     []Page
		attempted []string
	)
	baseURL := base.String()

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		attempted = append(attempted, r.URL.String())
		mu.Unlock()
	})

	collector.OnResponse(func(r *colly.Response) {
		page := ExtractPage(r.Body, r.Request.URL)

		mu.Lock()
		if page.Text != "" {
			pages = append(pages, page)
		}
		mu.Unlock()

		// The base page doubles as the link frontier.
		if r.Request.URL.String() != baseURL {
			return
		}
		for _, link := range HarvestLinks(r.Body, base, keywords, maxPages) {
			if link == baseURL {
				continue
			}
			if err := r.Request.Visit(link); err != nil {
				c.logger.Debug("skipping crawl link", "url", link, "error", err)
			}
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Debug("page fetch failed",
			"url", r.Request.URL.String(),
			"status", r.StatusCode,
			"error", err,
		)
	})

	if err := collector.Visit(baseURL); err != nil {
		return nil, nil, fmt.Errorf("fetching base page %q: %w", baseURL, err)
	}
	collector.Wait()

	if len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	c.logger.Info("crawled documentation source",
		"source", source,
		"pages", len(pages),
		"attempted", len(attempted),
	)
	return pages, attempted, nil
}
