// Package local implements scrape.Backend for self-hosted deployments by
// fetching the target URLs directly with Colly instead of calling the
// hosted API. Self-hosted runs report no credit usage.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"scrapequeue/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	IgnoreRobots bool
	Timeout      time.Duration
}

// Backend fetches pages with a Colly collector.
type Backend struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Backend.
func New(cfg Config) *Backend {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Backend{
		cfg:           cfg,
		baseCollector: c,
	}
}

type page struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Run fetches every URL in the request sequentially and returns the pages
// as the opaque result payload. The call fails only when nothing could be
// fetched.
func (b *Backend) Run(ctx context.Context, req scrape.BackendRequest) (scrape.BackendResult, error) {
	pages := make([]page, 0, len(req.URLs))
	succeeded := 0
	for _, url := range req.URLs {
		if err := ctx.Err(); err != nil {
			return scrape.BackendResult{}, fmt.Errorf("fetch canceled: %w", err)
		}
		p, err := b.fetch(ctx, url)
		if err != nil {
			pages = append(pages, page{URL: url, Error: err.Error()})
			continue
		}
		pages = append(pages, p)
		succeeded++
	}
	if succeeded == 0 {
		return scrape.BackendResult{}, &scrape.BackendError{Message: "no pages were fetched"}
	}
	data, err := json.Marshal(pages)
	if err != nil {
		return scrape.BackendResult{}, fmt.Errorf("marshal pages: %w", err)
	}
	return scrape.BackendResult{Data: data}, nil
}

func (b *Backend) fetch(ctx context.Context, url string) (page, error) {
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = b.cfg.IgnoreRobots
	timeout := b.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		result   page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Content:    string(r.Body),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return page{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return page{}, fmt.Errorf("fetch failed: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
