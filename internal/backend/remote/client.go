// Package remote implements scrape.Backend against the hosted scraping API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"scrapequeue/internal/scrape"
)

// Config controls the API client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the hosted scraping/crawling API over HTTP+JSON.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client with a pooled transport.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(),
		},
	}
}

type apiRequest struct {
	URLs    []string       `json:"urls,omitempty"`
	URL     string         `json:"url,omitempty"`
	Options scrape.Options `json:"options,omitempty"`
}

type apiResponse struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreditsUsed int             `json:"creditsUsed,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Run issues one API call for the job's inputs. Throttling surfaces as a
// rate limited *scrape.BackendError (status 429 or a rate-limit marker in
// the error body); everything else backend-reported is terminal.
func (c *Client) Run(ctx context.Context, req scrape.BackendRequest) (scrape.BackendResult, error) {
	body := apiRequest{Options: req.Options}
	var endpoint string
	switch req.Kind {
	case scrape.JobKindCrawl:
		endpoint = c.cfg.BaseURL + "/v1/crawl"
		if len(req.URLs) > 0 {
			body.URL = req.URLs[0]
		}
	default:
		endpoint = c.cfg.BaseURL + "/v1/batch/scrape"
		body.URLs = req.URLs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return scrape.BackendResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return scrape.BackendResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return scrape.BackendResult{}, fmt.Errorf("backend request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return scrape.BackendResult{}, fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return scrape.BackendResult{}, &scrape.BackendError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			}
		}
		return scrape.BackendResult{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return scrape.BackendResult{}, &scrape.BackendError{
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	return scrape.BackendResult{
		Data:        parsed.Data,
		CreditsUsed: parsed.CreditsUsed,
	}, nil
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
