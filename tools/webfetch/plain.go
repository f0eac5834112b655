package webfetch

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/models"
)

// Browser identities rotated per attempt by anti-bot-capable strategies.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// PlainStrategy performs a direct HTTP GET with bounded 5xx/429 retries.
// Cheapest strategy in the cascade; does not execute JavaScript.
type PlainStrategy struct {
	client    *retryablehttp.Client
	timeout   time.Duration
	userAgent string
}

func NewPlainStrategy(cfg config.ScrapingConfig) *PlainStrategy {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.RetryBackoff
	client.RetryWaitMax = cfg.RetryBackoff * 8
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.PlainTimeout
	// Retry transport errors and 429/5xx; surface 4xx immediately.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}
	return &PlainStrategy{client: client, timeout: cfg.PlainTimeout, userAgent: cfg.UserAgent}
}

func (s *PlainStrategy) Name() string             { return "plain" }
func (s *PlainStrategy) Capabilities() Capability { return 0 }
func (s *PlainStrategy) Timeout() time.Duration   { return s.timeout }

func (s *PlainStrategy) Fetch(ctx context.Context, url string) (models.FetchResult, error) {
	t0 := time.Now()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FetchResult{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.FetchResult{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.FetchResult{}, &NetworkError{Err: err}
	}
	return models.FetchResult{
		URL:     url,
		Status:  resp.StatusCode,
		HTML:    string(body),
		Elapsed: time.Since(t0),
	}, nil
}
