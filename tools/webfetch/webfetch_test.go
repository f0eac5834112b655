package webfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/models"
)

type stubStrategy struct {
	name string
	caps Capability
	res  models.FetchResult
	err  error
}

func (s stubStrategy) Name() string             { return s.name }
func (s stubStrategy) Capabilities() Capability { return s.caps }
func (s stubStrategy) Timeout() time.Duration   { return time.Second }
func (s stubStrategy) Fetch(ctx context.Context, url string) (models.FetchResult, error) {
	return s.res, s.err
}

func okResult(html string) models.FetchResult {
	return models.FetchResult{Status: 200, HTML: html}
}

func TestCascadeFallsThroughToNextStrategy(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", 50)
	c := NewCascadeWith(10,
		stubStrategy{name: "plain", err: &NetworkError{Err: errors.New("timeout")}},
		stubStrategy{name: "render", caps: CapJS, res: okResult(body)},
	)
	res, err := c.Fetch(context.Background(), "https://example.com", 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Strategy != "render" {
		t.Fatalf("expected render strategy to win, got %q", res.Strategy)
	}
}

func TestCascadeSkipsStrategiesLackingCapabilities(t *testing.T) {
	t.Parallel()
	c := NewCascadeWith(10,
		stubStrategy{name: "plain", res: okResult(strings.Repeat("a", 50))},
		stubStrategy{name: "browser", caps: CapJS | CapAntiBot, res: okResult(strings.Repeat("b", 50))},
	)
	res, err := c.Fetch(context.Background(), "https://example.com", CapJS)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Strategy != "browser" {
		t.Fatalf("plain lacks js capability, got %q", res.Strategy)
	}
}

func TestCascadeAggregatesTerminalError(t *testing.T) {
	t.Parallel()
	c := NewCascadeWith(10,
		stubStrategy{name: "plain", err: &NetworkError{Err: errors.New("refused")}},
		stubStrategy{name: "render", caps: CapJS, err: &RenderError{Strategy: "render", Err: errors.New("crash")}},
	)
	_, err := c.Fetch(context.Background(), "https://example.com", 0)
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	for _, want := range []string{"plain", "render", "refused", "crash"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("terminal error %q missing %q", err, want)
		}
	}
}

func TestCascadeRejectsEmptyBody(t *testing.T) {
	t.Parallel()
	c := NewCascadeWith(1000,
		stubStrategy{name: "plain", res: okResult("tiny")},
		stubStrategy{name: "render", caps: CapJS, res: okResult(strings.Repeat("x", 2000))},
	)
	res, err := c.Fetch(context.Background(), "https://example.com", 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Strategy != "render" {
		t.Fatalf("small body should fall through, got %q", res.Strategy)
	}
}

func TestCascadeRejectsBlankURL(t *testing.T) {
	t.Parallel()
	c := NewCascadeWith(10, stubStrategy{name: "plain", res: okResult("x")})
	if _, err := c.Fetch(context.Background(), "  ", 0); err == nil {
		t.Fatalf("expected error for blank url")
	}
}

func TestPlainStrategyRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(strings.Repeat("<p>ok</p>", 200)))
	}))
	defer srv.Close()

	s := NewPlainStrategy(config.ScrapingConfig{
		PlainTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		UserAgent:    "pagesift-test",
	})
	res, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("expected 200 after retries, got %d", res.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPlainStrategyDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewPlainStrategy(config.ScrapingConfig{
		PlainTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		UserAgent:    "pagesift-test",
	})
	res, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("4xx must not retry, got %d attempts", got)
	}
}
