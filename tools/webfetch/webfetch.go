package webfetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/models"
)

// Capability flags declared by a fetch strategy
type Capability uint8

const (
	// CapJS marks strategies that execute page JavaScript before capture.
	CapJS Capability = 1 << iota
	// CapAntiBot marks strategies that rotate request identity per attempt.
	CapAntiBot
)

// Has reports whether c carries every flag in required.
func (c Capability) Has(required Capability) bool {
	return c&required == required
}

// Strategy is one method of acquiring a page's HTML. Implementations own
// their bounded 5xx retry policy; the cascade only advances between them.
type Strategy interface {
	Name() string
	Capabilities() Capability
	Timeout() time.Duration
	Fetch(ctx context.Context, url string) (models.FetchResult, error)
}

// NetworkError wraps connection-level failures (dial, timeout).
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "network: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// RenderError wraps strategy-specific rendering failures.
type RenderError struct {
	Strategy string
	Err      error
}

func (e *RenderError) Error() string { return e.Strategy + " render: " + e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }

// UpstreamStatusError reports a non-2xx response from the target site.
type UpstreamStatusError struct {
	URL    string
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d for %s", e.Status, e.URL)
}

// ErrEmptyBody is returned when a strategy yields a body below the minimum
// size threshold, which usually means a bot wall or an empty shell page.
var ErrEmptyBody = errors.New("body below minimum size")

// Cascade tries strategies in priority order, cheapest first, skipping any
// whose capability flags do not satisfy the caller's requirement.
type Cascade struct {
	strategies   []Strategy
	minBodyBytes int
	logger       *log.Logger
}

// NewCascade builds the default cascade: plain HTTP, JS render, full browser.
func NewCascade(cfg config.ScrapingConfig) *Cascade {
	return &Cascade{
		strategies: []Strategy{
			NewPlainStrategy(cfg),
			NewRenderStrategy(cfg),
			NewBrowserStrategy(cfg),
		},
		minBodyBytes: cfg.MinBodyBytes,
		logger:       log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

// NewCascadeWith builds a cascade over explicit strategies, used by tests.
func NewCascadeWith(minBodyBytes int, strategies ...Strategy) *Cascade {
	return &Cascade{
		strategies:   strategies,
		minBodyBytes: minBodyBytes,
		logger:       log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

// Fetch returns the first successful FetchResult, or a terminal error
// aggregating every strategy's failure when all of them exhaust.
func (c *Cascade) Fetch(ctx context.Context, url string, required Capability) (models.FetchResult, error) {
	if strings.TrimSpace(url) == "" {
		return models.FetchResult{}, errors.New("invalid url")
	}

	var failures []string
	tried := 0
	for _, s := range c.strategies {
		if !s.Capabilities().Has(required) {
			continue
		}
		tried++
		if err := ctx.Err(); err != nil {
			return models.FetchResult{}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout())
		res, err := s.Fetch(attemptCtx, url)
		cancel()

		if err == nil && res.Status >= 200 && res.Status < 300 && len(res.HTML) >= c.minBodyBytes {
			res.Strategy = s.Name()
			return res, nil
		}

		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			c.logger.Printf("strategy %s failed for %s: %v", s.Name(), url, err)
		case res.Status < 200 || res.Status >= 300:
			statusErr := &UpstreamStatusError{URL: url, Status: res.Status}
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), statusErr))
			c.logger.Printf("strategy %s got status %d for %s", s.Name(), res.Status, url)
		default:
			failures = append(failures, fmt.Sprintf("%s: %v (%d bytes)", s.Name(), ErrEmptyBody, len(res.HTML)))
			c.logger.Printf("strategy %s returned %d bytes for %s", s.Name(), len(res.HTML), url)
		}
	}

	if tried == 0 {
		return models.FetchResult{}, fmt.Errorf("no strategy satisfies required capabilities for %s", url)
	}
	return models.FetchResult{}, fmt.Errorf("all fetch strategies failed for %s: %s", url, strings.Join(failures, "; "))
}
