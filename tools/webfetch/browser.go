package webfetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/models"
)

// RenderStrategy drives headless Chrome just far enough to execute page
// JavaScript: navigate, wait for the body, capture the DOM.
type RenderStrategy struct {
	timeout   time.Duration
	userAgent string
}

func NewRenderStrategy(cfg config.ScrapingConfig) *RenderStrategy {
	return &RenderStrategy{timeout: cfg.RenderTimeout, userAgent: cfg.UserAgent}
}

func (s *RenderStrategy) Name() string             { return "render" }
func (s *RenderStrategy) Capabilities() Capability { return CapJS }
func (s *RenderStrategy) Timeout() time.Duration   { return s.timeout }

func (s *RenderStrategy) Fetch(ctx context.Context, url string) (models.FetchResult, error) {
	t0 := time.Now()
	html, err := runChrome(ctx, s.userAgent,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return models.FetchResult{}, &RenderError{Strategy: s.Name(), Err: err}
	}
	return models.FetchResult{URL: url, Status: 200, HTML: html, Elapsed: time.Since(t0)}, nil
}

// BrowserStrategy is the full browser-automation fallback for hostile pages:
// rotated identity, scroll to the bottom to trigger lazy loading, then a
// settle delay before capture.
type BrowserStrategy struct {
	timeout time.Duration
}

func NewBrowserStrategy(cfg config.ScrapingConfig) *BrowserStrategy {
	return &BrowserStrategy{timeout: cfg.BrowserTimeout}
}

func (s *BrowserStrategy) Name() string             { return "browser" }
func (s *BrowserStrategy) Capabilities() Capability { return CapJS | CapAntiBot }
func (s *BrowserStrategy) Timeout() time.Duration   { return s.timeout }

func (s *BrowserStrategy) Fetch(ctx context.Context, url string) (models.FetchResult, error) {
	t0 := time.Now()
	html, err := runChrome(ctx, randomUserAgent(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return models.FetchResult{}, &RenderError{Strategy: s.Name(), Err: err}
	}
	return models.FetchResult{URL: url, Status: 200, HTML: html, Elapsed: time.Since(t0)}, nil
}

// runChrome executes the given actions in a fresh headless browser context
// and returns the final outer HTML of the page.
func runChrome(ctx context.Context, userAgent string, actions ...chromedp.Action) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(bctx, actions...); err != nil {
		return "", err
	}
	return html, nil
}
