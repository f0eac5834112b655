package scrape

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/extractor"
	"github.com/mohammad-safakhou/pagesift/internal/helpers"
	"github.com/mohammad-safakhou/pagesift/internal/telemetry"
	"github.com/mohammad-safakhou/pagesift/models"
	"github.com/mohammad-safakhou/pagesift/session"
	"github.com/mohammad-safakhou/pagesift/tools/images"
	"github.com/mohammad-safakhou/pagesift/tools/links"
	"github.com/mohammad-safakhou/pagesift/tools/normalize"
	"github.com/mohammad-safakhou/pagesift/tools/structured"
	"github.com/mohammad-safakhou/pagesift/tools/webfetch"
)

// ErrNoAnalysis is returned by Extract when the session holds no cached site
// analysis yet; callers must analyze a URL first.
var ErrNoAnalysis = errors.New("no site analysed in this session yet: call analyze first")

// Fetcher acquires one page; satisfied by *webfetch.Cascade and by test fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string, required webfetch.Capability) (models.FetchResult, error)
}

// Service wires the full pipeline: fetch cascade, normalization, structured
// metadata, link selection, AI extraction and image acquisition.
type Service struct {
	cfg       *config.Config
	fetcher   Fetcher
	extractor *extractor.Extractor
	sessions  session.Store
	logger    *log.Logger
}

func NewService(cfg *config.Config, fetcher Fetcher, ex *extractor.Extractor, sessions session.Store) *Service {
	return &Service{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: ex,
		sessions:  sessions,
		logger:    log.New(log.Writer(), "[SCRAPE] ", log.LstdFlags),
	}
}

// ScrapeResult is the legacy one-shot extraction output.
type ScrapeResult struct {
	Items []models.ExtractedItem `json:"items"`
}

// AdvancedResult exposes the full content bundle of a page plus its
// auxiliary pages.
type AdvancedResult struct {
	Primary      models.ContentBundle   `json:"main_page"`
	Auxiliary    []models.ContentBundle `json:"additional_pages,omitempty"`
	Strategy     string                 `json:"extraction_method"`
	PagesScraped int                    `json:"total_pages_scraped"`
}

// AnalyzeResult carries the inferred site analysis and the raw model reply.
type AnalyzeResult struct {
	Analysis   models.SiteAnalysis `json:"analysis"`
	AIResponse string              `json:"ai_response"`
}

// ExtractResult carries schema-shaped items plus run information.
type ExtractResult struct {
	Items      []models.ExtractedItem `json:"items"`
	AIResponse string                 `json:"ai_response"`
	Info       models.ScrapingInfo    `json:"scraping_info"`
}

// Scrape is the legacy surface: fetch one page, extract title/price/img
// items, download their images.
func (s *Service) Scrape(ctx context.Context, url string) (ScrapeResult, error) {
	t0 := time.Now()
	defer func() { telemetry.OperationDuration.WithLabelValues("scrape").Observe(time.Since(t0).Seconds()) }()

	bundle, _, err := s.fetchAndNormalize(ctx, url, 0)
	if err != nil {
		return ScrapeResult{}, err
	}

	schema := extractor.DefaultSchema()
	items, _, err := s.extractor.Extract(ctx, []models.ContentBundle{bundle}, schema, nil)
	if err != nil {
		telemetry.LLMRequests.WithLabelValues("extract", "error").Inc()
		return ScrapeResult{}, err
	}
	telemetry.LLMRequests.WithLabelValues("extract", "ok").Inc()

	if err := s.resolveItemImages(ctx, url, items, schema); err != nil {
		return ScrapeResult{}, err
	}
	return ScrapeResult{Items: items}, nil
}

// ScrapeAdvanced fetches a page with optional JS rendering and crawls up to
// maxPages auxiliary pages selected from its links.
func (s *Service) ScrapeAdvanced(ctx context.Context, url string, useJS bool, maxPages int) (AdvancedResult, error) {
	t0 := time.Now()
	defer func() {
		telemetry.OperationDuration.WithLabelValues("scrape_advanced").Observe(time.Since(t0).Seconds())
	}()

	if maxPages <= 0 || maxPages > s.cfg.Scraping.MaxPages {
		maxPages = s.cfg.Scraping.MaxPages
	}
	var caps webfetch.Capability
	if useJS {
		caps = webfetch.CapJS
	}

	bundle, res, err := s.fetchAndNormalize(ctx, url, caps)
	if err != nil {
		return AdvancedResult{}, err
	}

	fetched := map[string]bool{}
	if canonical, cerr := helpers.CanonicalURL(url); cerr == nil {
		fetched[canonical] = true
	}
	auxURLs := links.Select(bundle.Links, url, "", fetched, maxPages-1)
	aux := s.fetchAuxiliary(ctx, auxURLs, caps)

	return AdvancedResult{
		Primary:      bundle,
		Auxiliary:    aux,
		Strategy:     res.Strategy,
		PagesScraped: 1 + len(aux),
	}, nil
}

// Analyze runs the analysis pass over a page and caches the result on the
// session for later extraction turns.
func (s *Service) Analyze(ctx context.Context, sessionID, url string) (AnalyzeResult, error) {
	t0 := time.Now()
	defer func() { telemetry.OperationDuration.WithLabelValues("analyze").Observe(time.Since(t0).Seconds()) }()

	// Session must exist before any state is written to it.
	if _, err := s.sessions.History(ctx, sessionID); err != nil {
		return AnalyzeResult{}, err
	}

	bundle, _, err := s.fetchAndNormalize(ctx, url, 0)
	if err != nil {
		return AnalyzeResult{}, err
	}

	analysis, raw, err := s.extractor.Analyze(ctx, bundle)
	if err != nil {
		telemetry.LLMRequests.WithLabelValues("analyze", "error").Inc()
		return AnalyzeResult{}, err
	}
	telemetry.LLMRequests.WithLabelValues("analyze", "ok").Inc()

	if err := s.sessions.SetAnalysis(ctx, sessionID, analysis); err != nil {
		return AnalyzeResult{}, err
	}
	now := time.Now()
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleUser, Content: "analyze " + url, Timestamp: now})
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleAssistant, Content: raw, Timestamp: now})

	return AnalyzeResult{Analysis: analysis, AIResponse: raw}, nil
}

// Extract maps the analysed site's content onto the requested schema, guided
// by the session's conversation and the requirement text.
func (s *Service) Extract(ctx context.Context, sessionID, requirements string, schema models.ExtractionSchema) (ExtractResult, error) {
	t0 := time.Now()
	defer func() { telemetry.OperationDuration.WithLabelValues("extract").Observe(time.Since(t0).Seconds()) }()

	analysis, err := s.sessions.Analysis(ctx, sessionID)
	if err != nil {
		return ExtractResult{}, err
	}
	if analysis == nil {
		return ExtractResult{}, ErrNoAnalysis
	}
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return ExtractResult{}, err
	}

	bundle, res, err := s.fetchAndNormalize(ctx, analysis.URL, 0)
	if err != nil {
		return ExtractResult{}, err
	}

	fetched := map[string]bool{}
	if canonical, cerr := helpers.CanonicalURL(analysis.URL); cerr == nil {
		fetched[canonical] = true
	}
	auxURLs := links.Select(bundle.Links, analysis.URL, requirements, fetched, s.cfg.Scraping.MaxPages-1)
	bundles := append([]models.ContentBundle{bundle}, s.fetchAuxiliary(ctx, auxURLs, 0)...)

	history = append(history, models.ConversationTurn{Role: models.RoleUser, Content: "Requirements: " + requirements, Timestamp: time.Now()})
	items, raw, err := s.extractor.Extract(ctx, bundles, schema, history)
	if err != nil {
		telemetry.LLMRequests.WithLabelValues("extract", "error").Inc()
		return ExtractResult{}, err
	}
	telemetry.LLMRequests.WithLabelValues("extract", "ok").Inc()

	if err := s.resolveItemImages(ctx, analysis.URL, items, schema); err != nil {
		return ExtractResult{}, err
	}

	now := time.Now()
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleUser, Content: "extract " + requirements, Timestamp: now})
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleAssistant, Content: raw, Timestamp: now})

	contentChars := 0
	for _, b := range bundles {
		contentChars += len(b.MainContent)
	}
	return ExtractResult{
		Items:      items,
		AIResponse: raw,
		Info: models.ScrapingInfo{
			Method:       res.Strategy,
			PagesScraped: len(bundles),
			ContentChars: contentChars,
		},
	}, nil
}

// Chat produces a conversational reply grounded in the session's analysis.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, error) {
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return "", err
	}
	analysis, err := s.sessions.Analysis(ctx, sessionID)
	if err != nil {
		return "", err
	}

	reply, err := s.extractor.Chat(ctx, history, analysis, message)
	if err != nil {
		telemetry.LLMRequests.WithLabelValues("chat", "error").Inc()
		return "", err
	}
	telemetry.LLMRequests.WithLabelValues("chat", "ok").Inc()

	now := time.Now()
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleUser, Content: message, Timestamp: now})
	_ = s.sessions.AppendTurn(ctx, sessionID, models.ConversationTurn{Role: models.RoleAssistant, Content: reply, Timestamp: now})
	return reply, nil
}

// fetchAndNormalize runs the cascade and derives the merged content bundle.
func (s *Service) fetchAndNormalize(ctx context.Context, url string, caps webfetch.Capability) (models.ContentBundle, models.FetchResult, error) {
	res, err := s.fetcher.Fetch(ctx, url, caps)
	if err != nil {
		telemetry.Fetches.WithLabelValues("none", "error").Inc()
		return models.ContentBundle{}, models.FetchResult{}, err
	}
	telemetry.Fetches.WithLabelValues(res.Strategy, "ok").Inc()

	bundle := normalize.Normalize(url, res.HTML)
	bundle.StructuredData = structured.Extract(res.HTML)
	bundle.Title = structured.MergedTitle(bundle.StructuredData, bundle.Title)
	bundle.MetaDescription = structured.MergedDescription(bundle.StructuredData, bundle.MetaDescription)
	return bundle, res, nil
}

// fetchAuxiliary fetches the selected pages concurrently, bounded by the
// configured worker pool, and drops the ones that fail. Auxiliary pages are
// best effort; the primary page alone is enough to extract from.
func (s *Service) fetchAuxiliary(ctx context.Context, urls []string, caps webfetch.Capability) []models.ContentBundle {
	if len(urls) == 0 {
		return nil
	}
	concurrency := s.cfg.Scraping.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	out := make([]models.ContentBundle, len(urls))
	ok := make([]bool, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			bundle, _, err := s.fetchAndNormalize(ctx, u, caps)
			if err != nil {
				s.logger.Printf("auxiliary page %s skipped: %v", u, err)
				return
			}
			out[i], ok[i] = bundle, true
		}(i, u)
	}
	wg.Wait()

	var bundles []models.ContentBundle
	for i := range out {
		if ok[i] {
			bundles = append(bundles, out[i])
		}
	}
	return bundles
}

// resolveItemImages makes url-typed item fields absolute and downloads each
// into the run's asset table, adding a "<field>_local" reference alongside.
// Failures degrade to the remote URL, never the item.
func (s *Service) resolveItemImages(ctx context.Context, pageURL string, items []models.ExtractedItem, schema models.ExtractionSchema) error {
	var urlFields []string
	for _, f := range schema.Fields {
		if strings.EqualFold(f.Type, "url") {
			urlFields = append(urlFields, f.Name)
		}
	}
	if len(urlFields) == 0 {
		return nil
	}

	acquirer, err := images.NewAcquirer(s.cfg.Images)
	if err != nil {
		return err
	}
	for _, item := range items {
		for _, field := range urlFields {
			src, ok := item[field]
			if !ok || strings.TrimSpace(src) == "" {
				continue
			}
			absolute := helpers.ResolveRef(pageURL, src)
			item[field] = absolute
			asset := acquirer.Acquire(ctx, absolute)
			telemetry.ImageDownloads.WithLabelValues(string(asset.Status)).Inc()
			item[field+"_local"] = asset.PublicRef
		}
	}
	return nil
}
