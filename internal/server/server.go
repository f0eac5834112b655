package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/extractor"
	"github.com/mohammad-safakhou/pagesift/provider"
	"github.com/mohammad-safakhou/pagesift/scrape"
	"github.com/mohammad-safakhou/pagesift/session"
	"github.com/mohammad-safakhou/pagesift/tools/webfetch"
)

// Run assembles the pipeline from configuration and serves the HTTP API
// until the listener fails.
func Run(configPath string) error {
	cfg := config.LoadConfig(configPath)
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	sessions, err := session.NewStore(cfg.Sessions, cfg.Storage.Redis)
	if err != nil {
		return err
	}
	defer sessions.Close()

	if err := os.MkdirAll(cfg.Images.Dir, 0o755); err != nil {
		return fmt.Errorf("images dir: %w", err)
	}

	cascade := webfetch.NewCascade(cfg.Scraping)
	svc := scrape.NewService(cfg, cascade, extractor.New(llm, cfg.LLM.PromptTokenBudget), sessions)

	e := newEcho(cfg)
	h := &Handler{Pipeline: svc, Sessions: sessions}
	h.Register(e)
	registerDocs(e)
	e.Static("/images", cfg.Images.Dir)

	return e.Start(cfg.Server.Address)
}

// newEcho builds the router with the shared middleware stack: panic
// recovery, CORS, a unified JSON error handler and the metrics endpoint.
func newEcho(cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := httpStatus(err)
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"success": false, "error": msg})
		}
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// httpStatus maps pipeline errors onto response codes. Unknown sessions are
// the caller's mistake; upstream site and model failures are gateway errors.
func httpStatus(err error) int {
	var verr *extractor.AIValidationError
	var uerr *webfetch.UpstreamStatusError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scrape.ErrNoAnalysis):
		return http.StatusConflict
	case errors.As(err, &verr), errors.As(err, &uerr):
		return http.StatusBadGateway
	case errors.As(err, new(*webfetch.NetworkError)), errors.As(err, new(*webfetch.RenderError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
