package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/pagesift/extractor"
	"github.com/mohammad-safakhou/pagesift/models"
	"github.com/mohammad-safakhou/pagesift/scrape"
	"github.com/mohammad-safakhou/pagesift/session"
)

// Pipeline is the part of the scrape service the HTTP layer needs.
type Pipeline interface {
	Scrape(ctx context.Context, url string) (scrape.ScrapeResult, error)
	ScrapeAdvanced(ctx context.Context, url string, useJS bool, maxPages int) (scrape.AdvancedResult, error)
	Analyze(ctx context.Context, sessionID, url string) (scrape.AnalyzeResult, error)
	Extract(ctx context.Context, sessionID, requirements string, schema models.ExtractionSchema) (scrape.ExtractResult, error)
	Chat(ctx context.Context, sessionID, message string) (string, error)
}

type Handler struct {
	Pipeline Pipeline
	Sessions session.Store
}

func (h *Handler) Register(e *echo.Echo) {
	e.POST("/scrape", h.scrape)
	e.POST("/scrape-advanced", h.scrapeAdvanced)
	e.POST("/analyze", h.analyze)
	e.POST("/extract", h.extract)
	e.POST("/chat", h.chat)
	e.POST("/session/new", h.newSession)
	e.GET("/history/:session_id", h.history)
	e.DELETE("/session/:session_id", h.deleteSession)
}

func (h *Handler) scrape(c echo.Context) error {
	start := time.Now()
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url required")
	}
	result, err := h.Pipeline.Scrape(c.Request().Context(), req.URL)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"items":           result.Items,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) scrapeAdvanced(c echo.Context) error {
	start := time.Now()
	var req struct {
		URL      string `json:"url"`
		UseJS    bool   `json:"use_js"`
		MaxPages int    `json:"max_pages"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url required")
	}
	result, err := h.Pipeline.ScrapeAdvanced(c.Request().Context(), req.URL, req.UseJS, req.MaxPages)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":             true,
		"main_page":           result.Primary,
		"additional_pages":    result.Auxiliary,
		"extraction_method":   result.Strategy,
		"total_pages_scraped": result.PagesScraped,
		"processing_time":     time.Since(start).Seconds(),
	})
}

func (h *Handler) analyze(c echo.Context) error {
	start := time.Now()
	var req struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	if err := c.Bind(&req); err != nil || req.SessionID == "" || strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and url required")
	}
	result, err := h.Pipeline.Analyze(c.Request().Context(), req.SessionID, req.URL)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"session_id":      req.SessionID,
		"analysis":        result.Analysis,
		"ai_response":     result.AIResponse,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) extract(c echo.Context) error {
	start := time.Now()
	var req struct {
		SessionID    string               `json:"session_id"`
		Requirements string               `json:"requirements"`
		Fields       []models.SchemaField `json:"fields"`
	}
	if err := c.Bind(&req); err != nil || req.SessionID == "" || strings.TrimSpace(req.Requirements) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and requirements required")
	}
	schema := models.ExtractionSchema{Fields: req.Fields}
	if len(schema.Fields) == 0 {
		schema = extractor.DefaultSchema()
	}
	result, err := h.Pipeline.Extract(c.Request().Context(), req.SessionID, req.Requirements, schema)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"session_id":      req.SessionID,
		"items":           result.Items,
		"ai_response":     result.AIResponse,
		"scraping_info":   result.Info,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) chat(c echo.Context) error {
	start := time.Now()
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message required")
	}
	reply, err := h.Pipeline.Chat(c.Request().Context(), req.SessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"session_id":      req.SessionID,
		"ai_response":     reply,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) newSession(c echo.Context) error {
	id, err := h.Sessions.Create(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
	})
}

func (h *Handler) history(c echo.Context) error {
	id := c.Param("session_id")
	turns, err := h.Sessions.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
		"history":    turns,
	})
}

func (h *Handler) deleteSession(c echo.Context) error {
	id := c.Param("session_id")
	if err := h.Sessions.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
	})
}
