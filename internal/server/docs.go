package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerDocs registers the discovery endpoints: a service index, the
// capability report and a short usage guide.
func registerDocs(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"service": "pagesift",
			"endpoints": map[string]string{
				"/scrape":               "POST - legacy one-shot extraction",
				"/scrape-advanced":      "POST - full content bundle with auxiliary pages",
				"/analyze":              "POST - analyze a website into a session",
				"/extract":              "POST - extract data guided by requirements",
				"/chat":                 "POST - converse about the analyzed site",
				"/history/{session_id}": "GET - conversation history",
				"/session/new":          "POST - create a new session",
				"/session/{session_id}": "DELETE - drop a session",
				"/capabilities":         "GET - available features",
				"/help":                 "GET - usage guide",
				"/healthz":              "GET - health check",
				"/metrics":              "GET - prometheus metrics",
			},
		})
	})

	e.GET("/capabilities", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"basic_scraping":    true,
			"advanced_scraping": true,
			"js_rendering":      true,
			"ai_extraction":     true,
			"image_download":    true,
		})
	})

	e.GET("/help", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"message": "pagesift usage",
			"workflow": map[string]string{
				"1. session": "POST /session/new to open a conversation",
				"2. analyze": "POST /analyze with the session_id and a url",
				"3. refine":  "POST /chat to ask what data is available",
				"4. extract": "POST /extract with requirements and optional fields",
			},
			"examples": map[string]interface{}{
				"analyze": map[string]string{"session_id": "<id>", "url": "https://example.com"},
				"extract": map[string]interface{}{
					"session_id":   "<id>",
					"requirements": "product names and prices",
					"fields": []map[string]string{
						{"name": "title", "type": "string"},
						{"name": "price", "type": "string"},
					},
				},
			},
		})
	})
}
