package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/extractor"
	"github.com/mohammad-safakhou/pagesift/models"
	"github.com/mohammad-safakhou/pagesift/scrape"
	"github.com/mohammad-safakhou/pagesift/session"
)

type fakePipeline struct {
	scrapeResult  scrape.ScrapeResult
	extractSchema models.ExtractionSchema
	err           error
}

func (p *fakePipeline) Scrape(ctx context.Context, url string) (scrape.ScrapeResult, error) {
	return p.scrapeResult, p.err
}

func (p *fakePipeline) ScrapeAdvanced(ctx context.Context, url string, useJS bool, maxPages int) (scrape.AdvancedResult, error) {
	return scrape.AdvancedResult{Strategy: "plain", PagesScraped: 1}, p.err
}

func (p *fakePipeline) Analyze(ctx context.Context, sessionID, url string) (scrape.AnalyzeResult, error) {
	return scrape.AnalyzeResult{}, p.err
}

func (p *fakePipeline) Extract(ctx context.Context, sessionID, requirements string, schema models.ExtractionSchema) (scrape.ExtractResult, error) {
	p.extractSchema = schema
	return scrape.ExtractResult{}, p.err
}

func (p *fakePipeline) Chat(ctx context.Context, sessionID, message string) (string, error) {
	return "hello", p.err
}

func newTestServer(t *testing.T, pipeline Pipeline) (*httptest.Server, session.Store) {
	t.Helper()
	store := session.NewInMemory(time.Hour)
	t.Cleanup(func() { store.Close() })

	e := newEcho(&config.Config{})
	h := &Handler{Pipeline: pipeline, Sessions: store}
	h.Register(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	var payload map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, payload
}

func TestHistoryUnknownSessionIs404(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &fakePipeline{})

	res, err := http.Get(srv.URL + "/history/not-a-session")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
	var payload map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&payload)
	if payload["success"] != false {
		t.Fatalf("error envelope = %v, want success=false", payload)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &fakePipeline{})

	res, payload := postJSON(t, srv.URL+"/session/new", "{}")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("session/new status = %d", res.StatusCode)
	}
	id, _ := payload["session_id"].(string)
	if id == "" {
		t.Fatalf("no session_id in %v", payload)
	}

	histRes, err := http.Get(srv.URL + "/history/" + id)
	if err != nil || histRes.StatusCode != http.StatusOK {
		t.Fatalf("history of fresh session: %v status %d", err, histRes.StatusCode)
	}
	histRes.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/session/"+id, nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil || delRes.StatusCode != http.StatusOK {
		t.Fatalf("delete session: %v status %d", err, delRes.StatusCode)
	}
	delRes.Body.Close()

	gone, _ := http.Get(srv.URL + "/history/" + id)
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted session history status = %d, want 404", gone.StatusCode)
	}
	gone.Body.Close()
}

func TestScrapeEnvelope(t *testing.T) {
	t.Parallel()
	pipeline := &fakePipeline{scrapeResult: scrape.ScrapeResult{Items: []models.ExtractedItem{
		{"title": "Red Mug", "price": "$10"},
	}}}
	srv, _ := newTestServer(t, pipeline)

	res, payload := postJSON(t, srv.URL+"/scrape", `{"url":"https://shop.example"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	if _, ok := payload["processing_time"].(float64); !ok {
		t.Fatalf("processing_time missing from %v", payload)
	}
	items, _ := payload["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items = %v", payload["items"])
	}
}

func TestScrapeRequiresURL(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &fakePipeline{})

	res, payload := postJSON(t, srv.URL+"/scrape", `{}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if payload["success"] != false {
		t.Fatalf("payload = %v", payload)
	}
}

func TestExtractFallsBackToDefaultSchema(t *testing.T) {
	t.Parallel()
	pipeline := &fakePipeline{}
	srv, store := newTestServer(t, pipeline)
	id, _ := store.Create(context.Background())

	res, _ := postJSON(t, srv.URL+"/extract",
		`{"session_id":"`+id+`","requirements":"product names"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	want := extractor.DefaultSchema()
	if len(pipeline.extractSchema.Fields) != len(want.Fields) {
		t.Fatalf("schema = %+v, want default schema", pipeline.extractSchema)
	}
}

func TestExtractBeforeAnalyzeIsConflict(t *testing.T) {
	t.Parallel()
	pipeline := &fakePipeline{err: scrape.ErrNoAnalysis}
	srv, store := newTestServer(t, pipeline)
	id, _ := store.Create(context.Background())

	res, payload := postJSON(t, srv.URL+"/extract",
		`{"session_id":"`+id+`","requirements":"product names"}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.StatusCode)
	}
	if payload["success"] != false {
		t.Fatalf("payload = %v, want success=false", payload)
	}
}

func TestModelValidationFailureIsBadGateway(t *testing.T) {
	t.Parallel()
	pipeline := &fakePipeline{err: &extractor.AIValidationError{Reason: "malformed JSON after retry"}}
	srv, store := newTestServer(t, pipeline)
	id, _ := store.Create(context.Background())

	res, _ := postJSON(t, srv.URL+"/chat",
		`{"session_id":"`+id+`","message":"hi"}`)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
}
