package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/search/web"
	"github.com/factcheck-pro/backend/internal/storage/models"
)

type stubVerifier struct {
	raw factcheck.Raw
	err error
}

func (s *stubVerifier) VerifyClaim(context.Context, string) (factcheck.Raw, error) {
	return s.raw, s.err
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string, n int) ([]web.SearchResult, error) {
	return []web.SearchResult{{Title: query, URL: "https://example.com"}}[:min(n, 1)], nil
}

type stubHistory struct {
	filter models.HistoryFilter
	err    error
}

func (s *stubHistory) ListChecks(_ context.Context, filter models.HistoryFilter) ([]models.CheckRecord, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return []models.CheckRecord{{ID: "abc", SourceType: "text", Sources: []string{}}}, nil
}

func newTestApp(verifier factcheck.ClaimVerifier, history HistoryStore) (*fiber.App, *factcheck.Service) {
	service := factcheck.NewService(factcheck.Options{
		Verifier: verifier,
		Searcher: stubSearcher{},
	})
	system := NewSystemHandler(service)
	fc := NewFactCheckHandler(service)

	app := fiber.New(fiber.Config{ErrorHandler: system.ErrorHandler})
	api := app.Group("/api")
	api.Post("/fact-check", fc.HandleFactCheck)
	api.Post("/search", fc.HandleSearch)
	api.Get("/health", system.Health)
	api.Get("/stats", system.Stats)
	if history != nil {
		api.Get("/history", NewHistoryHandler(service, history).GetHistory)
	}
	api.Get("/boom", func(c *fiber.Ctx) error { return errors.New("secret detail") })
	app.Use(system.NotFound)
	return app, service
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("response %q is not JSON: %v", raw, err)
	}
	return resp.StatusCode, out
}

func TestFactCheckClientErrors(t *testing.T) {
	app, service := newTestApp(&stubVerifier{}, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty data", `{"type":"text","data":{}}`, "Missing 'text' field in data"},
		{"unknown type", `{"type":"bogus","data":{"x":1}}`, "Unknown fact-check type: bogus"},
		{"missing type", `{"data":{"text":"x"}}`, "Missing required fields: 'type' and 'data'"},
		{"data not object", `{"type":"text","data":"x"}`, "Missing required fields: 'type' and 'data'"},
		{"not json", `nope`, "Missing required fields: 'type' and 'data'"},
		{"non-string url", `{"type":"url","data":{"url":42}}`, "Field 'url' in data must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, "POST", "/api/fact-check", tt.body)
			if status != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if body["success"] != false || body["error"] != tt.want {
				t.Fatalf("body = %v, want error %q", body, tt.want)
			}
			if _, ok := body["data"]; ok {
				t.Fatalf("error envelope carries data: %v", body)
			}
		})
	}

	if n := service.RequestsProcessed(); n != 0 {
		t.Fatalf("rejected requests counted: %d", n)
	}
}

func TestFactCheckText(t *testing.T) {
	correct := factcheck.Flag(false)
	claim := "The moon is cheese"
	app, _ := newTestApp(&stubVerifier{raw: &factcheck.RawResult{Claim: &claim, IsCorrect: &correct}}, nil)

	status, body := doJSON(t, app, "POST", "/api/fact-check", `{"type":"text","data":{"text":"The moon is cheese"}}`)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["success"] != true || body["request_id"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	data := body["data"].(map[string]any)
	if data["claim"] != claim || data["is_correct"] != false || data["source_type"] != "text" {
		t.Fatalf("data = %v", data)
	}
	if _, ok := data["sources"].([]any); !ok {
		t.Fatalf("sources = %v", data["sources"])
	}
}

func TestFactCheckUpstreamFailureIsEnvelope(t *testing.T) {
	app, _ := newTestApp(&stubVerifier{err: context.DeadlineExceeded}, nil)

	status, body := doJSON(t, app, "POST", "/api/fact-check", `{"type":"text","data":{"text":"claim"}}`)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["success"] != false || !strings.Contains(body["error"].(string), "deadline") {
		t.Fatalf("body = %v", body)
	}
}

func TestSearch(t *testing.T) {
	app, _ := newTestApp(&stubVerifier{}, nil)

	status, body := doJSON(t, app, "POST", "/api/search", `{"query":"moon"}`)
	if status != fiber.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	results := body["data"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["title"] != "moon" {
		t.Fatalf("data = %v", body["data"])
	}

	status, body = doJSON(t, app, "POST", "/api/search", `{"num_results":3}`)
	if status != fiber.StatusBadRequest || body["error"] != "Missing 'query' field" {
		t.Fatalf("status = %d, body = %v", status, body)
	}
}

func TestHealthAndStats(t *testing.T) {
	app, _ := newTestApp(&stubVerifier{}, nil)

	status, health := doJSON(t, app, "GET", "/api/health", "")
	if status != fiber.StatusOK || health["status"] != "healthy" {
		t.Fatalf("status = %d, health = %v", status, health)
	}
	agents := health["agents_available"].(map[string]any)
	if agents["fact_checker"] != true || agents["page_analyzer"] != false || agents["web_search"] != true {
		t.Fatalf("agents = %v", agents)
	}

	_, stats := doJSON(t, app, "GET", "/api/stats", "")
	for _, key := range []string{"uptime_seconds", "requests_processed", "start_time", "current_time"} {
		if _, ok := stats[key]; !ok {
			t.Fatalf("stats missing %q: %v", key, stats)
		}
	}
	if _, err := time.Parse(time.RFC3339Nano, stats["start_time"].(string)); err != nil {
		t.Fatalf("start_time: %v", err)
	}
}

func TestNotFoundAndInternalError(t *testing.T) {
	app, _ := newTestApp(&stubVerifier{}, nil)

	status, body := doJSON(t, app, "GET", "/nowhere", "")
	if status != fiber.StatusNotFound || body["error"] != "Endpoint not found" || body["success"] != false {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	status, body = doJSON(t, app, "GET", "/api/boom", "")
	if status != fiber.StatusInternalServerError || body["error"] != "Internal server error" {
		t.Fatalf("status = %d, body = %v", status, body)
	}
}

func TestHistory(t *testing.T) {
	claim := "x"
	store := &stubHistory{}
	app, _ := newTestApp(&stubVerifier{raw: &factcheck.RawResult{Claim: &claim}}, store)

	if status, _ := doJSON(t, app, "POST", "/api/fact-check", `{"type":"text","data":{"text":"x"}}`); status != fiber.StatusOK {
		t.Fatalf("fact-check status = %d", status)
	}

	status, body := doJSON(t, app, "GET", "/api/history?limit=5&type=text", "")
	if status != fiber.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["request_id"] != float64(1) {
		t.Fatalf("request_id = %v, want the current counter 1", body["request_id"])
	}
	if _, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp = %v", body["timestamp"])
	}
	if store.filter.Limit != 5 || store.filter.SourceType != "text" {
		t.Fatalf("filter = %+v", store.filter)
	}
	if records := body["data"].([]any); len(records) != 1 {
		t.Fatalf("data = %v", body["data"])
	}

	store.err = errors.New("disk full")
	status, body = doJSON(t, app, "GET", "/api/history", "")
	if status != fiber.StatusInternalServerError || body["success"] != false || body["error"] != "Failed to load history" {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if _, ok := body["request_id"]; !ok {
		t.Fatalf("error envelope missing request_id: %v", body)
	}
}
