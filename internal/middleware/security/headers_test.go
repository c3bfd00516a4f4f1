package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHeadersAndRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(HeadersMiddleware(HeadersConfig{}), RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("request_id").(string))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("X-Frame-Options = %q", resp.Header.Get("X-Frame-Options"))
	}
	if resp.Header.Get("Strict-Transport-Security") == "" {
		t.Fatal("missing Strict-Transport-Security outside development")
	}
	if len(resp.Header.Get(RequestIDHeader)) != 36 {
		t.Fatalf("generated request id = %q", resp.Header.Get(RequestIDHeader))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.Header.Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id = %q, want echo", resp.Header.Get(RequestIDHeader))
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := OriginAllowed([]string{"chrome-extension://", "http://localhost:"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"chrome-extension://abcdefghijklmnop", true},
		{"http://localhost:3000", true},
		{"http://localhost.evil.com", false},
		{"https://example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := allowed(tt.origin); got != tt.want {
			t.Fatalf("OriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !OriginAllowed([]string{"*"})("https://anything") {
		t.Fatal("wildcard must allow every origin")
	}
}
