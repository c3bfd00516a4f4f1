package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMiddlewareLimitsPerClient(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(clientID string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", clientID)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := do("a"); got != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, got)
		}
	}
	if got := do("a"); got != fiber.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", got)
	}
	if got := do("b"); got != fiber.StatusOK {
		t.Fatalf("other client status = %d, want 200", got)
	}
}
