package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type HeadersConfig struct {
	IsDevelopment bool
}

// HeadersMiddleware sets response hardening headers. The API serves only
// JSON, so the content policy forbids everything.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

// RequestID echoes the caller's X-Request-ID or assigns a new one, and keeps
// it in c.Locals("request_id").
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

// OriginAllowed returns a CORS predicate that accepts any origin starting
// with one of prefixes. A "*" prefix accepts everything.
func OriginAllowed(prefixes []string) func(origin string) bool {
	return func(origin string) bool {
		for _, prefix := range prefixes {
			if prefix == "*" || (prefix != "" && strings.HasPrefix(origin, prefix)) {
				return true
			}
		}
		return false
	}
}
