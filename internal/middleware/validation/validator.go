package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

type Config struct {
	MaxTextLength       int
	AllowedContentTypes []string
	Logger              *zap.Logger
	// Reject writes the response for a refused request.
	Reject func(c *fiber.Ctx, status int, message string) error
}

// Rejection is a body refused by the validator.
type Rejection struct {
	Status  int
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func badRequest(message string) *Rejection {
	return &Rejection{Status: fiber.StatusBadRequest, Message: message}
}

// Validator holds the body checks shared by the HTTP middleware and the
// websocket endpoint.
type Validator struct {
	maxTextLength int
	policy        *bluemonday.Policy
	logger        *zap.Logger
}

func New(cfg Config) *Validator {
	if cfg.MaxTextLength == 0 {
		cfg.MaxTextLength = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Validator{
		maxTextLength: cfg.MaxTextLength,
		policy:        bluemonday.StrictPolicy(),
		logger:        cfg.Logger,
	}
}

// FactCheck checks a {type, data} body and returns it with markup stripped
// from the claim text. A body it cannot interpret comes back unchanged so
// the dispatcher can report the precise problem. Refusals are *Rejection.
func (v *Validator) FactCheck(raw []byte, client string) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return raw, nil
	}
	data, _ := body["data"].(map[string]any)
	kind, _ := body["type"].(string)
	if data == nil {
		return raw, nil
	}

	switch kind {
	case "text":
		text, ok := data["text"].(string)
		if !ok {
			return raw, nil
		}
		if len(text) > v.maxTextLength {
			return nil, badRequest("Text exceeds maximum length")
		}
		if clean := stripMarkup(v.policy, text); clean != text {
			v.logger.Warn("Stripped markup from claim text", zap.String("client", client))
			data["text"] = clean
			return rewrite(body)
		}
	case "url", "page":
		u, ok := data["url"].(string)
		if ok && strings.TrimSpace(u) != "" && !IsValidURL(u) {
			return nil, badRequest("Invalid URL format")
		}
	}
	return raw, nil
}

// Search checks a {query, num_results} body the same way.
func (v *Validator) Search(raw []byte, client string) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return raw, nil
	}
	query, ok := body["query"].(string)
	if !ok {
		return raw, nil
	}
	if len(query) > v.maxTextLength {
		return nil, badRequest("Query exceeds maximum length")
	}
	if clean := stripMarkup(v.policy, query); clean != query {
		v.logger.Warn("Stripped markup from search query", zap.String("client", client))
		body["query"] = clean
		return rewrite(body)
	}
	return raw, nil
}

func rewrite(body map[string]any) ([]byte, error) {
	out, err := json.Marshal(body)
	if err != nil {
		return nil, badRequest("Invalid JSON format")
	}
	return out, nil
}

func defaultReject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// Middleware runs the Validator over fact-check and search bodies before
// they reach the handlers. A non-JSON content type is a 400 like every other
// malformed request.
func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Reject == nil {
		cfg.Reject = defaultReject
	}
	v := New(cfg)

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return cfg.Reject(c, fiber.StatusBadRequest, "Unsupported content type")
		}

		check := v.FactCheck
		switch {
		case strings.HasSuffix(c.Path(), "/fact-check"):
		case strings.HasSuffix(c.Path(), "/search"):
			check = v.Search
		default:
			return c.Next()
		}

		raw := c.Body()
		body, err := check(raw, c.IP())
		if err != nil {
			var rej *Rejection
			if !errors.As(err, &rej) {
				rej = badRequest(err.Error())
			}
			return cfg.Reject(c, rej.Status, rej.Message)
		}
		if !bytes.Equal(body, raw) {
			c.Request().SetBody(body)
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

// stripMarkup removes HTML tags. Text without a '<' is returned unchanged so
// plain claims keep their ampersands and quotes.
func stripMarkup(policy *bluemonday.Policy, s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

func IsValidURL(urlStr string) bool {
	u, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
