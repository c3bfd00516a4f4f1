package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/pkg/logger"
)

type FactCheckHandler struct {
	service *factcheck.Service
}

func NewFactCheckHandler(service *factcheck.Service) *FactCheckHandler {
	return &FactCheckHandler{service: service}
}

// HandleFactCheck serves POST /api/fact-check.
func (h *FactCheckHandler) HandleFactCheck(c *fiber.Ctx) error {
	req, err := DecodeRequest(c.Body())
	if err != nil {
		return h.reject(c, fiber.StatusBadRequest, err.Error())
	}

	env, err := h.service.Check(c.UserContext(), req)
	if err != nil {
		return h.reject(c, fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(env)
}

// HandleSearch serves POST /api/search.
func (h *FactCheckHandler) HandleSearch(c *fiber.Ctx) error {
	var req factcheck.SearchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return h.reject(c, fiber.StatusBadRequest, "Invalid JSON body")
	}

	env, err := h.service.Search(c.UserContext(), req)
	if err != nil {
		return h.reject(c, fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(env)
}

// Reject writes a refused request as an error envelope.
func (h *FactCheckHandler) Reject(c *fiber.Ctx, status int, message string) error {
	return h.reject(c, status, message)
}

func (h *FactCheckHandler) reject(c *fiber.Ctx, status int, message string) error {
	logger.Warn("Rejected request",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.String("reason", message),
	)
	return c.Status(status).JSON(h.service.ClientErrorEnvelope(message))
}

// DecodeRequest reads a {type, data} body. A type that is not a string or
// data that is not an object counts as missing.
func DecodeRequest(body []byte) (factcheck.Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return factcheck.Request{}, &factcheck.ClientInputError{Message: "Missing required fields: 'type' and 'data'"}
	}

	kind, _ := raw["type"].(string)
	data, _ := raw["data"].(map[string]any)
	return factcheck.Request{Type: kind, Data: data}, nil
}
