package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/pkg/logger"
)

type SystemHandler struct {
	service *factcheck.Service
}

func NewSystemHandler(service *factcheck.Service) *SystemHandler {
	return &SystemHandler{service: service}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(h.service.Health())
}

func (h *SystemHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.service.Stats())
}

// NotFound is the catch-all route.
func (h *SystemHandler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(h.service.ClientErrorEnvelope("Endpoint not found"))
}

// ErrorHandler turns errors that escape a route into error envelopes.
// Unexpected faults are reported as 500 without their details.
func (h *SystemHandler) ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return h.NotFound(c)
		case fiber.StatusInternalServerError:
		default:
			return c.Status(fe.Code).JSON(h.service.ClientErrorEnvelope(fe.Message))
		}
	}

	logger.Error("Unhandled error",
		zap.String("path", c.Path()),
		zap.String("method", c.Method()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(h.service.ClientErrorEnvelope("Internal server error"))
}
