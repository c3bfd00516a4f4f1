package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/storage/models"
	"github.com/factcheck-pro/backend/pkg/logger"
)

type HistoryStore interface {
	ListChecks(ctx context.Context, filter models.HistoryFilter) ([]models.CheckRecord, error)
}

type HistoryHandler struct {
	service *factcheck.Service
	store   HistoryStore
}

func NewHistoryHandler(service *factcheck.Service, store HistoryStore) *HistoryHandler {
	return &HistoryHandler{service: service, store: store}
}

// GetHistory serves GET /api/history?limit=N&type=T.
func (h *HistoryHandler) GetHistory(c *fiber.Ctx) error {
	filter := models.HistoryFilter{
		Limit:      c.QueryInt("limit", 0),
		SourceType: c.Query("type"),
	}

	records, err := h.store.ListChecks(c.UserContext(), filter)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(h.service.ErrorEnvelope("Failed to load history"))
	}

	return c.JSON(h.service.DataEnvelope(records))
}
