package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/pkg/logger"
)

const serviceVersion = "1.0.0"

type DataHandler struct {
	repo *repo.Repository
}

func NewDataHandler(r *repo.Repository) *DataHandler {
	return &DataHandler{repo: r}
}

// Summary reports row counts and the span of data on record.
func (h *DataHandler) Summary(c *fiber.Ctx) error {
	ctx := c.UserContext()

	counts, err := h.repo.TableCounts(ctx)
	if err != nil {
		return internalError(c, "Failed to load data summary", err)
	}

	avail, err := h.repo.Availability(ctx)
	if err != nil {
		return internalError(c, "Failed to load data summary", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"summary": counts,
		"availability": fiber.Map{
			"periods":       avail.PeriodCount,
			"first_period":  avail.FirstPeriod,
			"last_period":   avail.LastPeriod,
			"sample_stores": avail.SampleStores,
			"cities":        avail.Cities,
			"levers":        avail.Levers,
		},
	})
}

func (h *DataHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":        "unhealthy",
			"chatbot_ready": false,
			"error":         "database unreachable",
		})
	}

	return c.JSON(fiber.Map{
		"status":        "healthy",
		"chatbot_ready": true,
		"service":       "lever-lab",
		"version":       serviceVersion,
		"timestamp":     time.Now().UTC(),
	})
}
