package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lever-lab/backend/internal/cache"
	"github.com/lever-lab/backend/internal/session"
	"github.com/lever-lab/backend/pkg/logger"
)

type AnalyticsHandler struct {
	sessions *session.Manager
	cache    cache.Cache
}

func NewAnalyticsHandler(sessions *session.Manager, c cache.Cache) *AnalyticsHandler {
	return &AnalyticsHandler{
		sessions: sessions,
		cache:    c,
	}
}

func (h *AnalyticsHandler) Sessions(c *fiber.Ctx) error {
	stats, err := h.cache.Stats(c.UserContext())
	if err != nil {
		return internalError(c, "Failed to read cache stats", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"analytics": fiber.Map{
			"cache":    stats,
			"sessions": h.sessions.Stats(),
		},
	})
}

func (h *AnalyticsHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.cache.Clear(c.UserContext()); err != nil {
		return internalError(c, "Failed to clear cache", err)
	}

	logger.Info("Query cache cleared")

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared successfully",
	})
}
