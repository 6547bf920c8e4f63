package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/internal/timeline"
)

type DashboardHandler struct {
	repo    *repo.Repository
	aligner *timeline.Aligner
}

func NewDashboardHandler(r *repo.Repository, aligner *timeline.Aligner) *DashboardHandler {
	return &DashboardHandler{
		repo:    r,
		aligner: aligner,
	}
}

func (h *DashboardHandler) FilterOptions(c *fiber.Ctx) error {
	opts, err := h.repo.FilterOptions(c.UserContext())
	if err != nil {
		return internalError(c, "Failed to load filter options", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    opts,
	})
}

// Timeline aligns lever and control series for the filters in the query
// string. An empty series is a successful response.
func (h *DashboardHandler) Timeline(c *fiber.Ctx) error {
	f := timeline.Filter{
		Typology: c.Query("tipologia"),
		Source:   c.Query("fuente"),
		Unit:     c.Query("unidad"),
		Category: c.Query("categoria"),
		Lever:    c.Query("palanca"),
	}

	res, err := h.aligner.Align(c.UserContext(), f)

	var missing *timeline.MissingFiltersError
	if errors.As(err, &missing) {
		metrics.TimelineRequests.WithLabelValues("invalid").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":        false,
			"error":          "Missing required filters",
			"missing_fields": missing.Fields,
		})
	}
	if err != nil {
		metrics.TimelineRequests.WithLabelValues("error").Inc()
		return internalError(c, "Failed to build timeline", err)
	}

	status := "ok"
	if len(res.Points) == 0 {
		status = "empty"
	}
	metrics.TimelineRequests.WithLabelValues(status).Inc()

	return c.JSON(fiber.Map{
		"success": true,
		"data":    res,
	})
}

func (h *DashboardHandler) Results(c *fiber.Ctx) error {
	rows, err := h.repo.Summary(c.UserContext(), models.SummaryFilter{
		Typology: c.Query("tipologia"),
		Lever:    c.Query("palanca"),
		Category: c.Query("categoria"),
		Unit:     c.Query("unidad"),
		Source:   c.Query("fuente"),
	})
	if err != nil {
		return internalError(c, "Failed to load dashboard results", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"total":   len(rows),
	})
}
