package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/internal/middleware/validation"
	"github.com/lever-lab/backend/internal/simulation"
	"github.com/lever-lab/backend/internal/storage/repo"
)

type SimulationHandler struct {
	calc *simulation.Calculator
	repo *repo.Repository
}

func NewSimulationHandler(calc *simulation.Calculator, r *repo.Repository) *SimulationHandler {
	return &SimulationHandler{
		calc: calc,
		repo: r,
	}
}

// Required numbers are pointers so that an omitted field is not read as 0.
type calculateRequest struct {
	Typology  string                   `json:"tipologia" validate:"required"`
	Levers    []string                 `json:"palancas" validate:"required,min=1,dive,required,notcontrol"`
	StoreSize string                   `json:"tamanoTienda" validate:"required"`
	Features  simulation.FeatureInputs `json:"features"`
	MarginPct *float64                 `json:"maco" validate:"required,gte=0,lte=100"`
	FXRate    *float64                 `json:"exchangeRate" validate:"required,gt=0"`
}

func (h *SimulationHandler) Calculate(c *fiber.Ctx) error {
	var req calculateRequest
	if err := validation.BindJSON(c, &req); err != nil {
		metrics.SimulationRequests.WithLabelValues("invalid").Inc()
		return badRequest(c, err)
	}

	res, err := h.calc.Simulate(c.UserContext(), simulation.Input{
		Typology:  req.Typology,
		Levers:    req.Levers,
		StoreSize: simulation.StoreSize(req.StoreSize),
		Features:  req.Features,
		MarginPct: *req.MarginPct,
		FXRate:    *req.FXRate,
	})

	var verr *simulation.ValidationError
	var nf *simulation.NotFoundError
	switch {
	case errors.As(err, &verr):
		metrics.SimulationRequests.WithLabelValues("invalid").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   verr.Message,
			"field":   verr.Field,
		})
	case errors.As(err, &nf):
		metrics.SimulationRequests.WithLabelValues("not_found").Inc()
		return fail(c, fiber.StatusNotFound, nf.Error())
	case err != nil:
		metrics.SimulationRequests.WithLabelValues("error").Inc()
		return internalError(c, "Failed to calculate simulation", err)
	}

	metrics.SimulationRequests.WithLabelValues("ok").Inc()

	return c.JSON(fiber.Map{
		"success": true,
		"data":    res,
	})
}

func (h *SimulationHandler) OLSParams(c *fiber.Ctx) error {
	typology := c.Query("tipologia")
	if typology == "" {
		return fail(c, fiber.StatusBadRequest, "tipologia is required")
	}

	coef, err := h.repo.Coefficients(c.UserContext(), typology)
	if errors.Is(err, repo.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "No OLS coefficients for "+typology)
	}
	if err != nil {
		return internalError(c, "Failed to load OLS coefficients", err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"tipologia":    typology,
		"intercept":    coef.Intercept,
		"coefficients": coef.Coefficients,
	})
}

func (h *SimulationHandler) CapexFee(c *fiber.Ctx) error {
	typology := c.Query("tipologia")
	if typology == "" {
		return fail(c, fiber.StatusBadRequest, "tipologia is required")
	}

	var levers []string
	for _, l := range strings.Split(c.Query("palancas"), ",") {
		if l = strings.TrimSpace(l); l != "" {
			levers = append(levers, l)
		}
	}
	if len(levers) == 0 {
		return fail(c, fiber.StatusBadRequest, "palancas is required")
	}

	rows, err := h.repo.CostBasis(c.UserContext(), typology, levers)
	if err != nil {
		return internalError(c, "Failed to load capex and fee", err)
	}
	if len(rows) == 0 {
		return fail(c, fiber.StatusNotFound, "No capex/fee rows for "+typology)
	}

	breakdown := make([]fiber.Map, 0, len(rows))
	var totalCapex, totalFee float64
	for _, r := range rows {
		breakdown = append(breakdown, fiber.Map{
			"palanca": r.Lever,
			"capex":   r.Capex,
			"fee":     r.Fee,
		})
		totalCapex += r.Capex
		totalFee += r.Fee
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"tipologia":   typology,
		"breakdown":   breakdown,
		"total_capex": totalCapex,
		"total_fee":   totalFee,
	})
}
