// Package simulation projects uplift, ROI and payback for deploying a set of
// levers to one store.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/pkg/logger"
)

type Reference interface {
	TypologyNames(ctx context.Context) ([]string, error)
	LeverNames(ctx context.Context) ([]string, error)
	Coefficients(ctx context.Context, typology string) (models.CoefficientSet, error)
	CostBasis(ctx context.Context, typology string, levers []string) ([]models.CostBasis, error)
}

type Input struct {
	Typology  string        `json:"tipologia"`
	Levers    []string      `json:"palancas"`
	StoreSize StoreSize     `json:"tamanoTienda"`
	Features  FeatureInputs `json:"features"`
	MarginPct float64       `json:"maco"`
	FXRate    float64       `json:"exchangeRate"`
}

type CostLine struct {
	Lever     string  `json:"palanca"`
	CapexBase float64 `json:"capex_base"`
	FeeBase   float64 `json:"fee_base"`
	Capex     float64 `json:"capex"`
	Fee       float64 `json:"fee"`
}

type Result struct {
	UpliftPct         float64            `json:"uplift_pct"`
	ROI               float64            `json:"roi"`
	PaybackPeriods    *float64           `json:"payback_periods"`
	PredictedWith     float64            `json:"predicted_with"`
	PredictedWithout  float64            `json:"predicted_without"`
	IncrementalProfit float64            `json:"incremental_monthly_profit"`
	CostBreakdown     []CostLine         `json:"cost_breakdown"`
	TotalCapex        float64            `json:"total_capex"`
	TotalFee          float64            `json:"total_fee"`
	BaselineVolume    float64            `json:"baseline_volume"`
	Features          map[string]float64 `json:"features"`
}

type Calculator struct {
	ref Reference
}

func NewCalculator(ref Reference) *Calculator {
	return &Calculator{ref: ref}
}

// Simulate validates the input, then combines the typology's OLS model with
// the cost basis of the selected levers.
func (c *Calculator) Simulate(ctx context.Context, in Input) (*Result, error) {
	levers, err := c.validate(ctx, &in)
	if err != nil {
		return nil, err
	}

	coef, err := c.ref.Coefficients(ctx, in.Typology)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &NotFoundError{What: "coeficientes OLS", Key: in.Typology}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coefficients: %w", err)
	}

	costs, err := c.costs(ctx, in.Typology, levers, in.FXRate)
	if err != nil {
		return nil, err
	}

	baseline, err := lookupBaseline(in.Typology, in.StoreSize)
	if err != nil {
		return nil, err
	}

	vocabulary, err := c.ref.LeverNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load levers: %w", err)
	}

	selected := make(map[string]bool, len(levers))
	for _, l := range levers {
		selected[l] = true
	}

	vector := featureVector(in.Typology, in.Features, baseline, vocabulary, selected)
	with := predict(coef, vector)
	without := predict(coef, withoutLevers(vector, vocabulary))

	res := &Result{
		PredictedWith:    round(with, 2),
		PredictedWithout: round(without, 2),
		CostBreakdown:    costs.lines,
		TotalCapex:       costs.capex.InexactFloat64(),
		TotalFee:         costs.fee.InexactFloat64(),
		BaselineVolume:   baseline,
		Features:         vector,
	}

	if without > 0 {
		res.UpliftPct = round((with-without)/without*100, 2)
	}

	margin := decimal.NewFromFloat(in.MarginPct).Div(decimal.NewFromInt(100))
	incremental := decimal.NewFromFloat(with - without).Mul(margin)
	res.IncrementalProfit = round(incremental.InexactFloat64(), 2)

	res.PaybackPeriods = payback(costs.capex, incremental, costs.fee)
	res.ROI = roi(costs.capex, incremental, costs.fee)

	logger.Info("Simulation calculated",
		zap.String("typology", in.Typology),
		zap.Strings("levers", levers),
		zap.Float64("uplift_pct", res.UpliftPct),
		zap.Float64("roi", res.ROI),
	)

	return res, nil
}

func (c *Calculator) validate(ctx context.Context, in *Input) ([]string, error) {
	in.Typology = strings.TrimSpace(in.Typology)
	if in.Typology == "" {
		return nil, invalid("tipologia", "is required")
	}

	var levers []string
	seen := map[string]bool{}
	for _, l := range in.Levers {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		levers = append(levers, l)
	}
	if len(levers) == 0 {
		return nil, invalid("palancas", "select at least one lever")
	}

	if !in.StoreSize.Valid() {
		return nil, invalid("tamanoTienda", "must be one of %s, %s, %s", SizeSmall, SizeMedium, SizeLarge)
	}
	if in.MarginPct < 0 || in.MarginPct > 100 {
		return nil, invalid("maco", "must be between 0 and 100")
	}
	if in.FXRate <= 0 {
		return nil, invalid("exchangeRate", "must be positive")
	}
	if err := in.Features.check(); err != nil {
		return nil, err
	}

	typologies, err := c.ref.TypologyNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load typologies: %w", err)
	}
	if !containsName(typologies, in.Typology) {
		return nil, invalid("tipologia", "unknown typology %q", in.Typology)
	}

	known, err := c.ref.LeverNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load levers: %w", err)
	}
	for _, l := range levers {
		if l == models.ControlLever {
			return nil, invalid("palancas", "%q is the baseline group and cannot be simulated", l)
		}
		if !containsName(known, l) {
			return nil, invalid("palancas", "unknown lever %q", l)
		}
	}

	return levers, nil
}

type costTotals struct {
	lines      []CostLine
	capex, fee decimal.Decimal
}

// costs sums the cost basis of every lever in local currency. A lever with no
// cost row fails the simulation.
func (c *Calculator) costs(ctx context.Context, typology string, levers []string, fx float64) (*costTotals, error) {
	rows, err := c.ref.CostBasis(ctx, typology, levers)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost basis: %w", err)
	}

	byLever := make(map[string]models.CostBasis, len(rows))
	for _, r := range rows {
		byLever[r.Lever] = r
	}

	rate := decimal.NewFromFloat(fx)
	t := &costTotals{capex: decimal.Zero, fee: decimal.Zero}

	for _, l := range levers {
		r, ok := byLever[l]
		if !ok {
			return nil, &NotFoundError{What: "capex/fee", Key: fmt.Sprintf("%s/%s", typology, l)}
		}

		capex := decimal.NewFromFloat(r.Capex).Mul(rate)
		fee := decimal.NewFromFloat(r.Fee).Mul(rate)
		t.capex = t.capex.Add(capex)
		t.fee = t.fee.Add(fee)

		t.lines = append(t.lines, CostLine{
			Lever:     l,
			CapexBase: r.Capex,
			FeeBase:   r.Fee,
			Capex:     capex.InexactFloat64(),
			Fee:       fee.InexactFloat64(),
		})
	}
	return t, nil
}

// payback is capex over monthly net profit. It is nil when the levers never
// pay back and when there is no capex to recover.
func payback(capex, incremental, fee decimal.Decimal) *float64 {
	net := incremental.Sub(fee)
	if !capex.IsPositive() || !net.IsPositive() {
		return nil
	}
	v := capex.Div(net).InexactFloat64()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	v = round(v, 2)
	return &v
}

func roi(capex, incremental, fee decimal.Decimal) float64 {
	twelve := decimal.NewFromInt(12)
	denom := capex.Add(fee.Mul(twelve))
	if denom.IsZero() {
		return 0
	}
	num := incremental.Mul(twelve).Sub(fee.Mul(twelve)).Sub(capex)
	return round(num.Div(denom).InexactFloat64(), 2)
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
