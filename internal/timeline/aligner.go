// Package timeline aligns a lever's treated stores against their control
// group into one chartable series.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/pkg/logger"
)

// Control stores of this typology are restricted to the treated stores' cities.
const cityMatchedTypology = "Droguerías"

type Store interface {
	ActiveStores(ctx context.Context, typology string) ([]models.Store, error)
	Measurements(ctx context.Context, f models.MeasurementFilter) ([]models.Measurement, error)
}

type Filter struct {
	Typology string `json:"tipologia"`
	Source   string `json:"fuente"`
	Unit     string `json:"unidad"`
	Category string `json:"categoria"`
	Lever    string `json:"palanca"`
}

// MissingFiltersError names every mandatory filter that was left empty.
type MissingFiltersError struct {
	Fields []string
}

func (e *MissingFiltersError) Error() string {
	return "missing filters: " + strings.Join(e.Fields, ", ")
}

func (f Filter) Validate() error {
	var missing []string
	for _, fv := range []struct{ name, value string }{
		{"tipologia", f.Typology},
		{"fuente", f.Source},
		{"unidad", f.Unit},
		{"categoria", f.Category},
		{"palanca", f.Lever},
	} {
		if strings.TrimSpace(fv.value) == "" {
			missing = append(missing, fv.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFiltersError{Fields: missing}
	}
	return nil
}

type Point struct {
	Period       string    `json:"period"`
	DisplayDate  string    `json:"display_date"`
	Date         time.Time `json:"date"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	LeverValue   *float64  `json:"lever_value"`
	ControlValue *float64  `json:"control_value"`
}

type Result struct {
	Filter        Filter     `json:"filters"`
	Points        []Point    `json:"data"`
	SellOut       bool       `json:"sell_out"`
	AnchorDate    *time.Time `json:"anchor_date"`
	AnchorDisplay string     `json:"anchor_display"`
	AnchorPeriod  string     `json:"anchor_period"`
	EndDate       *time.Time `json:"end_date"`
	LeverStores   int        `json:"lever_stores"`
	ControlStores int        `json:"control_stores"`
}

type Aligner struct {
	store Store
}

func NewAligner(store Store) *Aligner {
	return &Aligner{store: store}
}

// Align builds the lever and control series for one filter set. Missing data
// yields a result with no points, not an error.
func (a *Aligner) Align(ctx context.Context, f Filter) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	stores, err := a.store.ActiveStores(ctx, f.Typology)
	if err != nil {
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}

	var leverGroup, controlGroup []models.Store
	for _, s := range stores {
		switch {
		case s.Lever == f.Lever && !s.IsControl():
			leverGroup = append(leverGroup, s)
		case s.IsControl():
			controlGroup = append(controlGroup, s)
		}
	}
	if strings.EqualFold(f.Typology, cityMatchedTypology) {
		controlGroup = sameCities(controlGroup, leverGroup)
	}

	res := &Result{
		Filter:        f,
		Points:        []Point{},
		SellOut:       IsSellOut(f.Source),
		AnchorDate:    anchorDate(leverGroup),
		EndDate:       endDate(leverGroup),
		LeverStores:   len(leverGroup),
		ControlStores: len(controlGroup),
	}

	if len(leverGroup) == 0 || len(controlGroup) == 0 {
		res.formatAnchor()
		return res, nil
	}

	measurements, err := a.store.Measurements(ctx, models.MeasurementFilter{
		Typology: f.Typology,
		Source:   f.Source,
		Unit:     f.Unit,
		Category: f.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load measurements: %w", err)
	}

	leverSeries := meanByPeriod(measurements, storeIDs(leverGroup))
	controlSeries := meanByPeriod(measurements, storeIDs(controlGroup))

	start, ok := firstPositive(leverSeries)
	if ok {
		leverSeries = window(leverSeries, start, res.EndDate)
		controlSeries = window(controlSeries, start, res.EndDate)
	}

	if !ok || len(leverSeries) == 0 || len(controlSeries) == 0 {
		logger.Debug("Timeline has no overlapping data",
			zap.String("typology", f.Typology),
			zap.String("lever", f.Lever),
		)
		res.formatAnchor()
		return res, nil
	}

	res.Points = merge(leverSeries, controlSeries, res.SellOut)
	res.formatAnchor()

	logger.Debug("Timeline aligned",
		zap.String("typology", f.Typology),
		zap.String("lever", f.Lever),
		zap.Int("points", len(res.Points)),
		zap.Int("lever_stores", res.LeverStores),
		zap.Int("control_stores", res.ControlStores),
	)

	return res, nil
}

// anchorDate is the most common rollout date of the treated stores, the
// earliest on ties.
func anchorDate(stores []models.Store) *time.Time {
	counts := map[time.Time]int{}
	for _, s := range stores {
		if s.StartDate != nil {
			counts[s.StartDate.Truncate(24*time.Hour)]++
		}
	}

	var best time.Time
	bestN := 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d.Before(best)) {
			best, bestN = d, n
		}
	}
	if bestN == 0 {
		return nil
	}
	return &best
}

func endDate(stores []models.Store) *time.Time {
	var end *time.Time
	for _, s := range stores {
		if s.EndDate != nil && (end == nil || s.EndDate.After(*end)) {
			d := *s.EndDate
			end = &d
		}
	}
	return end
}

func sameCities(control, treated []models.Store) []models.Store {
	cities := map[string]bool{}
	for _, s := range treated {
		cities[s.City] = true
	}

	var out []models.Store
	for _, s := range control {
		if cities[s.City] {
			out = append(out, s)
		}
	}
	return out
}

func storeIDs(stores []models.Store) map[int64]bool {
	ids := make(map[int64]bool, len(stores))
	for _, s := range stores {
		ids[s.ID] = true
	}
	return ids
}

type periodMean struct {
	period models.Period
	sum    float64
	n      int
}

func (p periodMean) mean() float64 {
	return p.sum / float64(p.n)
}

// meanByPeriod averages the members' values per period, ordered by start date.
func meanByPeriod(ms []models.Measurement, members map[int64]bool) []periodMean {
	byID := map[int64]*periodMean{}
	for _, m := range ms {
		if !members[m.StoreID] {
			continue
		}
		pm, ok := byID[m.Period.ID]
		if !ok {
			pm = &periodMean{period: m.Period}
			byID[m.Period.ID] = pm
		}
		pm.sum += m.Value
		pm.n++
	}

	out := make([]periodMean, 0, len(byID))
	for _, pm := range byID {
		out = append(out, *pm)
	}
	sortPeriods(out)
	return out
}

func sortPeriods(ps []periodMean) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i].period, ps[j].period
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})
}

func firstPositive(series []periodMean) (time.Time, bool) {
	for _, pm := range series {
		if pm.mean() > 0 {
			return pm.period.StartDate, true
		}
	}
	return time.Time{}, false
}

// window keeps periods starting on or after from and, when end is set, not
// after end.
func window(series []periodMean, from time.Time, end *time.Time) []periodMean {
	var out []periodMean
	for _, pm := range series {
		if pm.period.StartDate.Before(from) {
			continue
		}
		if end != nil && pm.period.StartDate.After(*end) {
			continue
		}
		out = append(out, pm)
	}
	return out
}

func merge(lever, control []periodMean, sellOut bool) []Point {
	byID := map[int64]*Point{}
	var order []periodMean

	add := func(pm periodMean, isLever bool) {
		p, ok := byID[pm.period.ID]
		if !ok {
			p = newPoint(pm.period, sellOut)
			byID[pm.period.ID] = p
			order = append(order, periodMean{period: pm.period})
		}
		v := pm.mean()
		if isLever {
			p.LeverValue = &v
		} else {
			p.ControlValue = &v
		}
	}

	for _, pm := range lever {
		add(pm, true)
	}
	for _, pm := range control {
		add(pm, false)
	}

	sortPeriods(order)
	points := make([]Point, len(order))
	for i, pm := range order {
		points[i] = *byID[pm.period.ID]
	}
	return points
}

func newPoint(p models.Period, sellOut bool) *Point {
	date := DisplayDate(p, sellOut)
	return &Point{
		Period:      p.Label,
		DisplayDate: FormatDate(date, sellOut),
		Date:        date,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
	}
}

// formatAnchor renders the anchor date. Sell-out anchors snap to the plotted
// period that contains them so the marker sits on a point.
func (r *Result) formatAnchor() {
	if r.AnchorDate == nil {
		return
	}
	anchor := *r.AnchorDate

	if r.SellOut {
		if p, ok := periodFor(r.Points, anchor); ok {
			r.AnchorDisplay = p.DisplayDate
			r.AnchorPeriod = p.Period
			return
		}
	}

	r.AnchorDisplay = FormatDate(anchor, r.SellOut)
	for _, p := range r.Points {
		if !anchor.Before(p.StartDate) && !anchor.After(p.EndDate) {
			r.AnchorPeriod = p.Period
			break
		}
	}
}

// periodFor finds the point containing d, else the first one ending on or after d.
func periodFor(points []Point, d time.Time) (Point, bool) {
	for _, p := range points {
		if !d.Before(p.StartDate) && !d.After(p.EndDate) {
			return p, true
		}
	}
	for _, p := range points {
		if !p.EndDate.Before(d) {
			return p, true
		}
	}
	return Point{}, false
}
