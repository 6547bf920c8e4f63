// Package repo reads the experiment master and fact tables. Queries use
// numbered placeholders so the same text runs on PostgreSQL and SQLite.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lever-lab/backend/internal/storage/models"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ActiveStores returns the active stores of a typology with their lever assignment.
func (r *Repository) ActiveStores(ctx context.Context, typology string) ([]models.Store, error) {
	query := `
		SELECT s.id, s.store_name, ci.city_name, t.typology_name, l.lever_name,
			s.is_active, s.start_date, s.end_date
		FROM store_master s
		JOIN city_master ci ON ci.city_id = s.city_id
		JOIN typology_master t ON t.typology_id = s.typology_id
		JOIN lever_master l ON l.lever_id = s.lever_id
		WHERE t.typology_name = $1 AND s.is_active
		ORDER BY s.id
	`

	rows, err := r.db.QueryContext(ctx, query, typology)
	if err != nil {
		return nil, fmt.Errorf("failed to get stores: %w", err)
	}
	defer rows.Close()

	var stores []models.Store
	for rows.Next() {
		var s models.Store
		var start, end nullDate

		err := rows.Scan(&s.ID, &s.Name, &s.City, &s.Typology, &s.Lever, &s.IsActive, &start, &end)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}

		s.StartDate = start.ptr()
		s.EndDate = end.ptr()
		stores = append(stores, s)
	}

	return stores, rows.Err()
}

// Measurements returns every non-null measurement of the active stores of a
// typology matching the source, unit and category.
func (r *Repository) Measurements(ctx context.Context, f models.MeasurementFilter) ([]models.Measurement, error) {
	query := `
		SELECT r.store_id, p.period_id, p.period_label, p.period_type,
			p.start_date, p.end_date, r.value
		FROM ab_test_result r
		JOIN store_master s ON s.id = r.store_id
		JOIN typology_master t ON t.typology_id = s.typology_id
		JOIN data_source_master ds ON ds.source_id = r.source_id
		JOIN measurement_unit_master u ON u.unit_id = r.unit_id
		JOIN category_master c ON c.category_id = r.category_id
		JOIN period_master p ON p.period_id = r.period_id
		WHERE t.typology_name = $1
			AND ds.source_name = $2
			AND u.unit_name = $3
			AND c.category_name = $4
			AND s.is_active
			AND r.value IS NOT NULL
		ORDER BY p.start_date, r.store_id
	`

	rows, err := r.db.QueryContext(ctx, query, f.Typology, f.Source, f.Unit, f.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	defer rows.Close()

	var out []models.Measurement
	for rows.Next() {
		var m models.Measurement
		var start, end nullDate

		err := rows.Scan(&m.StoreID, &m.Period.ID, &m.Period.Label, &m.Period.Type, &start, &end, &m.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		if !start.Valid || !end.Valid {
			continue
		}

		m.Period.StartDate = start.Time
		m.Period.EndDate = end.Time
		out = append(out, m)
	}

	return out, rows.Err()
}

// Coefficients returns the OLS model of a typology, or ErrNotFound.
func (r *Repository) Coefficients(ctx context.Context, typology string) (models.CoefficientSet, error) {
	query := `
		SELECT o.feature_name, o.coefficient
		FROM ols_coefficient o
		JOIN typology_master t ON t.typology_id = o.typology_id
		WHERE t.typology_name = $1
	`

	set := models.CoefficientSet{Typology: typology, Coefficients: map[string]float64{}}

	rows, err := r.db.QueryContext(ctx, query, typology)
	if err != nil {
		return set, fmt.Errorf("failed to get coefficients: %w", err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return set, fmt.Errorf("failed to scan coefficient: %w", err)
		}
		found++
		if name == models.FeatureIntercept {
			set.Intercept = value
			continue
		}
		set.Coefficients[name] = value
	}
	if err := rows.Err(); err != nil {
		return set, fmt.Errorf("failed to read coefficients: %w", err)
	}

	if found == 0 {
		return set, fmt.Errorf("coefficients for typology %q: %w", typology, ErrNotFound)
	}

	return set, nil
}

// CostBasis returns the cost rows of the requested levers that exist for the
// typology. Missing levers are simply absent from the result.
func (r *Repository) CostBasis(ctx context.Context, typology string, levers []string) ([]models.CostBasis, error) {
	query := `
		SELECT t.typology_name, l.lever_name, cf.capex, cf.fee
		FROM capex_fee cf
		JOIN typology_master t ON t.typology_id = cf.typology_id
		JOIN lever_master l ON l.lever_id = cf.lever_id
		WHERE t.typology_name = $1
		ORDER BY l.lever_name
	`

	wanted := make(map[string]bool, len(levers))
	for _, l := range levers {
		wanted[l] = true
	}

	rows, err := r.db.QueryContext(ctx, query, typology)
	if err != nil {
		return nil, fmt.Errorf("failed to get cost basis: %w", err)
	}
	defer rows.Close()

	var out []models.CostBasis
	for rows.Next() {
		var c models.CostBasis
		if err := rows.Scan(&c.Typology, &c.Lever, &c.Capex, &c.Fee); err != nil {
			return nil, fmt.Errorf("failed to scan cost basis: %w", err)
		}
		if len(wanted) == 0 || wanted[c.Lever] {
			out = append(out, c)
		}
	}

	return out, rows.Err()
}

func (r *Repository) LeverNames(ctx context.Context) ([]string, error) {
	return r.names(ctx, `SELECT lever_name FROM lever_master ORDER BY lever_name`)
}

func (r *Repository) TypologyNames(ctx context.Context) ([]string, error) {
	return r.names(ctx, `SELECT typology_name FROM typology_master ORDER BY typology_name`)
}

func (r *Repository) FilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	var opts models.FilterOptions
	var err error

	if opts.Typologies, err = r.TypologyNames(ctx); err != nil {
		return nil, err
	}
	if opts.Levers, err = r.names(ctx, `SELECT lever_name FROM lever_master WHERE lever_name <> $1 ORDER BY lever_name`, models.ControlLever); err != nil {
		return nil, err
	}
	if opts.Categories, err = r.names(ctx, `SELECT category_name FROM category_master ORDER BY category_name`); err != nil {
		return nil, err
	}
	if opts.Sources, err = r.names(ctx, `SELECT source_name FROM data_source_master ORDER BY source_name`); err != nil {
		return nil, err
	}
	if opts.Units, err = r.names(ctx, `SELECT unit_name FROM measurement_unit_master ORDER BY unit_name`); err != nil {
		return nil, err
	}

	return &opts, nil
}

// Summary lists precomputed results for the dashboard. Empty filter fields
// match everything; the Control group is never returned.
func (r *Repository) Summary(ctx context.Context, f models.SummaryFilter) ([]models.SummaryRow, error) {
	query := `
		SELECT source_name, typology_name, lever_name, category_name, unit_name,
			COALESCE(average_variation, 0), COALESCE(difference_vs_control, 0)
		FROM v_dashboard_summary
		WHERE lever_name <> $1`
	args := []any{models.ControlLever}

	for _, c := range []struct{ column, value string }{
		{"typology_name", f.Typology},
		{"lever_name", f.Lever},
		{"category_name", f.Category},
		{"unit_name", f.Unit},
		{"source_name", f.Source},
	} {
		if c.value == "" {
			continue
		}
		args = append(args, c.value)
		query += fmt.Sprintf(" AND %s = $%d", c.column, len(args))
	}
	query += ` ORDER BY typology_name, lever_name, category_name, unit_name, source_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard summary: %w", err)
	}
	defer rows.Close()

	out := []models.SummaryRow{}
	for rows.Next() {
		var s models.SummaryRow
		if err := rows.Scan(&s.Source, &s.Typology, &s.Lever, &s.Category, &s.Unit, &s.AverageVariation, &s.DifferenceVsControl); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

var countedTables = []string{
	"city_master", "typology_master", "lever_master", "category_master",
	"store_master", "ab_test_result", "ab_test_summary",
}

func (r *Repository) TableCounts(ctx context.Context) (models.TableCounts, error) {
	counts := models.TableCounts{}
	for _, table := range countedTables {
		var n int64
		// Table names come from the fixed list above.
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table+"_count"] = n
	}
	return counts, nil
}

// Availability summarises the periods, stores, cities and levers on record.
func (r *Repository) Availability(ctx context.Context) (*models.Availability, error) {
	var a models.Availability

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM period_master`).Scan(&a.PeriodCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count periods: %w", err)
	}

	if a.PeriodCount > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT period_label FROM period_master ORDER BY start_date ASC LIMIT 1`).Scan(&a.FirstPeriod)
		if err != nil {
			return nil, fmt.Errorf("failed to get first period: %w", err)
		}
		err = r.db.QueryRowContext(ctx, `SELECT period_label FROM period_master ORDER BY end_date DESC LIMIT 1`).Scan(&a.LastPeriod)
		if err != nil {
			return nil, fmt.Errorf("failed to get last period: %w", err)
		}
	}

	if a.SampleStores, err = r.names(ctx, `SELECT store_name FROM store_master WHERE is_active ORDER BY store_name LIMIT 8`); err != nil {
		return nil, err
	}
	if a.Cities, err = r.names(ctx, `SELECT city_name FROM city_master ORDER BY city_name`); err != nil {
		return nil, err
	}
	if a.Levers, err = r.names(ctx, `SELECT lever_name FROM lever_master ORDER BY lever_name`); err != nil {
		return nil, err
	}

	return &a, nil
}

func (r *Repository) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// nullDate accepts DATE columns as decoded by either driver.
type nullDate struct {
	Time  time.Time
	Valid bool
}

func (d *nullDate) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = v.UTC(), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date type %T", value)
	}
}

func (d *nullDate) parse(s string) error {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time, d.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable date %q", s)
}

func (d nullDate) ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}
