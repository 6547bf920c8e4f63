package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/pkg/logger"
)

const dateLayout = "2006-01-02"

var (
	demoCities     = []string{"Bogotá", "Medellín", "Cali", "Barranquilla"}
	demoTypologies = []string{"Super e hiper", "Conveniencia", "Droguerías"}
	demoLevers     = []string{models.ControlLever, "Punta de góndola", "Metro cuadrado", "Nevera en caja"}
	demoCategories = []string{"Gatorade", "500ml"}
	demoUnits      = []string{"Cajas estandarizadas", "Ventas"}
	demoSources    = []string{"Sell In", "Sell Out"}
)

type demoPeriod struct {
	id         int64
	label      string
	kind       string
	start, end time.Time
}

type demoStore struct {
	id         int64
	typologyID int64
	leverID    int64
	cityID     int64
	start, end time.Time
}

// SeedDemo loads a small synthetic experiment so that a fresh local database
// can serve every endpoint. It does nothing when master data already exists.
func (c *Client) SeedDemo() error {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM typology_master`).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect typology_master: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	masters := []struct {
		table, idCol, nameCol string
		names                 []string
	}{
		{"city_master", "city_id", "city_name", demoCities},
		{"typology_master", "typology_id", "typology_name", demoTypologies},
		{"lever_master", "lever_id", "lever_name", demoLevers},
		{"category_master", "category_id", "category_name", demoCategories},
		{"measurement_unit_master", "unit_id", "unit_name", demoUnits},
		{"data_source_master", "source_id", "source_name", demoSources},
	}
	for _, m := range masters {
		stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", m.table, m.idCol, m.nameCol)
		for i, name := range m.names {
			if _, err := tx.Exec(stmt, i+1, name); err != nil {
				return fmt.Errorf("failed to seed %s: %w", m.table, err)
			}
		}
	}

	periods := demoPeriods()
	for _, p := range periods {
		_, err := tx.Exec(
			`INSERT INTO period_master (period_id, period_label, period_type, start_date, end_date) VALUES (?, ?, ?, ?, ?)`,
			p.id, p.label, p.kind, p.start.Format(dateLayout), p.end.Format(dateLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to seed period_master: %w", err)
		}
	}

	stores := demoStores()
	for _, s := range stores {
		_, err := tx.Exec(
			`INSERT INTO store_master (id, store_code_sellin, store_code_sellout, store_name, city_id, typology_id, lever_id, is_active, start_date, end_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			s.id,
			fmt.Sprintf("SI%04d", s.id),
			fmt.Sprintf("SO%04d", s.id),
			fmt.Sprintf("PDV %s %02d", demoCities[s.cityID-1], s.id),
			s.cityID, s.typologyID, s.leverID,
			s.start.Format(dateLayout), s.end.Format(dateLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to seed store_master: %w", err)
		}
	}

	if err := seedResults(tx, stores, periods); err != nil {
		return err
	}
	if err := seedReferenceData(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logger.Info("Demo experiment seeded",
		zap.Int("stores", len(stores)),
		zap.Int("periods", len(periods)),
	)
	return nil
}

func demoPeriods() []demoPeriod {
	var periods []demoPeriod

	// Sell In is reported monthly.
	for m := 1; m <= 8; m++ {
		start := time.Date(2025, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		periods = append(periods, demoPeriod{
			id:    int64(m),
			label: start.Format("200601"),
			kind:  "Month",
			start: start,
			end:   start.AddDate(0, 1, -1),
		})
	}

	// Sell Out is reported in ISO weeks starting on Monday.
	first := time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC)
	for w := 0; w < 34; w++ {
		start := first.AddDate(0, 0, 7*w)
		year, week := start.ISOWeek()
		periods = append(periods, demoPeriod{
			id:    int64(100 + w),
			label: fmt.Sprintf("%d-W%02d", year, week),
			kind:  "Week",
			start: start,
			end:   start.AddDate(0, 0, 6),
		})
	}

	return periods
}

func demoStores() []demoStore {
	rollout := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, time.April, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.July, 27, 0, 0, 0, 0, time.UTC)

	var stores []demoStore
	id := int64(1)
	for t := range demoTypologies {
		for l := range demoLevers {
			for k := 0; k < 2; k++ {
				city := int64((l+k)%len(demoCities)) + 1
				// Droguerías treated stores concentrate in two cities.
				if demoTypologies[t] == "Droguerías" && l > 0 {
					city = int64(k%2) + 1
				}
				start := rollout
				if k == 1 && l == 1 {
					start = late
				}
				stores = append(stores, demoStore{
					id:         id,
					typologyID: int64(t + 1),
					leverID:    int64(l + 1),
					cityID:     city,
					start:      start,
					end:        end,
				})
				id++
			}
		}
	}
	return stores
}

func seedResults(tx *sql.Tx, stores []demoStore, periods []demoPeriod) error {
	stmt, err := tx.Prepare(`INSERT INTO ab_test_result (store_id, category_id, unit_id, source_id, period_id, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ab_test_result insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range stores {
		for _, p := range periods {
			sourceID := int64(1)
			if p.kind == "Week" {
				sourceID = 2
			}
			for category := int64(1); category <= int64(len(demoCategories)); category++ {
				for unit := int64(1); unit <= int64(len(demoUnits)); unit++ {
					value := demoValue(s, p, category, unit)
					if _, err := stmt.Exec(s.id, category, unit, sourceID, p.id, value); err != nil {
						return fmt.Errorf("failed to seed ab_test_result: %w", err)
					}
				}
			}
		}
	}
	return nil
}

func demoValue(s demoStore, p demoPeriod, category, unit int64) float64 {
	base := 80 + 6*float64(s.id%7) + 4*float64(category) + float64(p.start.Month())
	if p.kind == "Week" {
		base /= 4
	}
	if unit == 2 {
		base *= 2500
	}
	if s.leverID == 1 {
		return base
	}
	// Treated stores report nothing before their rollout.
	if p.end.Before(s.start) {
		return 0
	}
	return base * (1 + 0.04*float64(s.leverID))
}

func seedReferenceData(tx *sql.Tx) error {
	capex := map[string][2]float64{
		"Punta de góndola": {1200, 35},
		"Metro cuadrado":   {2500, 60},
		"Nevera en caja":   {1800, 45},
	}
	for t := range demoTypologies {
		for l, lever := range demoLevers {
			cost, ok := capex[lever]
			if !ok {
				continue
			}
			scale := 1 + 0.25*float64(t)
			_, err := tx.Exec(
				`INSERT INTO capex_fee (typology_id, lever_id, capex, fee) VALUES (?, ?, ?, ?)`,
				t+1, l+1, cost[0]*scale, cost[1]*scale,
			)
			if err != nil {
				return fmt.Errorf("failed to seed capex_fee: %w", err)
			}
		}
	}

	// Control rows are stored too; readers exclude them.
	for t := range demoTypologies {
		for l := range demoLevers {
			for c := range demoCategories {
				for u := range demoUnits {
					for src := range demoSources {
						variation := 0.0
						if l > 0 {
							variation = 4*float64(l) + float64(c) - 0.5*float64(t) + float64(src)
						}
						_, err := tx.Exec(
							`INSERT INTO ab_test_summary (typology_id, lever_id, category_id, unit_id, source_id, average_variation, difference_vs_control)
							VALUES (?, ?, ?, ?, ?, ?, ?)`,
							t+1, l+1, c+1, u+1, src+1, variation, variation/100*(1+float64(u)),
						)
						if err != nil {
							return fmt.Errorf("failed to seed ab_test_summary: %w", err)
						}
					}
				}
			}
		}
	}

	coefficients := map[string]float64{
		models.FeatureIntercept:         1500000,
		models.FeatureExecPrice:         120000,
		models.FeatureExecPlanogram:     95000,
		models.FeatureOwnFacings:        42000,
		models.FeatureCompetitorFacings: -18000,
		models.FeatureOwnSKUs:           21000,
		models.FeatureCompetitorSKUs:    -9000,
		models.FeatureOwnCoolers:        160000,
		models.FeatureCompetitorCoolers: -70000,
		models.FeatureOwnDoors:          55000,
		models.FeatureCompetitorDoors:   -25000,
		models.FeatureBaselineVolume:    11.5,
	}
	leverCoefficients := map[string]float64{
		"Punta de góndola": 380000,
		"Metro cuadrado":   610000,
		"Nevera en caja":   450000,
	}
	for t := range demoTypologies {
		for feature, value := range coefficients {
			if err := insertCoefficient(tx, t+1, feature, value); err != nil {
				return err
			}
		}
		for lever, value := range leverCoefficients {
			if err := insertCoefficient(tx, t+1, models.LeverFeature(lever), value*(1-0.1*float64(t))); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertCoefficient(tx *sql.Tx, typologyID int, feature string, value float64) error {
	_, err := tx.Exec(
		`INSERT INTO ols_coefficient (typology_id, feature_name, coefficient) VALUES (?, ?, ?)`,
		typologyID, feature, value,
	)
	if err != nil {
		return fmt.Errorf("failed to seed ols_coefficient: %w", err)
	}
	return nil
}
