package models

import "time"

// ControlLever is the reserved lever name of the baseline group.
const ControlLever = "Control"

type Store struct {
	ID        int64
	Name      string
	City      string
	Typology  string
	Lever     string
	IsActive  bool
	StartDate *time.Time
	EndDate   *time.Time
}

func (s Store) IsControl() bool {
	return s.Lever == ControlLever
}

type Period struct {
	ID        int64
	Label     string
	Type      string
	StartDate time.Time
	EndDate   time.Time
}

// Measurement is one (store, category, unit, source, period) fact.
type Measurement struct {
	StoreID int64
	Period  Period
	Value   float64
}

type MeasurementFilter struct {
	Typology string
	Source   string
	Unit     string
	Category string
}

// CoefficientSet is a fitted OLS model for one typology.
type CoefficientSet struct {
	Typology     string
	Intercept    float64
	Coefficients map[string]float64
}

func (c CoefficientSet) Coefficient(feature string) float64 {
	return c.Coefficients[feature]
}

// CostBasis amounts are in the base currency.
type CostBasis struct {
	Typology string
	Lever    string
	Capex    float64
	Fee      float64
}

type FilterOptions struct {
	Typologies []string `json:"tipologia"`
	Levers     []string `json:"palanca"`
	Categories []string `json:"categoria"`
	Sources    []string `json:"fuente_datos"`
	Units      []string `json:"unidad_medida"`
}

type SummaryFilter struct {
	Typology string
	Lever    string
	Category string
	Unit     string
	Source   string
}

// SummaryRow is one precomputed experiment outcome per lever and filter set.
type SummaryRow struct {
	Source              string  `json:"fuente_datos"`
	Typology            string  `json:"tipologia"`
	Lever               string  `json:"palanca"`
	Category            string  `json:"categoria"`
	Unit                string  `json:"unidad_medida"`
	AverageVariation    float64 `json:"variacion_promedio"`
	DifferenceVsControl float64 `json:"diferencia_vs_control"`
}

// Availability describes what the store can answer, for explaining empty results.
type Availability struct {
	FirstPeriod  string
	LastPeriod   string
	PeriodCount  int
	SampleStores []string
	Cities       []string
	Levers       []string
}

type TableCounts map[string]int64

// Feature names shared by the OLS coefficient table and the simulation vector.
const (
	FeatureIntercept         = "Intercept"
	FeatureExecPrice         = "ejecucion_precio"
	FeatureExecPlanogram     = "ejecucion_planograma"
	FeatureOwnFacings        = "frentes_propios"
	FeatureCompetitorFacings = "frentes_competencia"
	FeatureOwnSKUs           = "sku_propios"
	FeatureCompetitorSKUs    = "sku_competencia"
	FeatureOwnCoolers        = "equipos_frio_propios"
	FeatureCompetitorCoolers = "equipos_frio_competencia"
	FeatureOwnDoors          = "puertas_propias"
	FeatureCompetitorDoors   = "puertas_competencia"
	FeatureBaselineVolume    = "volumen_base"
	leverFeaturePrefix       = "palanca_"
)

// LeverFeature is the indicator feature name for a lever.
func LeverFeature(lever string) string {
	return leverFeaturePrefix + lever
}
