package simulation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/internal/storage/sqlite"
)

func seededCalculator(t *testing.T) *Calculator {
	t.Helper()

	client, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	require.NoError(t, client.SeedDemo())

	return NewCalculator(repo.New(client.DB()))
}

func conveniencia(levers ...string) Input {
	return Input{
		Typology:  "Conveniencia",
		Levers:    levers,
		StoreSize: SizeMedium,
		Features: FeatureInputs{
			OwnFacings: 4, CompetitorFacings: 3,
			OwnSKUs: 10, CompetitorSKUs: 8,
			OwnCoolers: 1, CompetitorCoolers: 1,
			OwnDoors: 2, CompetitorDoors: 1,
		},
		MarginPct: 35,
		FXRate:    3912,
	}
}

func TestSimulate_SeededConveniencia(t *testing.T) {
	c := seededCalculator(t)

	res, err := c.Simulate(context.Background(), conveniencia("Punta de góndola"))
	require.NoError(t, err)

	assert.InDelta(t, 2199500, res.PredictedWithout, 0.01)
	assert.InDelta(t, 2541500, res.PredictedWith, 0.01)
	assert.InDelta(t, 15.55, res.UpliftPct, 0.01)
	assert.InDelta(t, 119700, res.IncrementalProfit, 0.01)

	require.Len(t, res.CostBreakdown, 1)
	assert.InDelta(t, 1500, res.CostBreakdown[0].CapexBase, 1e-9)
	assert.InDelta(t, 5868000, res.TotalCapex, 0.01)
	assert.InDelta(t, 171150, res.TotalFee, 0.01)

	// Monthly fee in local currency exceeds the incremental profit.
	assert.Nil(t, res.PaybackPeriods)
	assert.InDelta(t, -0.82, res.ROI, 1e-9)

	assert.Equal(t, 5000.0, res.BaselineVolume)
	assert.Equal(t, 1.0, res.Features[models.LeverFeature("Punta de góndola")])
	assert.Equal(t, 0.0, res.Features[models.LeverFeature("Metro cuadrado")])
	assert.Contains(t, res.Features, models.FeatureOwnCoolers)
	assert.NotContains(t, res.Features, models.LeverFeature(models.ControlLever))
}

func TestSimulate_PaysBackAtUnitExchangeRate(t *testing.T) {
	c := seededCalculator(t)

	in := conveniencia("Punta de góndola")
	in.FXRate = 1

	res, err := c.Simulate(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, res.PaybackPeriods)
	assert.InDelta(t, 0.01, *res.PaybackPeriods, 1e-9)
	assert.InDelta(t, 708.33, res.ROI, 1e-9)
}

func TestSimulate_ColdEquipmentOnlyForConveniencia(t *testing.T) {
	c := seededCalculator(t)

	in := conveniencia("Metro cuadrado")
	in.Typology = "Super e hiper"

	res, err := c.Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.NotContains(t, res.Features, models.FeatureOwnCoolers)
	assert.NotContains(t, res.Features, models.FeatureCompetitorDoors)
	assert.Equal(t, 20000.0, res.BaselineVolume)
}

func TestSimulate_Validation(t *testing.T) {
	c := seededCalculator(t)

	tests := []struct {
		name  string
		tweak func(*Input)
		field string
	}{
		{"missing typology", func(in *Input) { in.Typology = " " }, "tipologia"},
		{"no levers", func(in *Input) { in.Levers = nil }, "palancas"},
		{"blank levers", func(in *Input) { in.Levers = []string{"", " "} }, "palancas"},
		{"bad size", func(in *Input) { in.StoreSize = "Enorme" }, "tamanoTienda"},
		{"margin above 100", func(in *Input) { in.MarginPct = 120 }, "maco"},
		{"zero fx", func(in *Input) { in.FXRate = 0 }, "exchangeRate"},
		{"negative feature", func(in *Input) { in.Features.CompetitorSKUs = -1 }, "features.skuCompetencia"},
		{"unknown typology", func(in *Input) { in.Typology = "Mayoristas" }, "tipologia"},
		{"control lever", func(in *Input) { in.Levers = []string{models.ControlLever} }, "palancas"},
		{"unknown lever", func(in *Input) { in.Levers = []string{"Cabecera"} }, "palancas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := conveniencia("Punta de góndola")
			tt.tweak(&in)

			_, err := c.Simulate(context.Background(), in)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSimulate_DuplicateLeversCountOnce(t *testing.T) {
	c := seededCalculator(t)

	res, err := c.Simulate(context.Background(), conveniencia("Punta de góndola", "Punta de góndola"))
	require.NoError(t, err)
	assert.Len(t, res.CostBreakdown, 1)
}

type fakeReference struct {
	coef  models.CoefficientSet
	costs []models.CostBasis
}

func (f *fakeReference) TypologyNames(context.Context) ([]string, error) {
	return []string{"Conveniencia"}, nil
}

func (f *fakeReference) LeverNames(context.Context) ([]string, error) {
	return []string{models.ControlLever, "Punta de góndola", "Metro cuadrado"}, nil
}

func (f *fakeReference) Coefficients(context.Context, string) (models.CoefficientSet, error) {
	if f.coef.Coefficients == nil {
		return models.CoefficientSet{}, repo.ErrNotFound
	}
	return f.coef, nil
}

func (f *fakeReference) CostBasis(context.Context, string, []string) ([]models.CostBasis, error) {
	return f.costs, nil
}

func TestSimulate_MissingReferenceData(t *testing.T) {
	t.Run("coefficients", func(t *testing.T) {
		c := NewCalculator(&fakeReference{})

		_, err := c.Simulate(context.Background(), conveniencia("Punta de góndola"))

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "coeficientes OLS", nf.What)
	})

	t.Run("cost basis", func(t *testing.T) {
		c := NewCalculator(&fakeReference{
			coef:  models.CoefficientSet{Intercept: 10, Coefficients: map[string]float64{}},
			costs: []models.CostBasis{{Lever: "Punta de góndola", Capex: 100, Fee: 1}},
		})

		_, err := c.Simulate(context.Background(), conveniencia("Punta de góndola", "Metro cuadrado"))

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "capex/fee", nf.What)
		assert.Contains(t, nf.Key, "Metro cuadrado")
	})
}

func TestSimulate_NonPositiveBaselineHasNoUplift(t *testing.T) {
	c := NewCalculator(&fakeReference{
		coef: models.CoefficientSet{
			Intercept:    -5000000,
			Coefficients: map[string]float64{models.LeverFeature("Punta de góndola"): 1000},
		},
		costs: []models.CostBasis{{Lever: "Punta de góndola", Capex: 0, Fee: 0}},
	})

	res, err := c.Simulate(context.Background(), conveniencia("Punta de góndola"))
	require.NoError(t, err)

	assert.Less(t, res.PredictedWithout, 0.0)
	assert.Equal(t, 0.0, res.UpliftPct)
	assert.Equal(t, 0.0, res.ROI)
	assert.Nil(t, res.PaybackPeriods, "no capex to recover")
}

func TestPayback(t *testing.T) {
	d := decimal.NewFromFloat
	tests := []struct {
		name                    string
		capex, incremental, fee float64
		want                    *float64
	}{
		{"recovers capex", 900, 100, 10, ptr(10)},
		{"fee eats the profit", 900, 10, 10, nil},
		{"losing money", 900, -50, 10, nil},
		{"no capex", 0, 100, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := payback(d(tt.capex), d(tt.incremental), d(tt.fee))
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func ptr(v float64) *float64 { return &v }
