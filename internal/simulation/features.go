package simulation

import (
	"fmt"
	"sort"

	"github.com/lever-lab/backend/internal/storage/models"
)

type StoreSize string

const (
	SizeSmall  StoreSize = "Pequeño"
	SizeMedium StoreSize = "Mediano"
	SizeLarge  StoreSize = "Grande"
)

func (s StoreSize) Valid() bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// Cold equipment and door counts only enter the model for this typology.
const coldEquipmentTypology = "Conveniencia"

// baselineVolume stands in for a fitted baseline term, per typology and size.
var baselineVolume = map[string]map[StoreSize]float64{
	"Super e hiper": {SizeSmall: 12000, SizeMedium: 20000, SizeLarge: 32000},
	"Conveniencia":  {SizeSmall: 3000, SizeMedium: 5000, SizeLarge: 8000},
	"Droguerías":    {SizeSmall: 1500, SizeMedium: 2500, SizeLarge: 4000},
}

func lookupBaseline(typology string, size StoreSize) (float64, error) {
	v, ok := baselineVolume[typology][size]
	if !ok {
		return 0, &NotFoundError{What: "volumen base", Key: fmt.Sprintf("%s/%s", typology, size)}
	}
	return v, nil
}

// FeatureInputs are the store counts entered by the user.
type FeatureInputs struct {
	OwnFacings        float64 `json:"frentesPropios" validate:"gte=0"`
	CompetitorFacings float64 `json:"frentesCompetencia" validate:"gte=0"`
	OwnSKUs           float64 `json:"skuPropios" validate:"gte=0"`
	CompetitorSKUs    float64 `json:"skuCompetencia" validate:"gte=0"`
	OwnCoolers        float64 `json:"equiposFrioPropios" validate:"gte=0"`
	CompetitorCoolers float64 `json:"equiposFrioCompetencia" validate:"gte=0"`
	OwnDoors          float64 `json:"puertasPropias" validate:"gte=0"`
	CompetitorDoors   float64 `json:"puertasCompetencia" validate:"gte=0"`
}

func (f FeatureInputs) check() error {
	for _, fv := range []struct {
		name  string
		value float64
	}{
		{"frentesPropios", f.OwnFacings},
		{"frentesCompetencia", f.CompetitorFacings},
		{"skuPropios", f.OwnSKUs},
		{"skuCompetencia", f.CompetitorSKUs},
		{"equiposFrioPropios", f.OwnCoolers},
		{"equiposFrioCompetencia", f.CompetitorCoolers},
		{"puertasPropias", f.OwnDoors},
		{"puertasCompetencia", f.CompetitorDoors},
	} {
		if fv.value < 0 {
			return invalid("features."+fv.name, "must not be negative")
		}
	}
	return nil
}

// featureVector builds the model inputs. Every lever in the vocabulary gets an
// indicator so coefficients of unselected levers contribute zero.
func featureVector(typology string, in FeatureInputs, baseline float64, vocabulary []string, selected map[string]bool) map[string]float64 {
	v := map[string]float64{
		models.FeatureExecPrice:         1,
		models.FeatureExecPlanogram:     1,
		models.FeatureOwnFacings:        in.OwnFacings,
		models.FeatureCompetitorFacings: in.CompetitorFacings,
		models.FeatureOwnSKUs:           in.OwnSKUs,
		models.FeatureCompetitorSKUs:    in.CompetitorSKUs,
		models.FeatureBaselineVolume:    baseline,
	}

	if typology == coldEquipmentTypology {
		v[models.FeatureOwnCoolers] = in.OwnCoolers
		v[models.FeatureCompetitorCoolers] = in.CompetitorCoolers
		v[models.FeatureOwnDoors] = in.OwnDoors
		v[models.FeatureCompetitorDoors] = in.CompetitorDoors
	}

	for _, lever := range vocabulary {
		if lever == models.ControlLever {
			continue
		}
		v[models.LeverFeature(lever)] = 0
		if selected[lever] {
			v[models.LeverFeature(lever)] = 1
		}
	}
	return v
}

func withoutLevers(v map[string]float64, vocabulary []string) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, x := range v {
		out[k] = x
	}
	for _, lever := range vocabulary {
		if _, ok := out[models.LeverFeature(lever)]; ok {
			out[models.LeverFeature(lever)] = 0
		}
	}
	return out
}

func predict(c models.CoefficientSet, v map[string]float64) float64 {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	y := c.Intercept
	for _, name := range names {
		y += c.Coefficient(name) * v[name]
	}
	return y
}
