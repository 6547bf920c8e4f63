package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/internal/storage/models"
)

type fakeStore struct {
	stores       []models.Store
	measurements []models.Measurement
}

func (f *fakeStore) ActiveStores(_ context.Context, typology string) ([]models.Store, error) {
	var out []models.Store
	for _, s := range f.stores {
		if s.Typology == typology {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) Measurements(context.Context, models.MeasurementFilter) ([]models.Measurement, error) {
	return f.measurements, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// weeks returns n Monday-to-Sunday periods starting at first.
func weeks(first time.Time, n int) []models.Period {
	out := make([]models.Period, n)
	for i := range out {
		start := first.AddDate(0, 0, 7*i)
		out[i] = models.Period{ID: int64(i + 1), Label: start.Format("2006-01-02"), Type: "Week", StartDate: start, EndDate: start.AddDate(0, 0, 6)}
	}
	return out
}

func store(id int64, typology, lever, city string, start, end time.Time) models.Store {
	return models.Store{ID: id, Name: "PDV", City: city, Typology: typology, Lever: lever, IsActive: true, StartDate: ptr(start), EndDate: ptr(end)}
}

// fixture: two treated and two control stores over eight weeks from 2025-01-06.
// Treatment starts in week 3 and ends with week 6.
func fixture(typology string) *fakeStore {
	periods := weeks(day(2025, time.January, 6), 8)
	rollout := periods[2].StartDate
	end := periods[5].EndDate

	f := &fakeStore{stores: []models.Store{
		store(1, typology, "Nevera en caja", "Bogotá", rollout, end),
		store(2, typology, "Nevera en caja", "Bogotá", rollout, end),
		store(3, typology, models.ControlLever, "Bogotá", rollout, end),
		store(4, typology, models.ControlLever, "Cali", rollout, end),
	}}

	for i, p := range periods {
		for _, s := range f.stores {
			v := 100.0
			if s.Lever != models.ControlLever {
				if i < 2 {
					v = 0
				} else {
					v = 120 + float64(s.ID)
				}
			}
			if s.City == "Cali" {
				v = 1000
			}
			f.measurements = append(f.measurements, models.Measurement{StoreID: s.ID, Period: p, Value: v})
		}
	}
	return f
}

func filter(typology, source string) Filter {
	return Filter{Typology: typology, Source: source, Unit: "Ventas", Category: "Gatorade", Lever: "Nevera en caja"}
}

func TestAlign_MissingFilters(t *testing.T) {
	a := NewAligner(&fakeStore{})

	_, err := a.Align(context.Background(), Filter{Typology: "Conveniencia", Lever: "Nevera en caja"})

	var mf *MissingFiltersError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"fuente", "unidad", "categoria"}, mf.Fields)
}

func TestAlign_TrimsLeadInAndTail(t *testing.T) {
	a := NewAligner(fixture("Conveniencia"))

	res, err := a.Align(context.Background(), filter("Conveniencia", "Sell In"))
	require.NoError(t, err)
	require.Len(t, res.Points, 4)

	first := res.Points[0]
	assert.Equal(t, day(2025, time.January, 20), first.StartDate)
	require.NotNil(t, first.LeverValue)
	assert.Greater(t, *first.LeverValue, 0.0)
	assert.InDelta(t, 121.5, *first.LeverValue, 1e-9)
	require.NotNil(t, first.ControlValue)
	assert.InDelta(t, 550.0, *first.ControlValue, 1e-9)

	for i, p := range res.Points {
		assert.False(t, p.StartDate.After(*res.EndDate), "point %d after end", i)
		if i > 0 {
			assert.False(t, p.Date.Before(res.Points[i-1].Date), "dates must not decrease")
		}
	}

	assert.Equal(t, "20/01", first.DisplayDate)
	assert.Equal(t, "20/01", res.AnchorDisplay)
	assert.Equal(t, first.Period, res.AnchorPeriod)
	assert.Equal(t, 2, res.LeverStores)
	assert.Equal(t, 2, res.ControlStores)
}

func TestAlign_CityMatchedControlForPharmacies(t *testing.T) {
	a := NewAligner(fixture("Droguerías"))

	res, err := a.Align(context.Background(), filter("Droguerías", "Sell In"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)

	assert.Equal(t, 1, res.ControlStores)
	for _, p := range res.Points {
		require.NotNil(t, p.ControlValue)
		assert.InDelta(t, 100.0, *p.ControlValue, 1e-9, "Cali control store must be excluded")
	}
}

func TestAlign_SellOutUsesEndDatesAndSnapsAnchor(t *testing.T) {
	f := fixture("Conveniencia")
	// Roll out mid-week: the anchor must land on the week that contains it.
	mid := day(2025, time.January, 22)
	f.stores[0].StartDate = ptr(mid)
	f.stores[1].StartDate = ptr(mid)

	res, err := NewAligner(f).Align(context.Background(), filter("Conveniencia", "Sell Out"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)

	assert.True(t, res.SellOut)
	assert.Equal(t, "26 Ene", res.Points[0].DisplayDate)
	assert.Equal(t, day(2025, time.January, 26), res.Points[0].Date)
	assert.Equal(t, "26 Ene", res.AnchorDisplay)
	assert.Equal(t, res.Points[0].Period, res.AnchorPeriod)
}

func TestAlign_AnchorIsModeWithEarliestTieBreak(t *testing.T) {
	a := day(2025, time.March, 3)
	b := day(2025, time.April, 7)
	end := day(2025, time.July, 27)

	stores := []models.Store{
		store(1, "X", "L", "C", b, end),
		store(2, "X", "L", "C", a, end),
		store(3, "X", "L", "C", b, end),
	}
	assert.Equal(t, b, *anchorDate(stores))

	tied := []models.Store{store(1, "X", "L", "C", b, end), store(2, "X", "L", "C", a, end)}
	assert.Equal(t, a, *anchorDate(tied))

	assert.Equal(t, end, *endDate(stores))
	assert.Nil(t, anchorDate(nil))
}

func TestAlign_NoControlStoresIsEmptyNotError(t *testing.T) {
	f := fixture("Conveniencia")
	f.stores = f.stores[:2]

	res, err := NewAligner(f).Align(context.Background(), filter("Conveniencia", "Sell In"))
	require.NoError(t, err)
	assert.Empty(t, res.Points)
	assert.NotNil(t, res.Points)
}

func TestAlign_NeverPositiveIsEmpty(t *testing.T) {
	f := fixture("Conveniencia")
	for i := range f.measurements {
		if f.measurements[i].StoreID <= 2 {
			f.measurements[i].Value = 0
		}
	}

	res, err := NewAligner(f).Align(context.Background(), filter("Conveniencia", "Sell In"))
	require.NoError(t, err)
	assert.Empty(t, res.Points)
}

func TestIsSellOut(t *testing.T) {
	assert.True(t, IsSellOut("Sell Out"))
	assert.True(t, IsSellOut("sell-out semanal"))
	assert.True(t, IsSellOut("SELLOUT"))
	assert.False(t, IsSellOut("Sell In"))
}

func TestFormatDate(t *testing.T) {
	d := day(2025, time.August, 3)
	assert.Equal(t, "03 Ago", FormatDate(d, true))
	assert.Equal(t, "03/08", FormatDate(d, false))
}
