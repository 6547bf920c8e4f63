package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/internal/storage/sqlite"
)

func seededAligner(t *testing.T) *Aligner {
	t.Helper()

	client, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	require.NoError(t, client.SeedDemo())

	return NewAligner(repo.New(client.DB()))
}

func TestAlign_SeededSellOut(t *testing.T) {
	a := seededAligner(t)

	res, err := a.Align(context.Background(), Filter{
		Typology: "Conveniencia",
		Source:   "Sell Out",
		Unit:     "Ventas",
		Category: "Gatorade",
		Lever:    "Nevera en caja",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)

	first := res.Points[0]
	assert.Equal(t, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), first.StartDate)
	assert.Equal(t, "09 Mar", first.DisplayDate)
	assert.Equal(t, "09 Mar", res.AnchorDisplay)

	last := res.Points[len(res.Points)-1]
	assert.Equal(t, time.Date(2025, time.July, 21, 0, 0, 0, 0, time.UTC), last.StartDate)

	for _, p := range res.Points {
		require.NotNil(t, p.LeverValue)
		require.NotNil(t, p.ControlValue)
		assert.Greater(t, *p.LeverValue, *p.ControlValue*0.5)
	}
}

func TestAlign_SeededSellInTieBreak(t *testing.T) {
	a := seededAligner(t)

	res, err := a.Align(context.Background(), Filter{
		Typology: "Super e hiper",
		Source:   "Sell In",
		Unit:     "Cajas estandarizadas",
		Category: "500ml",
		Lever:    "Punta de góndola",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)

	// One store rolls out on 3 March and the other on 7 April.
	require.NotNil(t, res.AnchorDate)
	assert.Equal(t, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), *res.AnchorDate)
	assert.Equal(t, "03/03", res.AnchorDisplay)
	assert.Equal(t, "01/03", res.Points[0].DisplayDate)
	assert.Len(t, res.Points, 5)
}
