package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testStart   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	testStation = "Y1234010"
)

func openPeriod(start time.Time) UsagePeriod {
	return UsagePeriod{Start: start, State: PeriodInUse}
}

// polyCurve is the three-pivot polyline (0,0) (200,400) (400,1000).
func polyCurve(t *testing.T) RatingCurve {
	t.Helper()
	c, err := NewRatingCurve("C1", Polyline, []Pivot{
		{Height: 400, Discharge: 1000, Qualification: QualificationGood},
		{Height: 0, Discharge: 0, Qualification: QualificationGood},
		{Height: 200, Discharge: 400, Qualification: QualificationUnqualified},
	}, openPeriod(testStart))
	require.NoError(t, err)
	return c
}

// powerCurve has a single power-law segment Q = 1000·(h−1) over [0, 3000].
func powerCurve(t *testing.T) RatingCurve {
	t.Helper()
	c, err := NewRatingCurve("P1", PowerLaw, []Pivot{
		{Height: 0, Qualification: QualificationGood},
		{Height: 3000, VarA: 1, VarB: 1, VarH: 1, Qualification: QualificationGood},
	}, openPeriod(testStart))
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

func TestNewRatingCurve(t *testing.T) {
	t.Run("sorts pivots by height", func(t *testing.T) {
		c := polyCurve(t)
		heights := make([]float64, len(c.Pivots))
		for i, p := range c.Pivots {
			heights[i] = p.Height
		}
		assert.Equal(t, []float64{0, 200, 400}, heights)
	})

	t.Run("duplicate height", func(t *testing.T) {
		_, err := NewRatingCurve("C2", Polyline, []Pivot{{Height: 10}, {Height: 10, Discharge: 5}})
		require.ErrorIs(t, err, ErrDuplicatePivot)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := NewRatingCurve("C3", CurveKind(7), []Pivot{{Height: 0}, {Height: 1}})
		require.ErrorIs(t, err, ErrUnknownCurveKind)
	})

	t.Run("single pivot is accepted but unusable", func(t *testing.T) {
		c, err := NewRatingCurve("C4", Polyline, []Pivot{{Height: 0}})
		require.NoError(t, err)
		assert.False(t, c.Usable())
		q, err := c.Discharge(0)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(q))
	})
}

func TestRatingCurve_Discharge(t *testing.T) {
	c := polyCurve(t)
	tests := []struct {
		name   string
		height float64
		want   float64
	}{
		{"lowest pivot", 0, 0},
		{"first segment", 100, 200},
		{"inner pivot", 200, 400},
		{"second segment", 300, 700},
		{"highest pivot", 400, 1000},
		{"below range", -1, math.NaN()},
		{"above range", 401, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Discharge(tt.height)
			require.NoError(t, err)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(q))
				return
			}
			assert.InDelta(t, tt.want, q, 1e-9)
		})
	}
}

func TestRatingCurve_Height(t *testing.T) {
	c := polyCurve(t)
	tests := []struct {
		name      string
		discharge float64
		want      float64
	}{
		{"zero", 0, 0},
		{"first segment", 200, 100},
		{"second segment", 700, 300},
		{"top", 1000, 400},
		{"above range", 1001, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := c.Height(tt.discharge)
			require.NoError(t, err)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(h))
				return
			}
			assert.InDelta(t, tt.want, h, 1e-9)
		})
	}
}

func TestRatingCurve_RoundTrip(t *testing.T) {
	c := polyCurve(t)
	for h := 0.0; h <= 400; h += 25 {
		q, err := c.Discharge(h)
		require.NoError(t, err)
		back, err := c.Height(q)
		require.NoError(t, err)
		assert.InDelta(t, h, back, 1e-9, "height %g", h)
	}
}

func TestRatingCurve_PowerLaw(t *testing.T) {
	c := powerCurve(t)

	q, err := c.Discharge(1860)
	require.NoError(t, err)
	assert.InDelta(t, 1859000.0, q, 1e-6)

	h, err := c.Height(1859000)
	require.NoError(t, err)
	assert.InDelta(t, 1860.0, h, 1e-9)

	_, err = c.Discharge(0.5)
	require.ErrorIs(t, err, ErrPowerLawDomain)

	qmin, err := c.MinDischarge()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, qmin, 1e-9, "first pivot is clamped to the anchor")

	h, err = c.Height(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, h, 1e-9)
}

func TestRatingCurve_IsActive(t *testing.T) {
	end := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	day := func(m time.Month, d int) time.Time { return time.Date(2020, m, d, 0, 0, 0, 0, time.UTC) }

	t.Run("bounded period", func(t *testing.T) {
		c := RatingCurve{Periods: []UsagePeriod{{Start: testStart, End: &end, State: PeriodInUse}}}
		assert.True(t, c.IsActive(day(6, 1)))
		assert.True(t, c.IsActive(end))
		assert.True(t, c.IsActive(testStart))
		assert.False(t, c.IsActive(testStart.Add(-time.Second)))
		assert.False(t, c.IsActive(end.Add(time.Second)))
	})

	t.Run("suspended period", func(t *testing.T) {
		c := RatingCurve{Periods: []UsagePeriod{{Start: testStart, State: PeriodSuspended}}}
		assert.False(t, c.IsActive(day(6, 1)))
	})

	t.Run("activation history", func(t *testing.T) {
		c := RatingCurve{Periods: []UsagePeriod{{
			Start: testStart,
			State: PeriodInUse,
			History: []Activation{
				{ActivatedAt: testStart, DeactivatedAt: ptr(day(3, 1))},
				{ActivatedAt: day(5, 1)},
			},
		}}}
		assert.True(t, c.IsActive(day(2, 1)))
		assert.False(t, c.IsActive(day(3, 1)))
		assert.False(t, c.IsActive(day(4, 1)))
		assert.True(t, c.IsActive(day(5, 1)))
		assert.True(t, c.IsActive(day(6, 1)))
	})

	t.Run("no period", func(t *testing.T) {
		assert.False(t, RatingCurve{}.IsActive(testStart))
	})
}

func TestRatingCurve_PivotsBetween(t *testing.T) {
	c := polyCurve(t)

	t.Run("height window", func(t *testing.T) {
		pivots, err := c.PivotsBetween(AxisHeight, ptr(100.0), ptr(400.0))
		require.NoError(t, err)
		require.Len(t, pivots, 2)
		assert.Equal(t, 200.0, pivots[0].Height)
		assert.Equal(t, 400.0, pivots[1].Height)
	})

	t.Run("open bounds", func(t *testing.T) {
		pivots, err := c.PivotsBetween(AxisHeight, nil, nil)
		require.NoError(t, err)
		assert.Len(t, pivots, 3)
	})

	t.Run("discharge window", func(t *testing.T) {
		pivots, err := c.PivotsBetween(AxisDischarge, ptr(500.0), nil)
		require.NoError(t, err)
		require.Len(t, pivots, 1)
		assert.Equal(t, 400.0, pivots[0].Height)
	})

	t.Run("power law fills discharge", func(t *testing.T) {
		pc, err := NewRatingCurve("P2", PowerLaw, []Pivot{
			{Height: 10},
			{Height: 100, VarA: 1, VarB: 1},
		})
		require.NoError(t, err)
		pivots, err := pc.PivotsBetween(AxisDischarge, ptr(50000.0), nil)
		require.NoError(t, err)
		require.Len(t, pivots, 1)
		assert.InDelta(t, 100000.0, pivots[0].Discharge, 1e-9)
	})
}

func TestCurveKind_Text(t *testing.T) {
	var k CurveKind
	require.NoError(t, k.UnmarshalText([]byte("puissance")))
	assert.Equal(t, PowerLaw, k)
	require.Error(t, k.UnmarshalText([]byte("spline")))

	data, err := json.Marshal(RatingCurve{Code: "C5", Kind: PowerLaw})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"power-law"`)
}
