package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(v1, v2 float64, dt time.Duration) (Observation, Observation) {
	o1 := Observation{Time: testObsTime, Value: v1, Qualification: QualificationGood, Status: 4}
	o2 := Observation{Time: testObsTime.Add(dt), Value: v2, Qualification: QualificationUnqualified, Status: 8}
	return o1, o2
}

func TestElementaryVolume_Discharge(t *testing.T) {
	t.Run("constant flow over an hour", func(t *testing.T) {
		o1, o2 := pair(1000, 1000, time.Hour)
		v, err := ElementaryVolume(o1, o2, nil)
		require.NoError(t, err)
		assert.InDelta(t, 3600000.0, v.Value, 1e-6)
		assert.Equal(t, MethodComputed, v.Method)
		assert.Equal(t, QualificationUnqualified, v.Qualification)
		assert.Equal(t, 4, v.Status)
		assert.Equal(t, ContinuityContinuous, v.Continuity)
		assert.Equal(t, o1.Time, v.Time)
	})

	t.Run("undefined endpoint", func(t *testing.T) {
		o1, o2 := pair(1000, math.NaN(), time.Hour)
		v, err := ElementaryVolume(o1, o2, nil)
		require.NoError(t, err)
		assert.True(t, v.Undefined())
		assert.Equal(t, ContinuityUndefined, v.Continuity)
	})

	t.Run("undefined endpoint keeps its range code", func(t *testing.T) {
		o1, o2 := pair(math.NaN(), 1000, time.Hour)
		o1.Continuity = ContinuityAboveCurve
		v, err := ElementaryVolume(o1, o2, nil)
		require.NoError(t, err)
		assert.Equal(t, ContinuityAboveCurve, v.Continuity)
	})
}

func TestElementaryVolume_Polyline(t *testing.T) {
	curves := []RatingCurve{polyCurve(t)}

	tests := []struct {
		name   string
		h1, h2 float64
		dt     time.Duration
		want   float64
	}{
		// crossing at 200 after 1800 s: 1800·(0+400)/2 + 900·(400+700)/2
		{"rising across a pivot", 0, 300, 2700 * time.Second, 855000},
		{"falling across a pivot", 300, 0, 2700 * time.Second, 855000},
		{"same bracket", 100, 150, 100 * time.Second, 25000},
		{"flat", 300, 300, 10 * time.Second, 7000},
		{"zero span", 100, 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o1, o2 := pair(tt.h1, tt.h2, tt.dt)
			v, err := ElementaryVolume(o1, o2, curves)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v.Value, 1e-6)
			assert.Equal(t, ContinuityContinuous, v.Continuity)
		})
	}
}

func TestElementaryVolume_OutOfRange(t *testing.T) {
	curves := []RatingCurve{polyCurve(t)}

	o1, o2 := pair(0, 450, time.Hour)
	v, err := ElementaryVolume(o1, o2, curves)
	require.NoError(t, err)
	assert.True(t, v.Undefined())
	assert.Equal(t, ContinuityAboveCurve, v.Continuity)

	o1, o2 = pair(-1, 100, time.Hour)
	v, err = ElementaryVolume(o1, o2, curves)
	require.NoError(t, err)
	assert.Equal(t, ContinuityBelowCurve, v.Continuity)

	o1, o2 = pair(100, 200, time.Hour)
	v, err = ElementaryVolume(o1, o2, []RatingCurve{})
	require.NoError(t, err)
	assert.Equal(t, ContinuityUndefined, v.Continuity)
}

func TestElementaryVolume_PowerLaw(t *testing.T) {
	t.Run("constant stage", func(t *testing.T) {
		dt := 600 * time.Second
		o1, o2 := pair(1860, 1860, dt)
		v, err := ElementaryVolume(o1, o2, []RatingCurve{powerCurve(t)})
		require.NoError(t, err)
		assert.InDelta(t, 1000*1*dt.Seconds()*(1860-1), v.Value, 1e-3)
	})

	t.Run("closed form across a pivot", func(t *testing.T) {
		c, err := NewRatingCurve("P3", PowerLaw, []Pivot{
			{Height: 10},
			{Height: 100, VarA: 1, VarB: 1, VarH: 0},
			{Height: 200, VarA: 2, VarB: 1, VarH: 50},
		}, openPeriod(testStart))
		require.NoError(t, err)

		o1, o2 := pair(50, 150, 100*time.Second)
		v, err := ElementaryVolume(o1, o2, []RatingCurve{c})
		require.NoError(t, err)
		// 50 s at Q 50000→100000, then 50 s at Q 100000→200000
		assert.InDelta(t, 3750000.0+7500000.0, v.Value, 1e-3)
	})

	t.Run("below the anchor", func(t *testing.T) {
		o1, o2 := pair(0.5, 10, time.Second)
		_, err := ElementaryVolume(o1, o2, []RatingCurve{powerCurve(t)})
		require.ErrorIs(t, err, ErrPowerLawDomain)
	})
}

func TestPowerLawVolume_LogForm(t *testing.T) {
	p := Pivot{VarA: 1, VarB: -1, VarH: 0}
	got, err := powerLawVolume(p, 1, math.E, 10)
	require.NoError(t, err)
	// s = (e−1)/10, integral = 1000/s · ln(e/1)
	assert.InDelta(t, 1000*10/(math.E-1), got, 1e-6)
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyInput(q Quantity, points map[time.Duration]float64) *Series {
	obs := make([]Observation, 0, len(points))
	for off, v := range points {
		obs = append(obs, Observation{Time: day0.Add(off), Value: v, Qualification: QualificationGood})
	}
	return NewSeries(testStation, q, obs)
}

func TestDailyMeans(t *testing.T) {
	const h = time.Hour

	t.Run("constant discharge", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			0: 1000, 6 * h: 1000, 12 * h: 1000, 30 * h: 1000, 48 * h: 1000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		assert.Equal(t, day0, out.At(0).Time)
		assert.Equal(t, day0.AddDate(0, 0, 1), out.At(1).Time)
		assert.InDeltaSlice(t, []float64{1000, 1000}, values(out), 1e-9)
		assert.Equal(t, ContinuityContinuous, out.At(0).Continuity)
		assert.Equal(t, QualificationGood, out.At(0).Qualification)
		assert.Equal(t, MethodComputed, out.At(0).Method)
	})

	t.Run("midnight split interpolates", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			0: 1000, 18 * h: 1000, 30 * h: 2000, 48 * h: 2000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		assert.InDeltaSlice(t, []float64{1062.5, 1937.5}, values(out), 1e-9)
	})

	t.Run("incomplete first day", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			6 * h: 1000, 24 * h: 1000, 48 * h: 1000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		assert.True(t, out.At(0).Undefined())
		assert.Equal(t, ContinuityUndefined, out.At(0).Continuity)
		assert.InDelta(t, 1000.0, out.At(1).Value, 1e-9)
	})

	t.Run("day without samples", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			0: 1000, 72 * h: 1000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 3, out.Len())
		assert.InDelta(t, 1000.0, out.At(0).Value, 1e-9)
		assert.True(t, out.At(1).Undefined())
		assert.True(t, out.At(2).Undefined())
		assert.Equal(t, ContinuityUndefined, out.At(1).Continuity)
	})

	t.Run("undefined sub-interval", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			0: 1000, 12 * h: math.NaN(), 24 * h: 1000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
		assert.True(t, out.At(0).Undefined())
		assert.Equal(t, ContinuityUndefined, out.At(0).Continuity)
	})

	t.Run("trailing partial day is not emitted", func(t *testing.T) {
		in := dailyInput(QuantityDischarge, map[time.Duration]float64{
			0: 1000, 24 * h: 1000, 36 * h: 1000,
		})
		out, err := DailyMeans(in, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Len())
	})

	t.Run("stage series through a corrected curve", func(t *testing.T) {
		in := dailyInput(QuantityStage, map[time.Duration]float64{
			0: 290, 12 * h: 290, 24 * h: 290,
		})
		out, err := DailyMeans(in, []RatingCurve{polyCurve(t)}, constantCorrection(10))
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
		assert.Equal(t, QuantityDischarge, out.Quantity)
		assert.InDelta(t, 700.0, out.At(0).Value, 1e-9)
		assert.Equal(t, QualificationGood, out.At(0).Qualification)
	})

	t.Run("too few samples", func(t *testing.T) {
		out, err := DailyMeans(dailyInput(QuantityDischarge, map[time.Duration]float64{0: 1}), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, out.Len())
	})

	t.Run("wrong quantity", func(t *testing.T) {
		_, err := DailyMeans(NewSeries(testStation, "T", nil), nil, nil)
		require.ErrorIs(t, err, ErrWrongQuantity)
	})
}

func januaryDaily(skip int) *Series {
	var obs []Observation
	for d := 1; d <= 31; d++ {
		if d == skip {
			continue
		}
		obs = append(obs, Observation{
			Time:          time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC),
			Value:         float64(d),
			Method:        MethodComputed,
			Qualification: QualificationGood,
		})
	}
	return NewSeries(testStation, QuantityDischarge, obs)
}

func TestMonthlyMeans(t *testing.T) {
	t.Run("complete month", func(t *testing.T) {
		out, err := MonthlyMeans(januaryDaily(0))
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
		assert.Equal(t, day0, out.At(0).Time)
		assert.InDelta(t, 16.0, out.At(0).Value, 1e-9)
		assert.Equal(t, ContinuityContinuous, out.At(0).Continuity)
		assert.Equal(t, QualificationGood, out.At(0).Qualification)
	})

	t.Run("missing day", func(t *testing.T) {
		out, err := MonthlyMeans(januaryDaily(15))
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
		assert.True(t, out.At(0).Undefined())
		assert.Equal(t, ContinuityUndefined, out.At(0).Continuity)
	})

	t.Run("undefined day", func(t *testing.T) {
		obs := januaryDaily(0).Observations()
		obs[9].Value = math.NaN()
		obs[9].Continuity = ContinuityUndefined
		obs[9].Qualification = QualificationUnqualified
		out, err := MonthlyMeans(NewSeries(testStation, QuantityDischarge, obs))
		require.NoError(t, err)
		assert.True(t, out.At(0).Undefined())
		assert.Equal(t, QualificationUnqualified, out.At(0).Qualification)
	})

	t.Run("groups by month", func(t *testing.T) {
		obs := januaryDaily(0).Observations()
		obs = append(obs, Observation{Time: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Value: 3})
		out, err := MonthlyMeans(NewSeries(testStation, QuantityDischarge, obs))
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		assert.False(t, out.At(0).Undefined())
		assert.True(t, out.At(1).Undefined())
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), out.At(1).Time)
	})

	t.Run("wrong quantity", func(t *testing.T) {
		_, err := MonthlyMeans(NewSeries(testStation, QuantityStage, nil))
		require.ErrorIs(t, err, ErrWrongQuantity)
	})
}

func TestDailyThenMonthly(t *testing.T) {
	obs := make([]Observation, 0, 32)
	for d := 0; d <= 31; d++ {
		obs = append(obs, Observation{Time: day0.AddDate(0, 0, d), Value: 500, Qualification: QualificationGood})
	}
	daily, err := DailyMeans(NewSeries(testStation, QuantityDischarge, obs), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 31, daily.Len())

	monthly, err := MonthlyMeans(daily)
	require.NoError(t, err)
	require.Equal(t, 1, monthly.Len())
	assert.InDelta(t, 500.0, monthly.At(0).Value, 1e-9)
}

func TestElementaryVolume_Unordered(t *testing.T) {
	o1, o2 := pair(100, 300, -time.Hour)

	_, err := ElementaryVolume(o1, o2, []RatingCurve{polyCurve(t)})
	require.ErrorIs(t, err, ErrUnorderedObservations)

	_, err = ElementaryVolume(o1, o2, nil)
	require.ErrorIs(t, err, ErrUnorderedObservations)
}
