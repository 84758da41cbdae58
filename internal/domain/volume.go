package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

const secondsPerDay = 86400

// ElementaryVolume integrates discharge over [o1.Time, o2.Time]. With nil
// curves the observations are discharges and the trapezoid rule applies;
// otherwise they are stages rated through the curve active at o1.Time.
// The result is stamped at o1.Time.
func ElementaryVolume(o1, o2 Observation, curves []RatingCurve) (Observation, error) {
	if o2.Time.Before(o1.Time) {
		return Observation{}, fmt.Errorf("%w: %s before %s", ErrUnorderedObservations,
			o2.Time.Format(time.RFC3339), o1.Time.Format(time.RFC3339))
	}
	if curves == nil {
		return dischargeVolume(o1, o2), nil
	}
	return stageVolume(o1, o2, curves)
}

func volumeObservation(o1, o2 Observation) Observation {
	return Observation{
		Time:          o1.Time,
		Method:        MethodComputed,
		Qualification: min(o1.Qualification, o2.Qualification),
		Continuity:    ContinuityContinuous,
		Status:        min(o1.Status, o2.Status),
	}
}

// undefinedContinuity picks the continuity of the first undefined endpoint,
// falling back to ContinuityUndefined when that endpoint carries none.
func undefinedContinuity(o1, o2 Observation) int {
	for _, o := range []Observation{o1, o2} {
		if o.Undefined() && o.Continuity != ContinuityContinuous {
			return o.Continuity
		}
	}
	return ContinuityUndefined
}

func dischargeVolume(o1, o2 Observation) Observation {
	v := volumeObservation(o1, o2)
	if o1.Undefined() || o2.Undefined() {
		return undefinedAs(v, undefinedContinuity(o1, o2))
	}
	v.Value = 0.5 * (o1.Value + o2.Value) * elapsed(o1.Time, o2.Time)
	return v
}

func stageVolume(o1, o2 Observation, curves []RatingCurve) (Observation, error) {
	v := volumeObservation(o1, o2)
	if o1.Undefined() || o2.Undefined() {
		return undefinedAs(v, undefinedContinuity(o1, o2)), nil
	}
	curve, ok := ActiveCurve(curves, o1.Time)
	if !ok || !curve.Usable() {
		return undefinedAs(v, ContinuityUndefined), nil
	}
	h1, h2 := o1.Value, o2.Value
	switch {
	case h1 < curve.MinHeight() || h2 < curve.MinHeight():
		return undefinedAs(v, ContinuityBelowCurve), nil
	case h1 > curve.MaxHeight() || h2 > curve.MaxHeight():
		return undefinedAs(v, ContinuityAboveCurve), nil
	}

	dt := elapsed(o1.Time, o2.Time)
	vol, err := curve.volume(h1, h2, dt)
	if err != nil {
		return Observation{}, fmt.Errorf("curve %s at %s: %w", curve.Code, o1.Time.Format(time.RFC3339), err)
	}
	v.Value = vol
	return v, nil
}

// volume integrates the curve along a stage varying linearly from h1 to h2
// over dt seconds. The interval is split wherever the stage crosses a pivot.
func (c RatingCurve) volume(h1, h2, dt float64) (float64, error) {
	if dt == 0 {
		return 0, nil
	}
	hs, ts := c.crossings(h1, h2, dt)
	if len(hs) == 2 {
		q1, err := c.Discharge(h1)
		if err != nil {
			return math.NaN(), err
		}
		q2, err := c.Discharge(h2)
		if err != nil {
			return math.NaN(), err
		}
		return 0.5 * (q1 + q2) * dt, nil
	}

	if c.Kind == PowerLaw {
		var total float64
		for k := 1; k < len(hs); k++ {
			p := c.Pivots[c.segment((hs[k-1]+hs[k])/2)]
			part, err := powerLawVolume(p, hs[k-1], hs[k], ts[k]-ts[k-1])
			if err != nil {
				return math.NaN(), err
			}
			total += part
		}
		return total, nil
	}

	qs := make([]float64, len(hs))
	for k, h := range hs {
		q, err := c.Discharge(h)
		if err != nil {
			return math.NaN(), err
		}
		qs[k] = q
	}
	return integrate.Trapezoidal(ts, qs), nil
}

// crossings returns the stages and elapsed seconds of the interval nodes:
// both endpoints and every pivot strictly between them, in travel order.
func (c RatingCurve) crossings(h1, h2, dt float64) (hs, ts []float64) {
	hs = []float64{h1}
	ts = []float64{0}
	lo, hi := min(h1, h2), max(h1, h2)
	var between []float64
	for _, p := range c.Pivots {
		if p.Height > lo && p.Height < hi {
			between = append(between, p.Height)
		}
	}
	if h2 < h1 {
		sort.Sort(sort.Reverse(sort.Float64Slice(between)))
	}
	for _, h := range between {
		hs = append(hs, h)
		ts = append(ts, (h-h1)/(h2-h1)*dt)
	}
	hs = append(hs, h2)
	ts = append(ts, dt)
	return hs, ts
}

// powerLawVolume integrates 1000·a·(H−h0)^b with H linear from ha to hb over
// dt seconds.
func powerLawVolume(p Pivot, ha, hb, dt float64) (float64, error) {
	if ha < p.VarH || hb < p.VarH {
		return math.NaN(), fmt.Errorf("%w: h=%g varh=%g", ErrPowerLawDomain, min(ha, hb), p.VarH)
	}
	if dt == 0 {
		return 0, nil
	}
	k := 1000 * p.VarA
	s := (hb - ha) / dt
	switch {
	case s == 0:
		return k * math.Pow(ha-p.VarH, p.VarB) * dt, nil
	case p.VarB == -1:
		return k / s * (math.Log(hb-p.VarH) - math.Log(ha-p.VarH)), nil
	default:
		b1 := p.VarB + 1
		return k / (s * b1) * (math.Pow(hb-p.VarH, b1) - math.Pow(ha-p.VarH, b1)), nil
	}
}

// DailyMeans reduces a stage or discharge series to one mean discharge per
// calendar day, in the location of the first observation. Stage series are
// corrected with cc first when it is non-nil. Only days whose closing
// midnight is covered by the series are emitted.
func DailyMeans(s *Series, curves []RatingCurve, cc *CorrectionCurve) (*Series, error) {
	var volume func(o1, o2 Observation) (Observation, error)
	input := s.obs
	switch s.Quantity {
	case QuantityStage:
		if cc != nil {
			input = make([]Observation, len(s.obs))
			for i, o := range s.obs {
				input[i] = correctObservation(o, cc.Corrected)
			}
		}
		volume = func(o1, o2 Observation) (Observation, error) { return stageVolume(o1, o2, curves) }
	case QuantityDischarge:
		volume = func(o1, o2 Observation) (Observation, error) { return dischargeVolume(o1, o2), nil }
	default:
		return nil, wrongQuantity(QuantityDischarge, s.Quantity)
	}

	b := newSeriesBuilder(0)
	if len(input) < 2 {
		return b.build(s.Entity, QuantityDischarge), nil
	}

	first := input[0]
	acc := newDayAccumulator(midnight(first.Time))
	acc.incomplete = !first.Time.Equal(acc.day)
	acc.sampled = true

	for i := 1; i < len(input); i++ {
		prev, cur := input[i-1], input[i]
		from := prev
		for next := acc.end(); !next.After(cur.Time); next = acc.end() {
			to := cur
			if !next.Equal(cur.Time) {
				to = interpolateObservation(prev, cur, next)
			}
			if err := acc.add(volume(from, to)); err != nil {
				return nil, err
			}
			b.append(acc.observation())
			acc = newDayAccumulator(next)
			from = to
		}
		if from.Time.Before(cur.Time) {
			if err := acc.add(volume(from, cur)); err != nil {
				return nil, err
			}
		}
		acc.sampled = true
	}
	return b.build(s.Entity, QuantityDischarge), nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// interpolateObservation synthesizes the sample at t on the segment between
// prev and cur.
func interpolateObservation(prev, cur Observation, t time.Time) Observation {
	o := Observation{
		Time:          t,
		Value:         InterpolateTime(prev.Time, prev.Value, cur.Time, cur.Value, t),
		Method:        prev.Method,
		Qualification: min(prev.Qualification, cur.Qualification),
		Continuity:    ContinuityContinuous,
		Status:        min(prev.Status, cur.Status),
	}
	if o.Undefined() {
		o.Continuity = undefinedContinuity(prev, cur)
	}
	return o
}

type dayAccumulator struct {
	day        time.Time
	volumes    []float64
	qualities  []int
	statuses   []int
	undefined  bool
	sampled    bool
	incomplete bool
}

func newDayAccumulator(day time.Time) *dayAccumulator {
	return &dayAccumulator{day: day}
}

func (d *dayAccumulator) end() time.Time {
	return d.day.AddDate(0, 0, 1)
}

func (d *dayAccumulator) add(v Observation, err error) error {
	if err != nil {
		return err
	}
	d.volumes = append(d.volumes, v.Value)
	d.qualities = append(d.qualities, v.Qualification)
	d.statuses = append(d.statuses, v.Status)
	if v.Undefined() {
		d.undefined = true
	}
	return nil
}

func (d *dayAccumulator) observation() Observation {
	o := Observation{
		Time:          d.day,
		Value:         math.NaN(),
		Method:        MethodComputed,
		Qualification: QualificationUnqualified,
		Continuity:    ContinuityUndefined,
	}
	if len(d.qualities) > 0 {
		o.Qualification = minInt(d.qualities)
		o.Status = minInt(d.statuses)
	}
	if d.undefined || !d.sampled || d.incomplete {
		return o
	}
	o.Value = floats.Sum(d.volumes) / secondsPerDay
	o.Continuity = ContinuityContinuous
	return o
}

func minInt(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		m = min(m, v)
	}
	return m
}

// MonthlyMeans reduces a daily-mean series to one mean per calendar month.
// A month gets a value only when every one of its days has a defined mean.
func MonthlyMeans(daily *Series) (*Series, error) {
	if daily.Quantity != QuantityDischarge {
		return nil, wrongQuantity(QuantityDischarge, daily.Quantity)
	}
	b := newSeriesBuilder(0)
	obs := daily.obs
	for start := 0; start < len(obs); {
		month := firstOfMonth(obs[start].Time)
		end := start
		for end < len(obs) && firstOfMonth(obs[end].Time).Equal(month) {
			end++
		}
		b.append(monthlyMean(month, obs[start:end]))
		start = end
	}
	return b.build(daily.Entity, QuantityDischarge), nil
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func daysIn(month time.Time) int {
	return month.AddDate(0, 1, -1).Day()
}

func monthlyMean(month time.Time, days []Observation) Observation {
	o := Observation{
		Time:          month,
		Value:         math.NaN(),
		Method:        MethodComputed,
		Qualification: days[0].Qualification,
		Continuity:    ContinuityContinuous,
		Status:        days[0].Status,
	}
	present := make(map[int]bool, len(days))
	values := make([]float64, 0, len(days))
	for _, d := range days {
		o.Qualification = min(o.Qualification, d.Qualification)
		o.Status = min(o.Status, d.Status)
		if d.Continuity != ContinuityContinuous {
			o.Continuity = ContinuityUndefined
		}
		if d.Undefined() || d.Continuity == ContinuityUndefined || present[d.Time.Day()] {
			continue
		}
		present[d.Time.Day()] = true
		values = append(values, d.Value)
	}
	if len(present) != daysIn(month) {
		o.Continuity = ContinuityUndefined
		return o
	}
	o.Value = floats.Sum(values) / float64(len(values))
	return o
}
