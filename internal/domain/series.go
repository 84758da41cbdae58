package domain

import "slices"

// ConvertOption tunes a series conversion.
type ConvertOption func(*convertOptions)

type convertOptions struct {
	correction   *CorrectionCurve
	insertPivots bool
}

// WithCorrection applies cc in stage space: before rating for H→Q, after
// the inverse rating for Q→H. A nil curve is a no-op.
func WithCorrection(cc *CorrectionCurve) ConvertOption {
	return func(o *convertOptions) { o.correction = cc }
}

// WithPivotInsertion adds a synthetic observation wherever the series
// crosses a pivot of the active rating curve between two samples.
func WithPivotInsertion(enabled bool) ConvertOption {
	return func(o *convertOptions) { o.insertPivots = enabled }
}

func buildOptions(opts []ConvertOption) convertOptions {
	var o convertOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ConvertSeries converts a stage series to discharge or a discharge series
// to stage, depending on its quantity.
func ConvertSeries(s *Series, curves []RatingCurve, opts ...ConvertOption) (*Series, error) {
	switch s.Quantity {
	case QuantityStage:
		return StageToDischargeSeries(s, curves, opts...)
	case QuantityDischarge:
		return DischargeToStageSeries(s, curves, opts...)
	default:
		return nil, wrongQuantity(QuantityStage, s.Quantity)
	}
}

// StageToDischargeSeries rates every stage observation of s. Per-point
// failures become undefined observations; only a malformed curve aborts.
func StageToDischargeSeries(s *Series, curves []RatingCurve, opts ...ConvertOption) (*Series, error) {
	if s.Quantity != QuantityStage {
		return nil, wrongQuantity(QuantityStage, s.Quantity)
	}
	o := buildOptions(opts)

	input := s.obs
	if o.correction != nil {
		input = make([]Observation, len(s.obs))
		for i, obs := range s.obs {
			input[i] = correctObservation(obs, o.correction.Corrected)
		}
	}

	c := seriesConversion{
		curves:  curves,
		axis:    AxisHeight,
		convert: StageToDischarge,
		insert:  o.insertPivots,
	}
	b, err := c.run(input)
	if err != nil {
		return nil, err
	}
	return b.build(s.Entity, QuantityDischarge), nil
}

// DischargeToStageSeries is the inverse of StageToDischargeSeries.
func DischargeToStageSeries(s *Series, curves []RatingCurve, opts ...ConvertOption) (*Series, error) {
	if s.Quantity != QuantityDischarge {
		return nil, wrongQuantity(QuantityDischarge, s.Quantity)
	}
	o := buildOptions(opts)

	c := seriesConversion{
		curves:  curves,
		axis:    AxisDischarge,
		convert: DischargeToStage,
		insert:  o.insertPivots,
	}
	if cc := o.correction; cc != nil {
		c.post = func(obs Observation) Observation {
			return correctObservation(obs, cc.Uncorrect)
		}
	}
	b, err := c.run(s.obs)
	if err != nil {
		return nil, err
	}
	return b.build(s.Entity, QuantityStage), nil
}

type seriesConversion struct {
	curves  []RatingCurve
	axis    Axis
	convert func(Observation, []RatingCurve) (Observation, error)
	post    func(Observation) Observation
	insert  bool
}

func (c seriesConversion) run(input []Observation) (*seriesBuilder, error) {
	b := newSeriesBuilder(len(input))
	for i, cur := range input {
		if c.insert && i > 0 {
			if err := c.insertCrossings(b, input[i-1], cur); err != nil {
				return nil, err
			}
		}
		if err := c.emit(b, cur); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// emit converts raw and appends it, carrying the previous continuity code
// over an undefined run.
func (c seriesConversion) emit(b *seriesBuilder, raw Observation) error {
	conv, err := c.convert(raw, c.curves)
	if err != nil {
		return err
	}
	if c.post != nil {
		conv = c.post(conv)
	}
	if conv.Continuity == ContinuityUndefined {
		if prev, ok := b.last(); ok && prev.Undefined() {
			conv.Continuity = prev.Continuity
		}
	}
	b.append(conv)
	return nil
}

// insertCrossings emits one synthetic observation per pivot coordinate
// strictly between prev.Value and cur.Value, in the direction of travel.
func (c seriesConversion) insertCrossings(b *seriesBuilder, prev, cur Observation) error {
	if prev.Undefined() || cur.Undefined() || prev.Value == cur.Value {
		return nil
	}
	curve, ok := ActiveCurve(c.curves, prev.Time)
	if !ok || !curve.Usable() {
		return nil
	}
	lo, hi := min(prev.Value, cur.Value), max(prev.Value, cur.Value)
	pivots, err := curve.PivotsBetween(c.axis, &lo, &hi)
	if err != nil {
		return err
	}
	coords := make([]float64, 0, len(pivots))
	for _, p := range pivots {
		v := p.Height
		if c.axis == AxisDischarge {
			v = p.Discharge
		}
		if v > lo && v < hi {
			coords = append(coords, v)
		}
	}
	slices.Sort(coords)
	if cur.Value < prev.Value {
		slices.Reverse(coords)
	}

	for _, v := range coords {
		t, ok := InverseTime(prev.Time, prev.Value, cur.Time, cur.Value, v)
		if !ok || !t.Before(cur.Time) {
			continue
		}
		if last, ok := b.last(); ok && !t.After(last.Time) {
			continue
		}
		synthetic := Observation{
			Time:          t,
			Value:         v,
			Method:        prev.Method,
			Qualification: min(prev.Qualification, cur.Qualification),
			Continuity:    ContinuityContinuous,
			Status:        min(prev.Status, cur.Status),
		}
		if err := c.emit(b, synthetic); err != nil {
			return err
		}
	}
	return nil
}
