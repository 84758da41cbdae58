package domain

import (
	"fmt"
	"math"
	"time"
)

// ActiveCurve returns the first curve active at t, in caller order.
func ActiveCurve(curves []RatingCurve, t time.Time) (RatingCurve, bool) {
	for _, c := range curves {
		if c.IsActive(t) {
			return c, true
		}
	}
	return RatingCurve{}, false
}

// undefinedAs returns obs stripped of its value and flagged with continuity.
func undefinedAs(obs Observation, continuity int) Observation {
	obs.Value = math.NaN()
	obs.Method = MethodComputed
	obs.Continuity = continuity
	return obs
}

// StageToDischarge converts one stage observation with the curve active at
// its timestamp. Out-of-range and missing-curve cases come back as undefined
// observations with continuity 1, 4 or 8; only a malformed power-law curve
// returns an error.
func StageToDischarge(obs Observation, curves []RatingCurve) (Observation, error) {
	if obs.Undefined() {
		return undefinedAs(obs, ContinuityUndefined), nil
	}
	curve, ok := ActiveCurve(curves, obs.Time)
	if !ok || !curve.Usable() {
		return undefinedAs(obs, ContinuityUndefined), nil
	}
	h := obs.Value
	switch {
	case h < curve.MinHeight():
		return undefinedAs(obs, ContinuityBelowCurve), nil
	case h > curve.MaxHeight():
		return undefinedAs(obs, ContinuityAboveCurve), nil
	}

	q, err := curve.Discharge(h)
	if err != nil {
		return Observation{}, fmt.Errorf("curve %s at %s: %w", curve.Code, obs.Time.Format(time.RFC3339), err)
	}
	out := obs
	out.Value = q
	out.Method = MethodComputed
	out.Qualification = min(obs.Qualification, curve.bracketQualification(h))
	if curve.outsideSoftBounds(h) {
		out.Qualification = QualificationUncertain
	}
	return out, nil
}

// DischargeToStage is the inverse of StageToDischarge. The range checks use
// the discharges at the lowest and highest pivots.
func DischargeToStage(obs Observation, curves []RatingCurve) (Observation, error) {
	if obs.Undefined() {
		return undefinedAs(obs, ContinuityUndefined), nil
	}
	curve, ok := ActiveCurve(curves, obs.Time)
	if !ok || !curve.Usable() {
		return undefinedAs(obs, ContinuityUndefined), nil
	}
	qmin, err := curve.MinDischarge()
	if err != nil {
		return Observation{}, fmt.Errorf("curve %s: %w", curve.Code, err)
	}
	qmax, err := curve.MaxDischarge()
	if err != nil {
		return Observation{}, fmt.Errorf("curve %s: %w", curve.Code, err)
	}
	q := obs.Value
	switch {
	case q < qmin:
		return undefinedAs(obs, ContinuityBelowCurve), nil
	case q > qmax:
		return undefinedAs(obs, ContinuityAboveCurve), nil
	}

	h, err := curve.Height(q)
	if err != nil {
		return Observation{}, fmt.Errorf("curve %s at %s: %w", curve.Code, obs.Time.Format(time.RFC3339), err)
	}
	if math.IsNaN(h) {
		return undefinedAs(obs, ContinuityUndefined), nil
	}
	out := obs
	out.Value = h
	out.Method = MethodComputed
	out.Qualification = min(obs.Qualification, curve.bracketQualification(h))
	if curve.outsideSoftBounds(h) {
		out.Qualification = QualificationUncertain
	}
	return out, nil
}
