// Package domain converts hydrometric stage readings to discharge and back,
// and derives daily and monthly mean discharges.
//
// # Units and Codes
//
// Stages (hauteurs) are in millimetres, discharges (débits) in litres per
// second. Elementary volumes are therefore in litres and a daily mean is the
// day's volume divided by 86400.
//
// Every [Observation] carries four integer codes:
//
//	method         8 = computed (every value the engine produces)
//	qualification  12 uncertain | 16 unqualified | 20 good; combining takes the minimum
//	continuity     0 continuous | 1 undefined | 4 below curve | 8 above curve
//	status         passed through, combined with the minimum
//
// An undefined value is NaN in memory and null on the wire. Undefined values
// are data, never errors: conversions report them through the continuity code.
//
// # Rating Curves
//
// A [RatingCurve] maps stage to discharge through sorted pivots, either as a
// polyline or as a power law Q = 1000·a·(h−h0)^b whose parameters are carried
// by the pivot closing each segment. A curve applies to a timestamp when one
// of its in-use [UsagePeriod]s covers it and has not been deactivated. When
// several curves are active, the first one in caller order wins.
//
// A [CorrectionCurve] shifts raw stages by an offset interpolated in time
// between its pivots. Stage is corrected before rating and uncorrected after
// inverse rating.
//
// # Volumes
//
// [ElementaryVolume] integrates discharge between two samples, splitting the
// interval where the stage crosses a pivot. Power-law segments are integrated
// in closed form with the stage assumed linear in time. [DailyMeans] splits
// the series at each local midnight; [MonthlyMeans] requires every day of the
// month.
//
// # Messages
//
// The service consumes [ConversionRequest] JSON and produces
// [ConversionResult] JSON. Result IDs are deterministic SHA-256 hashes of the
// request ID, operation and series bounds, so replays overwrite rather than
// duplicate downstream rows. See [generateID].
package domain
