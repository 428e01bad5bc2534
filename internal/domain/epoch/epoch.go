// Package epoch converts between wall-clock timestamps and the integer
// hour buckets all retention age arithmetic runs on.
//
// The basic rhythm for eviction is hourly: an epoch is the number of
// whole hours since the UNIX reference instant. Hours are granular
// enough for retention purposes and coarse enough to keep the number of
// age buckets (and therefore store queries) small, while remaining
// something a human can reason about when debugging. The choice of
// width only shifts the age-based irrelevance by a constant, which the
// threshold search corrects for, so it does not change eviction
// outcomes.
package epoch

import "time"

// Width is the duration of one epoch.
const Width = time.Hour

// Epoch is an integer count of epochs since the UNIX reference instant.
type Epoch int64

// FromTime returns the epoch containing t. Conversion goes through the
// UNIX timestamp, so it is independent of t's location.
func FromTime(t time.Time) Epoch {
	return Epoch(t.Unix() / int64(Width/time.Second))
}

// Time returns the UTC instant at which e begins. It is the exact
// inverse of FromTime at bucket boundaries: FromTime(e.Time()) == e for
// every integer e.
func (e Epoch) Time() time.Time {
	return time.Unix(int64(e)*int64(Width/time.Second), 0).UTC()
}
