// Package animation implements the playback engine: curve interpolation,
// the animator state machine that steps servos at a fixed rate, and the
// audio/servo synchronization protocol.
package animation

import "math"

// Point is a single timed control point on a servo curve.
type Point struct {
	Time  int `json:"time"` // milliseconds from animation start
	Pulse int `json:"pulse"`
}

// Curve is an ordered sequence of control points for one channel.
// Well-formed curves have non-decreasing times, but the interpolator
// tolerates duplicates and out-of-order points (the last point at or
// before the query time wins).
type Curve []Point

// ValueAt returns the curve's interpolated pulse at time t.
// Outside the curve the nearest endpoint's pulse is held; an empty curve
// yields def. The result is not clamped here; servo limits are applied
// by the controller at write time.
func (c Curve) ValueAt(t, def int) int {
	var before, after *Point
	for i := range c {
		p := &c[i]
		if p.Time <= t {
			before = p
		} else if after == nil {
			after = p
		}
	}

	switch {
	case before == nil && after == nil:
		return def
	case before == nil:
		return after.Pulse
	case after == nil:
		return before.Pulse
	}

	if after.Time == before.Time {
		return before.Pulse
	}

	frac := float64(t-before.Time) / float64(after.Time-before.Time)
	return int(math.Round(float64(before.Pulse) + float64(after.Pulse-before.Pulse)*frac))
}
