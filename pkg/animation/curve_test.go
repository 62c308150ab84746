package animation

import "testing"

func TestCurve_ValueAt_Empty(t *testing.T) {
	var c Curve
	for _, q := range []int{-100, 0, 500, 99999} {
		if got := c.ValueAt(q, 1500); got != 1500 {
			t.Errorf("ValueAt(%d) on empty curve: got %d, want 1500", q, got)
		}
	}
}

func TestCurve_ValueAt_ExactPoints(t *testing.T) {
	c := Curve{
		{Time: 0, Pulse: 1000},
		{Time: 250, Pulse: 1800},
		{Time: 1000, Pulse: 2000},
	}
	for _, p := range c {
		if got := c.ValueAt(p.Time, 1500); got != p.Pulse {
			t.Errorf("ValueAt(%d): got %d, want %d", p.Time, got, p.Pulse)
		}
	}
}

func TestCurve_ValueAt_Midpoint(t *testing.T) {
	c := Curve{{Time: 0, Pulse: 1000}, {Time: 1000, Pulse: 2000}}
	if got := c.ValueAt(500, 0); got != 1500 {
		t.Errorf("ValueAt(500): got %d, want 1500", got)
	}
}

func TestCurve_ValueAt_HoldLast(t *testing.T) {
	c := Curve{{Time: 0, Pulse: 1000}}
	if got := c.ValueAt(9999, 0); got != 1000 {
		t.Errorf("ValueAt(9999): got %d, want 1000", got)
	}
}

func TestCurve_ValueAt_HoldFirst(t *testing.T) {
	c := Curve{{Time: 500, Pulse: 1200}, {Time: 1000, Pulse: 2000}}
	if got := c.ValueAt(100, 0); got != 1200 {
		t.Errorf("ValueAt(100): got %d, want 1200 (hold first)", got)
	}
}

func TestCurve_ValueAt_BetweenBounds(t *testing.T) {
	c := Curve{{Time: 0, Pulse: 1000}, {Time: 300, Pulse: 1700}, {Time: 600, Pulse: 900}}
	cases := []struct{ t, lo, hi int }{
		{50, 1000, 1700},
		{150, 1000, 1700},
		{299, 1000, 1700},
		{301, 900, 1700},
		{550, 900, 1700},
	}
	for _, tc := range cases {
		got := c.ValueAt(tc.t, 0)
		if got < tc.lo || got > tc.hi {
			t.Errorf("ValueAt(%d): got %d, want within [%d, %d]", tc.t, got, tc.lo, tc.hi)
		}
	}
}

func TestCurve_ValueAt_Rounding(t *testing.T) {
	c := Curve{{Time: 0, Pulse: 1000}, {Time: 3, Pulse: 1001}}
	// frac 2/3 -> 1000.67 rounds to 1001
	if got := c.ValueAt(2, 0); got != 1001 {
		t.Errorf("ValueAt(2): got %d, want 1001", got)
	}
	// frac 1/3 -> 1000.33 rounds to 1000
	if got := c.ValueAt(1, 0); got != 1000 {
		t.Errorf("ValueAt(1): got %d, want 1000", got)
	}
}

func TestCurve_ValueAt_DuplicateTimes(t *testing.T) {
	// Later points at the same time win.
	c := Curve{{Time: 100, Pulse: 1000}, {Time: 100, Pulse: 1400}, {Time: 200, Pulse: 2000}}
	if got := c.ValueAt(100, 0); got != 1400 {
		t.Errorf("ValueAt(100): got %d, want 1400 (last wins)", got)
	}
	if got := c.ValueAt(150, 0); got != 1700 {
		t.Errorf("ValueAt(150): got %d, want 1700", got)
	}
}
