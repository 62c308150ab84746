package servo

import (
	"sync"

	"github.com/kristof/droid-rig/internal/log"
)

// Controller is the high-level servo interface: it clamps positions to
// each channel's configured range, writes them through the PWM driver
// and tracks the last commanded position per channel.
type Controller struct {
	pwm   PWM
	store *Store

	mu        sync.Mutex
	positions map[int]int
}

// NewController creates a controller and moves every configured servo to
// its center position.
func NewController(pwm PWM, store *Store) *Controller {
	c := &Controller{
		pwm:       pwm,
		store:     store,
		positions: make(map[int]int),
	}
	c.CenterAll()
	return c
}

// SetPosition moves a servo to the given pulse width, clamped to the
// channel's configured [min, max]. Returns the pulse actually applied.
func (c *Controller) SetPosition(channel, pulse int) int {
	st := c.store.Servo(channel)
	if pulse < st.MinPulse {
		pulse = st.MinPulse
	}
	if pulse > st.MaxPulse {
		pulse = st.MaxPulse
	}

	if err := c.pwm.SetPulse(channel, pulse); err != nil {
		// A single failed write must not abort a running animation;
		// the position table still advances so stepping stays continuous.
		log.Warn("pwm write failed", "channel", channel, "pulse", pulse, "err", err)
	}

	c.mu.Lock()
	c.positions[channel] = pulse
	c.mu.Unlock()

	return pulse
}

// GetPosition returns the last commanded pulse for a channel, or the
// channel's configured center if it has never been set.
func (c *Controller) GetPosition(channel int) int {
	c.mu.Lock()
	pos, ok := c.positions[channel]
	c.mu.Unlock()
	if ok {
		return pos
	}
	return c.store.Servo(channel).CenterPulse
}

// Limits returns the configured min, center and max pulse for a channel.
func (c *Controller) Limits(channel int) (min, center, max int) {
	st := c.store.Servo(channel)
	return st.MinPulse, st.CenterPulse, st.MaxPulse
}

// Positions returns a snapshot of all tracked servo positions.
func (c *Controller) Positions() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int, len(c.positions))
	for ch, pos := range c.positions {
		out[ch] = pos
	}
	return out
}

// NumServos returns the configured servo count.
func (c *Controller) NumServos() int {
	return c.store.NumServos()
}

// Center moves a single servo to its configured center position.
func (c *Controller) Center(channel int) int {
	return c.SetPosition(channel, c.store.Servo(channel).CenterPulse)
}

// CenterAll moves every configured servo to its center position.
func (c *Controller) CenterAll() {
	for i := 0; i < c.store.NumServos(); i++ {
		c.Center(i)
	}
}

// SetNumServos changes the servo count. New channels are centered;
// positions for removed channels are forgotten.
func (c *Controller) SetNumServos(count int) {
	old := c.store.NumServos()
	c.store.SetNumServos(count)
	n := c.store.NumServos()

	for i := old; i < n; i++ {
		c.Center(i)
	}

	c.mu.Lock()
	for ch := range c.positions {
		if ch >= n {
			delete(c.positions, ch)
		}
	}
	c.mu.Unlock()
}

// Store returns the backing configuration store.
func (c *Controller) Store() *Store {
	return c.store
}
