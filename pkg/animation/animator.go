package animation

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kristof/droid-rig/internal/config"
	"github.com/kristof/droid-rig/internal/log"
)

// ErrBusy is returned when playback is requested while a session is
// already running. The running session is untouched.
var ErrBusy = errors.New("animation already in progress")

// Actuator is the servo interface the animator writes through.
// SetPosition clamps to the channel's configured range and returns the
// pulse actually applied; GetPosition returns the last applied pulse or
// the channel's center if never set.
type Actuator interface {
	SetPosition(channel, pulse int) int
	GetPosition(channel int) int
	Limits(channel int) (min, center, max int)
}

// AudioSync is the audio engine as the animator sees it: a black box it
// starts, optionally waits on, and can forcibly stop.
type AudioSync interface {
	// Play starts the selected track. Returns false if no track is
	// selected. With waitForStart it blocks, bounded by a timeout,
	// until external playback has been confirmed started.
	Play(waitForStart bool) bool
	// Stop terminates any in-flight playback. Idempotent.
	Stop()
	// OffsetMS is the signed sync offset; positive means audio leads.
	OffsetMS() int
	// HasTrack reports whether a track is selected.
	HasTrack() bool
}

// Keyframe is one dense playback unit: target pulses per channel and the
// time to reach them.
type Keyframe struct {
	Targets    map[int]int `json:"servos"`
	DurationMS int         `json:"duration"`
}

// session is one run of the engine from claim to release. Stop is
// signalled by closing the stop channel so sleeps can observe it.
type session struct {
	id        uuid.UUID
	startedAt time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Animator drives timed servo sequences. At most one session is active
// at a time; starting while busy fails with ErrBusy and has no side
// effects. Stop requests are observed at step granularity, so
// cancellation latency is bounded by one step interval.
type Animator struct {
	servo Actuator
	audio AudioSync // nil disables audio sync

	stepInterval time.Duration
	sweepStep    int

	mu      sync.Mutex
	current *session
}

// NewAnimator creates an animator over the given actuator.
func NewAnimator(servo Actuator) *Animator {
	return &Animator{
		servo:        servo,
		stepInterval: config.StepIntervalMS * time.Millisecond,
		sweepStep:    config.SweepStep,
	}
}

// SetAudio attaches an audio engine for synchronized playback.
func (a *Animator) SetAudio(audio AudioSync) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audio = audio
}

// IsAnimating reports whether a session is running.
func (a *Animator) IsAnimating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

// Stop requests the current session to stop and halts audio playback.
// It is a no-op when idle and idempotent while running.
func (a *Animator) Stop() {
	a.mu.Lock()
	s := a.current
	audio := a.audio
	a.mu.Unlock()

	if s != nil {
		s.requestStop()
		log.Info("stop requested", "session", s.id)
	}
	if audio != nil {
		audio.Stop()
	}
}

// begin claims the single active-session slot. Check-and-set under the
// lock: a Busy failure mutates nothing.
func (a *Animator) begin() (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return nil, ErrBusy
	}
	s := &session{
		id:        uuid.New(),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
	a.current = s
	return s, nil
}

// finish releases the active-session slot. Called on every exit path.
func (a *Animator) finish(s *session) {
	a.mu.Lock()
	if a.current == s {
		a.current = nil
	}
	a.mu.Unlock()
	log.Debug("session released", "session", s.id, "elapsed", time.Since(s.startedAt))
}

// sleepStep sleeps for d or until the session is stopped.
// Returns false if the session was stopped.
func sleepStep(s *session, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

// StartPreset runs the preset sequence in the background.
// Returns ErrBusy if a session is already active.
func (a *Animator) StartPreset() error {
	s, err := a.begin()
	if err != nil {
		return err
	}
	go func() {
		defer a.finish(s)
		a.runPreset(s)
	}()
	return nil
}

// PlayPreset runs the preset sequence, blocking until it completes or is
// stopped. Returns ErrBusy if a session is already active.
func (a *Animator) PlayPreset() error {
	s, err := a.begin()
	if err != nil {
		return err
	}
	defer a.finish(s)
	a.runPreset(s)
	return nil
}

// runPreset sweeps channel 0 center→max→center, pauses, then channel 1
// center→min→center. Never touches audio.
func (a *Animator) runPreset(s *session) {
	log.Info("preset animation started", "session", s.id)

	_, center0, max0 := a.servo.Limits(0)
	a.sweep(s, 0, center0, max0)
	a.sweep(s, 0, max0, center0)

	if !s.stopped() {
		sleepStep(s, 500*time.Millisecond)
	}

	min1, center1, _ := a.servo.Limits(1)
	a.sweep(s, 1, center1, min1)
	a.sweep(s, 1, min1, center1)
}

// sweep moves a servo from start to end in fixed pulse increments, one
// per step interval, checking for stop each tick.
func (a *Animator) sweep(s *session, channel, start, end int) {
	step := a.sweepStep
	if start > end {
		step = -step
	}
	for pos := start; ; pos += step {
		if (step > 0 && pos > end) || (step < 0 && pos < end) {
			return
		}
		if s.stopped() {
			return
		}
		a.servo.SetPosition(channel, pos)
		if !sleepStep(s, a.stepInterval) {
			return
		}
	}
}

// StartKeyframes plays a keyframe sequence in the background, optionally
// synchronized with the selected audio track. Returns ErrBusy if a
// session is already active.
func (a *Animator) StartKeyframes(frames []Keyframe, withAudio bool) error {
	s, err := a.begin()
	if err != nil {
		return err
	}
	go func() {
		defer a.finish(s)
		a.runKeyframes(s, frames, withAudio)
	}()
	return nil
}

// PlayKeyframes plays a keyframe sequence, blocking until it completes
// or is stopped. Returns ErrBusy if a session is already active.
func (a *Animator) PlayKeyframes(frames []Keyframe, withAudio bool) error {
	s, err := a.begin()
	if err != nil {
		return err
	}
	defer a.finish(s)
	a.runKeyframes(s, frames, withAudio)
	return nil
}

func (a *Animator) runKeyframes(s *session, frames []Keyframe, withAudio bool) {
	a.mu.Lock()
	audio := a.audio
	a.mu.Unlock()

	if withAudio && audio != nil && audio.HasTrack() {
		// The offset is read once per session; configuration changes
		// apply to the next session.
		offset := audio.OffsetMS()
		if offset >= 0 {
			// Audio first. Play blocks, bounded, until the external
			// process has confirmed start; then hold the servos back
			// for the offset.
			audio.Play(true)
			if offset > 0 {
				if !sleepStep(s, time.Duration(offset)*time.Millisecond) {
					return
				}
			}
		} else {
			// Servos first. Audio starts on its own timer |offset|
			// later, unless a stop arrives before it fires.
			delay := time.Duration(-offset) * time.Millisecond
			go func() {
				if !sleepStep(s, delay) {
					return
				}
				if s.stopped() {
					return
				}
				audio.Play(false)
			}()
		}
	}

	log.Info("keyframe playback started", "session", s.id, "frames", len(frames))

	for _, frame := range frames {
		if s.stopped() {
			return
		}
		a.stepFrame(s, frame)
	}
}

// stepFrame interpolates one keyframe: each touched channel moves
// linearly from its actual last commanded position to the frame target
// over the frame duration. Reading starts from the actuator (not from
// the previous frame's target) keeps motion continuous when clamping
// altered the realized position.
func (a *Animator) stepFrame(s *session, frame Keyframe) {
	stepMS := int(a.stepInterval / time.Millisecond)
	if stepMS < 1 {
		stepMS = 1
	}
	steps := int(math.Round(float64(frame.DurationMS) / float64(stepMS)))
	if steps < 1 {
		steps = 1
	}

	starts := make(map[int]int, len(frame.Targets))
	for ch := range frame.Targets {
		starts[ch] = a.servo.GetPosition(ch)
	}

	for n := 0; n <= steps; n++ {
		if s.stopped() {
			return
		}
		frac := float64(n) / float64(steps)
		for ch, target := range frame.Targets {
			pos := int(math.Round(float64(starts[ch]) + float64(target-starts[ch])*frac))
			a.servo.SetPosition(ch, pos)
		}
		if !sleepStep(s, a.stepInterval) {
			return
		}
	}
}

// StartSaved samples a saved animation into keyframes and plays it in
// the background. Audio is used when the animation names a track and the
// audio engine has it selected.
func (a *Animator) StartSaved(anim *Saved, sampleIntervalMS int, withAudio bool) error {
	frames := a.SampleSaved(anim, sampleIntervalMS)
	return a.StartKeyframes(frames, withAudio)
}

// SampleSaved converts a saved animation's curves into the keyframe form
// the stepping loop consumes, sampling every interval from 0 to the
// animation's duration inclusive. Channels default to their configured
// center where a curve has no data.
func (a *Animator) SampleSaved(anim *Saved, sampleIntervalMS int) []Keyframe {
	if sampleIntervalMS <= 0 {
		sampleIntervalMS = config.SampleIntervalMS
	}

	var frames []Keyframe
	for t := 0; t <= anim.DurationMS; t += sampleIntervalMS {
		targets := make(map[int]int, len(anim.Curves))
		for ch, curve := range anim.Curves {
			_, center, _ := a.servo.Limits(ch)
			targets[ch] = curve.ValueAt(t, center)
		}
		frames = append(frames, Keyframe{Targets: targets, DurationMS: sampleIntervalMS})
	}
	return frames
}

// SetStepInterval overrides the stepping interval. Intended for tests.
func (a *Animator) SetStepInterval(d time.Duration) {
	a.stepInterval = d
}
