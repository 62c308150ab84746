package animation

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// testStep is the stepping interval used in tests; short, so sequences
// finish fast but stop latency remains observable.
const testStep = 5 * time.Millisecond

type posCall struct {
	channel, pulse int
	at             time.Time
}

// mockActuator records every write and clamps like the real controller.
type mockActuator struct {
	mu               sync.Mutex
	min, center, max int
	positions        map[int]int
	calls            []posCall
}

func newMockActuator() *mockActuator {
	return &mockActuator{min: 800, center: 1500, max: 2500, positions: make(map[int]int)}
}

func (m *mockActuator) SetPosition(channel, pulse int) int {
	if pulse < m.min {
		pulse = m.min
	}
	if pulse > m.max {
		pulse = m.max
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[channel] = pulse
	m.calls = append(m.calls, posCall{channel, pulse, time.Now()})
	return pulse
}

func (m *mockActuator) GetPosition(channel int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[channel]; ok {
		return pos
	}
	return m.center
}

func (m *mockActuator) Limits(channel int) (int, int, int) {
	return m.min, m.center, m.max
}

func (m *mockActuator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockActuator) callsFor(channel int) []posCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []posCall
	for _, c := range m.calls {
		if c.channel == channel {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockActuator) firstCallAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return time.Time{}
	}
	return m.calls[0].at
}

type playCall struct {
	wait bool
	at   time.Time
}

// mockAudio records play/stop calls with timestamps.
type mockAudio struct {
	mu       sync.Mutex
	offsetMS int
	hasTrack bool
	plays    []playCall
	stops    int
}

func (m *mockAudio) Play(waitForStart bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasTrack {
		return false
	}
	m.plays = append(m.plays, playCall{waitForStart, time.Now()})
	return true
}

func (m *mockAudio) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockAudio) OffsetMS() int  { return m.offsetMS }
func (m *mockAudio) HasTrack() bool { return m.hasTrack }

func (m *mockAudio) playCalls() []playCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]playCall, len(m.plays))
	copy(out, m.plays)
	return out
}

func newTestAnimator(act *mockActuator) *Animator {
	a := NewAnimator(act)
	a.SetStepInterval(testStep)
	return a
}

func waitIdle(t *testing.T, a *Animator, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !a.IsAnimating() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("animator did not go idle within timeout")
}

func TestAnimator_BusyWhileRunning(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)
	audio := &mockAudio{hasTrack: true}
	a.SetAudio(audio)

	if err := a.StartKeyframes([]Keyframe{{Targets: map[int]int{0: 2000}, DurationMS: 200}}, false); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	time.Sleep(15 * time.Millisecond)

	// A busy failure must have zero side effects: no writes toward the
	// rejected target, no audio start.
	err := a.StartKeyframes([]Keyframe{{Targets: map[int]int{0: 900}, DurationMS: 50}}, true)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second start: got %v, want ErrBusy", err)
	}
	if err := a.StartPreset(); !errors.Is(err, ErrBusy) {
		t.Fatalf("preset start while busy: got %v, want ErrBusy", err)
	}

	a.Stop()
	waitIdle(t, a, time.Second)

	for _, c := range act.callsFor(0) {
		if c.pulse < 1500 || c.pulse > 2000 {
			t.Errorf("unexpected write %d outside running session's range", c.pulse)
		}
	}
	if got := len(audio.playCalls()); got != 0 {
		t.Errorf("audio started %d times, want 0", got)
	}
}

func TestAnimator_StopBeforePlayback_NoOp(t *testing.T) {
	a := newTestAnimator(newMockActuator())
	a.Stop()
	a.Stop()
	if a.IsAnimating() {
		t.Error("animator animating after stop with no session")
	}
}

func TestAnimator_StopHaltsWrites(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)

	if err := a.StartKeyframes([]Keyframe{{Targets: map[int]int{0: 2400}, DurationMS: 400}}, false); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	a.Stop()
	a.Stop() // idempotent
	waitIdle(t, a, time.Second)

	count := act.callCount()
	if count == 0 {
		t.Fatal("expected some writes before stop")
	}
	time.Sleep(4 * testStep)
	if after := act.callCount(); after != count {
		t.Errorf("writes continued after stop: %d -> %d", count, after)
	}

	// No snap to center: last commanded position is held.
	calls := act.callsFor(0)
	if last := calls[len(calls)-1].pulse; last == act.center && len(calls) > 1 {
		t.Errorf("position snapped back to center after stop")
	}
}

func TestAnimator_CompletesAtTarget(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)

	// withAudio with no audio engine attached is quietly ignored
	if err := a.PlayKeyframes([]Keyframe{{Targets: map[int]int{0: 2000}, DurationMS: 50}}, true); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	if a.IsAnimating() {
		t.Error("still animating after blocking play returned")
	}
	if got := act.GetPosition(0); got != 2000 {
		t.Errorf("final position: got %d, want 2000", got)
	}
}

func TestAnimator_TwoFrames_ThereAndBack(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)

	frames := []Keyframe{
		{Targets: map[int]int{0: 2000}, DurationMS: 100},
		{Targets: map[int]int{0: 1500}, DurationMS: 100},
	}
	if err := a.PlayKeyframes(frames, false); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	calls := act.callsFor(0)
	if len(calls) == 0 {
		t.Fatal("no writes recorded")
	}

	// Rises monotonically to the peak, then falls monotonically back.
	peak := 0
	for i, c := range calls {
		if c.pulse > calls[peak].pulse {
			peak = i
		}
	}
	if calls[peak].pulse != 2000 {
		t.Errorf("peak position: got %d, want 2000", calls[peak].pulse)
	}
	for i := 1; i <= peak; i++ {
		if calls[i].pulse < calls[i-1].pulse {
			t.Errorf("step %d: decreased during rising frame (%d -> %d)", i, calls[i-1].pulse, calls[i].pulse)
		}
	}
	for i := peak + 1; i < len(calls); i++ {
		if calls[i].pulse > calls[i-1].pulse {
			t.Errorf("step %d: increased during falling frame (%d -> %d)", i, calls[i-1].pulse, calls[i].pulse)
		}
	}
	if last := calls[len(calls)-1].pulse; last != 1500 {
		t.Errorf("final position: got %d, want 1500", last)
	}
}

func TestAnimator_PresetSweepsAndSkipsAudio(t *testing.T) {
	act := newMockActuator()
	// Narrow range keeps the preset short.
	act.min, act.center, act.max = 1400, 1500, 1600
	a := newTestAnimator(act)
	audio := &mockAudio{hasTrack: true}
	a.SetAudio(audio)

	if err := a.PlayPreset(); err != nil {
		t.Fatalf("preset failed: %v", err)
	}

	if got := len(audio.playCalls()); got != 0 {
		t.Errorf("preset started audio %d times, want 0", got)
	}

	ch0 := act.callsFor(0)
	ch1 := act.callsFor(1)
	if len(ch0) == 0 || len(ch1) == 0 {
		t.Fatal("preset did not touch both channels")
	}

	sawMax := false
	for _, c := range ch0 {
		if c.pulse == act.max {
			sawMax = true
		}
	}
	if !sawMax {
		t.Error("channel 0 never reached max during preset")
	}
	if last := ch0[len(ch0)-1].pulse; last != act.center {
		t.Errorf("channel 0 ended at %d, want center %d", last, act.center)
	}

	sawMin := false
	for _, c := range ch1 {
		if c.pulse == act.min {
			sawMin = true
		}
	}
	if !sawMin {
		t.Error("channel 1 never reached min during preset")
	}
	if last := ch1[len(ch1)-1].pulse; last != act.center {
		t.Errorf("channel 1 ended at %d, want center %d", last, act.center)
	}
}

func TestAnimator_PositiveOffset_AudioLeads(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)
	audio := &mockAudio{hasTrack: true, offsetMS: 60}
	a.SetAudio(audio)

	if err := a.PlayKeyframes([]Keyframe{{Targets: map[int]int{0: 1600}, DurationMS: 30}}, true); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	plays := audio.playCalls()
	if len(plays) != 1 {
		t.Fatalf("audio play calls: got %d, want 1", len(plays))
	}
	if !plays[0].wait {
		t.Error("positive offset must wait for audio start confirmation")
	}

	gap := act.firstCallAt().Sub(plays[0].at)
	if gap < 55*time.Millisecond {
		t.Errorf("servos started %v after audio, want >= ~60ms", gap)
	}
	if gap > 250*time.Millisecond {
		t.Errorf("servos lagged audio by %v, scheduler stalled", gap)
	}
}

func TestAnimator_NegativeOffset_ServosLead(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)
	audio := &mockAudio{hasTrack: true, offsetMS: -50}
	a.SetAudio(audio)

	if err := a.PlayKeyframes([]Keyframe{{Targets: map[int]int{0: 1600}, DurationMS: 150}}, true); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	plays := audio.playCalls()
	if len(plays) != 1 {
		t.Fatalf("audio play calls: got %d, want 1", len(plays))
	}
	if plays[0].wait {
		t.Error("deferred audio start must not block on confirmation")
	}

	gap := plays[0].at.Sub(act.firstCallAt())
	if gap < 40*time.Millisecond {
		t.Errorf("audio started %v after servos, want >= ~50ms", gap)
	}
	if gap > 200*time.Millisecond {
		t.Errorf("audio lagged servos by %v, timer drifted", gap)
	}
}

func TestAnimator_NegativeOffset_StopCancelsAudio(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)
	audio := &mockAudio{hasTrack: true, offsetMS: -150}
	a.SetAudio(audio)

	if err := a.StartKeyframes([]Keyframe{{Targets: map[int]int{0: 2400}, DurationMS: 500}}, true); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	a.Stop()
	waitIdle(t, a, time.Second)

	// Well past the point where the deferred start would have fired.
	time.Sleep(250 * time.Millisecond)
	if got := len(audio.playCalls()); got != 0 {
		t.Errorf("audio play calls after stop: got %d, want 0", got)
	}
	audio.mu.Lock()
	stops := audio.stops
	audio.mu.Unlock()
	if stops == 0 {
		t.Error("stop did not propagate to audio engine")
	}
}

func TestAnimator_SampleSaved(t *testing.T) {
	act := newMockActuator()
	a := newTestAnimator(act)

	saved := &Saved{
		DurationMS: 100,
		Curves: map[int]Curve{
			0: {{Time: 0, Pulse: 1000}, {Time: 100, Pulse: 2000}},
			1: {},
		},
	}

	frames := a.SampleSaved(saved, 50)
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want 3 (t=0,50,100)", len(frames))
	}
	for i, f := range frames {
		if f.DurationMS != 50 {
			t.Errorf("frame %d duration: got %d, want 50", i, f.DurationMS)
		}
		// Channel without curve data samples at its configured center.
		if f.Targets[1] != act.center {
			t.Errorf("frame %d channel 1: got %d, want center %d", i, f.Targets[1], act.center)
		}
	}
	if frames[0].Targets[0] != 1000 {
		t.Errorf("frame 0 channel 0: got %d, want 1000", frames[0].Targets[0])
	}
	if frames[1].Targets[0] != 1500 {
		t.Errorf("frame 1 channel 0: got %d, want 1500", frames[1].Targets[0])
	}
	if frames[2].Targets[0] != 2000 {
		t.Errorf("frame 2 channel 0: got %d, want 2000", frames[2].Targets[0])
	}
}
