// Package servo controls the rig's PWM servo channels: a register-level
// PCA9685 driver, per-servo persisted settings, and a position-tracking
// controller that the animation engine writes through.
package servo

import (
	"fmt"
	"sync"
	"time"

	"github.com/kristof/droid-rig/internal/log"
)

// PWM is the abstract pulse output that the Controller drives.
// Platform-specific implementations handle actual hardware control.
type PWM interface {
	// SetPulse sets the pulse width on a channel, in microseconds.
	SetPulse(channel, micros int) error
}

// Bus is byte-register access to a single I2C device.
type Bus interface {
	WriteReg(reg, value byte) error
	ReadReg(reg byte) (byte, error)
	Close() error
}

// PCA9685 registers.
const (
	regMode1    = 0x00
	regPrescale = 0xFE
	regLED0OnL  = 0x06
)

// PCA9685 drives the 16-channel PWM controller over I2C.
type PCA9685 struct {
	bus    Bus
	freq   int
	period int // PWM period in microseconds
}

// NewPCA9685 resets the controller and programs the PWM frequency.
// freq should be 50 for standard hobby servos.
func NewPCA9685(bus Bus, freq int) (*PCA9685, error) {
	d := &PCA9685{bus: bus}
	if err := d.bus.WriteReg(regMode1, 0x00); err != nil {
		return nil, fmt.Errorf("reset pca9685: %w", err)
	}
	if err := d.setFrequency(freq); err != nil {
		return nil, err
	}
	log.Info("pca9685 initialized", "freq_hz", freq)
	return d, nil
}

// setFrequency programs the prescale register. The oscillator runs at
// 25MHz against a 12-bit counter.
func (d *PCA9685) setFrequency(freq int) error {
	prescale := int(25000000.0/4096.0/float64(freq) - 1.0 + 0.5)

	oldmode, err := d.bus.ReadReg(regMode1)
	if err != nil {
		return fmt.Errorf("read mode1: %w", err)
	}

	sleepmode := (oldmode & 0x7F) | 0x10
	if err := d.bus.WriteReg(regMode1, sleepmode); err != nil {
		return fmt.Errorf("enter sleep: %w", err)
	}
	if err := d.bus.WriteReg(regPrescale, byte(prescale)); err != nil {
		return fmt.Errorf("set prescale: %w", err)
	}
	if err := d.bus.WriteReg(regMode1, oldmode); err != nil {
		return fmt.Errorf("leave sleep: %w", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := d.bus.WriteReg(regMode1, oldmode|0x80); err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	d.freq = freq
	d.period = 1000000 / freq
	return nil
}

// setPWM writes the on/off counts for one channel.
func (d *PCA9685) setPWM(channel, on, off int) error {
	base := byte(regLED0OnL + 4*channel)
	if err := d.bus.WriteReg(base, byte(on&0xFF)); err != nil {
		return err
	}
	if err := d.bus.WriteReg(base+1, byte(on>>8)); err != nil {
		return err
	}
	if err := d.bus.WriteReg(base+2, byte(off&0xFF)); err != nil {
		return err
	}
	return d.bus.WriteReg(base+3, byte(off>>8))
}

// SetPulse sets the servo pulse width on a channel in microseconds.
func (d *PCA9685) SetPulse(channel, micros int) error {
	if channel < 0 || channel > 15 {
		return fmt.Errorf("channel %d out of range 0-15", channel)
	}
	counts := micros * 4096 / d.period
	if err := d.setPWM(channel, 0, counts); err != nil {
		return fmt.Errorf("set pulse ch%d: %w", channel, err)
	}
	return nil
}

// Close releases the underlying bus.
func (d *PCA9685) Close() error {
	return d.bus.Close()
}

// MockPWM is an in-memory PWM implementation for tests and sim mode.
type MockPWM struct {
	mu         sync.Mutex
	pulses     map[int][]int
	failWrites bool
}

// NewMockPWM creates a mock PWM output.
func NewMockPWM() *MockPWM {
	return &MockPWM{pulses: make(map[int][]int)}
}

// FailWrites makes every subsequent SetPulse return an error while still
// recording the pulse.
func (m *MockPWM) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// SetPulse records the pulse.
func (m *MockPWM) SetPulse(channel, micros int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses[channel] = append(m.pulses[channel], micros)
	if m.failWrites {
		return fmt.Errorf("mock write failure ch%d", channel)
	}
	return nil
}

// Pulses returns all pulses recorded for a channel.
func (m *MockPWM) Pulses(channel int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.pulses[channel]))
	copy(out, m.pulses[channel])
	return out
}

// Last returns the most recent pulse for a channel, or -1 if none.
func (m *MockPWM) Last(channel int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pulses[channel]
	if len(p) == 0 {
		return -1
	}
	return p[len(p)-1]
}
