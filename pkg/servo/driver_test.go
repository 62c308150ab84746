package servo

import (
	"testing"
)

// fakeBus is a register map standing in for the I2C device.
type fakeBus struct {
	regs   map[byte]byte
	closed bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: make(map[byte]byte)}
}

func (b *fakeBus) WriteReg(reg, value byte) error {
	b.regs[reg] = value
	return nil
}

func (b *fakeBus) ReadReg(reg byte) (byte, error) {
	return b.regs[reg], nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func TestPCA9685_InitProgramsPrescale(t *testing.T) {
	bus := newFakeBus()
	d, err := NewPCA9685(bus, 50)
	if err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}

	// 25MHz / 4096 / 50Hz - 1, rounded.
	if got := bus.regs[regPrescale]; got != 121 {
		t.Errorf("prescale: got %d, want 121", got)
	}
	if d.period != 20000 {
		t.Errorf("period: got %d, want 20000", d.period)
	}
	// Restart bit set on the way out of sleep.
	if bus.regs[regMode1]&0x80 == 0 {
		t.Error("restart bit not set after init")
	}
}

func TestPCA9685_SetPulse(t *testing.T) {
	bus := newFakeBus()
	d, err := NewPCA9685(bus, 50)
	if err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}

	if err := d.SetPulse(0, 1500); err != nil {
		t.Fatalf("SetPulse: %v", err)
	}
	// 1500us of a 20000us period in 4096 counts = 307.
	off := int(bus.regs[regLED0OnL+2]) | int(bus.regs[regLED0OnL+3])<<8
	if off != 307 {
		t.Errorf("off count: got %d, want 307", off)
	}
	on := int(bus.regs[regLED0OnL]) | int(bus.regs[regLED0OnL+1])<<8
	if on != 0 {
		t.Errorf("on count: got %d, want 0", on)
	}

	// Channel 3 lands at its own register block.
	if err := d.SetPulse(3, 2500); err != nil {
		t.Fatalf("SetPulse ch3: %v", err)
	}
	base := byte(regLED0OnL + 4*3)
	off3 := int(bus.regs[base+2]) | int(bus.regs[base+3])<<8
	if off3 != 512 {
		t.Errorf("ch3 off count: got %d, want 512", off3)
	}
}

func TestPCA9685_SetPulseRejectsBadChannel(t *testing.T) {
	d, err := NewPCA9685(newFakeBus(), 50)
	if err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}
	if err := d.SetPulse(-1, 1500); err == nil {
		t.Error("negative channel accepted")
	}
	if err := d.SetPulse(16, 1500); err == nil {
		t.Error("channel 16 accepted")
	}
}

func TestPCA9685_Close(t *testing.T) {
	bus := newFakeBus()
	d, err := NewPCA9685(bus, 50)
	if err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bus.closed {
		t.Error("bus not closed")
	}
}
