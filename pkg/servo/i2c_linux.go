//go:build linux

package servo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the Linux i2c-dev ioctl to bind a file descriptor to a
// device address.
const i2cSlave = 0x0703

// devBus is a Bus over a Linux /dev/i2c-* device node.
type devBus struct {
	f    *os.File
	addr int
}

// OpenBus opens a Linux I2C device node bound to the given address.
func OpenBus(device string, addr int) (Bus, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		f.Close()
		return nil, fmt.Errorf("bind i2c address 0x%02x: %w", addr, err)
	}
	return &devBus{f: f, addr: addr}, nil
}

func (b *devBus) WriteReg(reg, value byte) error {
	if _, err := b.f.Write([]byte{reg, value}); err != nil {
		return fmt.Errorf("i2c write reg 0x%02x: %w", reg, err)
	}
	return nil
}

func (b *devBus) ReadReg(reg byte) (byte, error) {
	if _, err := b.f.Write([]byte{reg}); err != nil {
		return 0, fmt.Errorf("i2c select reg 0x%02x: %w", reg, err)
	}
	buf := make([]byte, 1)
	if _, err := b.f.Read(buf); err != nil {
		return 0, fmt.Errorf("i2c read reg 0x%02x: %w", reg, err)
	}
	return buf[0], nil
}

func (b *devBus) Close() error {
	return b.f.Close()
}
