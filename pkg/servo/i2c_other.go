//go:build !linux

package servo

import "fmt"

// OpenBus is only available on Linux (i2c-dev). Other platforms run in
// sim mode with a mock PWM output.
func OpenBus(device string, addr int) (Bus, error) {
	return nil, fmt.Errorf("i2c is not supported on this platform")
}
