// Package config provides configuration defaults and helpers for droid-rig commands.
package config

import (
	"os"
	"strconv"
)

// PCA9685 hardware defaults.
const (
	DefaultI2CAddress = 0x40
	DefaultI2CBus     = "/dev/i2c-1"
	PWMFrequency      = 50 // Hz, standard for hobby servos
)

// Servo pulse range in microseconds.
const (
	MinPulse    = 800
	MaxPulse    = 2500
	CenterPulse = 1500
)

// Animation timing defaults.
const (
	SweepStep        = 20 // pulse increment per sweep tick
	StepIntervalMS   = 20 // ms between animation steps
	SampleIntervalMS = 50 // ms between saved-animation curve samples
)

// Audio sync defaults. The offset is clamped to [MinAudioOffsetMS, MaxAudioOffsetMS].
const (
	DefaultAudioOffsetMS = 150
	MinAudioOffsetMS     = -500
	MaxAudioOffsetMS     = 1000
)

// Web server defaults.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = "5000"
)

// Port returns the server port from the DROIDRIG_PORT env var.
// Falls back to the provided default if not set.
func Port(defaultPort string) string {
	if p := os.Getenv("DROIDRIG_PORT"); p != "" {
		return p
	}
	return defaultPort
}

// DataDir returns the data directory from the DROIDRIG_DATA env var.
// Falls back to the provided default if not set.
func DataDir(defaultDir string) string {
	if d := os.Getenv("DROIDRIG_DATA"); d != "" {
		return d
	}
	return defaultDir
}

// EnvInt returns an integer env var value, or the default if unset or malformed.
func EnvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
