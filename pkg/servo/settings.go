package servo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kristof/droid-rig/internal/config"
)

// defaultColors is the palette assigned to servos that have no explicit color.
var defaultColors = []string{
	"#3b9eff", "#ff9f43", "#26de81", "#a55eea",
	"#fed330", "#fd79a8", "#0abde3", "#ff6b6b",
	"#2ed573", "#70a1ff", "#ffa502", "#ff4757",
	"#1dd1a1", "#5f27cd", "#ff9ff3", "#54a0ff",
}

// DefaultColor returns the palette color for a servo index.
func DefaultColor(index int) string {
	return defaultColors[index%len(defaultColors)]
}

// Settings holds the configuration for a single servo channel.
type Settings struct {
	Name        string `json:"name"`
	MinPulse    int    `json:"min_pulse"`
	MaxPulse    int    `json:"max_pulse"`
	CenterPulse int    `json:"center_pulse"`
	Color       string `json:"color"` // empty means use the palette color for the index
}

// DefaultSettings returns the default configuration for a channel.
func DefaultSettings(channel int) Settings {
	return Settings{
		Name:        fmt.Sprintf("Servo %d", channel),
		MinPulse:    config.MinPulse,
		MaxPulse:    config.MaxPulse,
		CenterPulse: config.CenterPulse,
	}
}

// Store manages persistent rig configuration: per-servo settings,
// the audio sync offset and the currently selected audio file.
// All accessors are safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	path          string
	numServos     int
	servos        map[int]Settings
	audioOffsetMS int
	currentAudio  string
}

// storeFile is the on-disk JSON shape. Channel keys are strings because
// JSON object keys always are.
type storeFile struct {
	NumServos        int                 `json:"num_servos"`
	Servos           map[string]Settings `json:"servos"`
	AudioOffsetMS    int                 `json:"audio_offset_ms"`
	CurrentAudioFile string              `json:"current_audio_file"`
}

// NewStore creates a store with defaults, not yet backed by a file.
func NewStore(numServos int) *Store {
	s := &Store{
		numServos:     clampServoCount(numServos),
		servos:        make(map[int]Settings),
		audioOffsetMS: config.DefaultAudioOffsetMS,
	}
	s.fillDefaultsLocked()
	return s
}

// LoadStore loads configuration from a JSON file. A missing file yields
// a store with defaults bound to that path.
func LoadStore(path string) (*Store, error) {
	s := NewStore(2)
	s.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	s.numServos = clampServoCount(f.NumServos)
	s.servos = make(map[int]Settings)
	for k, v := range f.Servos {
		ch, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		s.servos[ch] = v
	}
	s.audioOffsetMS = clampOffset(f.AudioOffsetMS)
	s.currentAudio = f.CurrentAudioFile
	s.fillDefaultsLocked()
	return s, nil
}

// Save writes the configuration to its backing file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("no config path set")
	}

	f := storeFile{
		NumServos:        s.numServos,
		Servos:           make(map[string]Settings, len(s.servos)),
		AudioOffsetMS:    s.audioOffsetMS,
		CurrentAudioFile: s.currentAudio,
	}
	for ch, v := range s.servos {
		f.Servos[strconv.Itoa(ch)] = v
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// NumServos returns the configured servo count.
func (s *Store) NumServos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numServos
}

// SetNumServos changes the servo count, clamped to [1, 16]. Settings for
// new channels are created with defaults; settings beyond the new count
// are dropped.
func (s *Store) SetNumServos(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.numServos = clampServoCount(count)
	s.fillDefaultsLocked()
	for ch := range s.servos {
		if ch >= s.numServos {
			delete(s.servos, ch)
		}
	}
}

// Servo returns the settings for a channel, creating defaults if needed.
func (s *Store) Servo(channel int) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.servos[channel]
	if !ok {
		st = DefaultSettings(channel)
		s.servos[channel] = st
	}
	return st
}

// SetServo replaces the settings for a channel.
func (s *Store) SetServo(channel int, st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servos[channel] = st
}

// AudioOffsetMS returns the audio sync offset in milliseconds.
// Positive means audio leads the servos.
func (s *Store) AudioOffsetMS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOffsetMS
}

// SetAudioOffsetMS sets the audio sync offset, clamped to [-500, 1000].
func (s *Store) SetAudioOffsetMS(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOffsetMS = clampOffset(offset)
}

// CurrentAudio returns the filename of the selected audio track, or empty.
func (s *Store) CurrentAudio() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAudio
}

// SetCurrentAudio records the selected audio track filename.
func (s *Store) SetCurrentAudio(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAudio = name
}

func (s *Store) fillDefaultsLocked() {
	for i := 0; i < s.numServos; i++ {
		if _, ok := s.servos[i]; !ok {
			s.servos[i] = DefaultSettings(i)
		}
	}
}

func clampServoCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}

func clampOffset(ms int) int {
	if ms < config.MinAudioOffsetMS {
		return config.MinAudioOffsetMS
	}
	if ms > config.MaxAudioOffsetMS {
		return config.MaxAudioOffsetMS
	}
	return ms
}
