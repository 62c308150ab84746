// Package audio plays the rig's soundtrack through an external player
// process (aplay, mpg123 or ffplay) and manages the uploaded audio files
// and the sync offset the animation engine reads.
package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kristof/droid-rig/internal/log"
	"github.com/kristof/droid-rig/pkg/servo"
)

// startTimeout bounds how long Play(waitForStart) blocks for the
// external process to confirm it has launched.
const startTimeout = time.Second

// allowedExtensions are the audio formats accepted for upload.
var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".ogg": true, ".flac": true,
}

// FileInfo describes one stored audio file.
type FileInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	DurationMS int    `json:"duration_ms"`
}

// Player runs audio playback as an external process. The selected track
// and the sync offset persist in the servo configuration store so they
// survive restarts.
type Player struct {
	dir   string
	store *servo.Store

	// execCommand builds the player process; tests replace it.
	execCommand func(name string, args ...string) *exec.Cmd

	mu      sync.Mutex
	playing bool
	cmd     *exec.Cmd
}

// NewPlayer creates a player storing uploads under dir.
func NewPlayer(dir string, store *servo.Store) (*Player, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	p := &Player{dir: dir, store: store, execCommand: exec.Command}
	if name := store.CurrentAudio(); name != "" {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			log.Info("restored audio track", "file", name)
		} else {
			store.SetCurrentAudio("")
		}
	}
	return p, nil
}

// Dir returns the audio storage directory.
func (p *Player) Dir() string {
	return p.dir
}

// HasTrack reports whether a playable track is selected.
func (p *Player) HasTrack() bool {
	return p.currentPath() != ""
}

// CurrentFile returns the selected track's filename, or empty.
func (p *Player) CurrentFile() string {
	if p.currentPath() == "" {
		return ""
	}
	return p.store.CurrentAudio()
}

// currentPath returns the full path of the selected track if it exists.
func (p *Player) currentPath() string {
	name := p.store.CurrentAudio()
	if name == "" {
		return ""
	}
	path := filepath.Join(p.dir, name)
	if _, err := os.Stat(path); err != nil {
		p.store.SetCurrentAudio("")
		return ""
	}
	return path
}

// SetCurrent selects a stored file for playback.
func (p *Player) SetCurrent(name string) error {
	if _, err := os.Stat(filepath.Join(p.dir, filepath.Base(name))); err != nil {
		return fmt.Errorf("audio file not found: %s", name)
	}
	p.store.SetCurrentAudio(filepath.Base(name))
	return nil
}

// Clear stops playback and deselects the current track.
func (p *Player) Clear() {
	p.Stop()
	p.store.SetCurrentAudio("")
}

// OffsetMS returns the sync offset in milliseconds; positive means audio
// leads the servos.
func (p *Player) OffsetMS() int {
	return p.store.AudioOffsetMS()
}

// SetOffsetMS sets the sync offset, clamped to [-500, 1000].
func (p *Player) SetOffsetMS(ms int) {
	p.store.SetAudioOffsetMS(ms)
}

// IsPlaying reports whether playback is in flight.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// playerCommand picks the external player for a file.
func (p *Player) playerCommand(path string) *exec.Cmd {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		// Lower buffer for less latency
		return p.execCommand("aplay", "--buffer-size=2048", path)
	case ".mp3":
		return p.execCommand("mpg123", "-q", "--buffer", "1024", path)
	default:
		return p.execCommand("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path)
	}
}

// Play starts playing the selected track in an external process.
// Returns false immediately if no track is selected or playback is
// already running. With waitForStart it blocks, bounded by a one second
// timeout, until the process has been confirmed started; on timeout it
// returns anyway so the caller's timeline never stalls indefinitely.
func (p *Player) Play(waitForStart bool) bool {
	path := p.currentPath()
	if path == "" {
		return false
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return false
	}
	p.playing = true
	p.mu.Unlock()

	started := make(chan struct{})

	go func() {
		defer func() {
			p.mu.Lock()
			p.playing = false
			p.cmd = nil
			p.mu.Unlock()
		}()

		cmd := p.playerCommand(path)
		if err := cmd.Start(); err != nil {
			// External failure is absorbed: report and unblock any waiter.
			log.Error("audio playback failed to start", "file", filepath.Base(path), "err", err)
			close(started)
			return
		}

		p.mu.Lock()
		p.cmd = cmd
		p.mu.Unlock()
		close(started)

		if err := cmd.Wait(); err != nil {
			log.Debug("audio process exited", "err", err)
		}
	}()

	if waitForStart {
		select {
		case <-started:
		case <-time.After(startTimeout):
			log.Warn("audio start confirmation timed out", "file", filepath.Base(path))
		}
	}

	return true
}

// Stop terminates any in-flight playback. Idempotent. The process gets
// SIGTERM, then SIGKILL if it lingers past a second.
func (p *Player) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.playing = false
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	proc := cmd.Process
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return
	}
	go func() {
		time.Sleep(time.Second)
		proc.Kill()
	}()
}

// SaveUpload stores uploaded audio bytes under a sanitized, unique
// filename and returns the name used.
func (p *Player) SaveUpload(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported audio format: %s", ext)
	}

	safe := sanitizeFilename(filepath.Base(filename))
	path := filepath.Join(p.dir, safe)

	base := strings.TrimSuffix(safe, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(p.dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return filepath.Base(path), nil
}

// List returns all stored audio files with their durations.
func (p *Player) List() []FileInfo {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || !allowedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(p.dir, e.Name())
		out = append(out, FileInfo{
			Name:       e.Name(),
			Path:       path,
			DurationMS: DurationMS(path),
		})
	}
	return out
}

// sanitizeFilename keeps only alphanumerics, dots, underscores and dashes.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "audio"
	}
	return b.String()
}
