package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kristof/droid-rig/internal/log"
)

// DurationMS returns the duration of an audio file in milliseconds, or 0
// if it cannot be determined.
func DurationMS(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wavDurationMS(path)
	case ".mp3":
		if ms := ffprobeDurationMS(path); ms > 0 {
			return ms
		}
		return estimateMP3DurationMS(path)
	default:
		return ffprobeDurationMS(path)
	}
}

// ffprobeDurationMS shells out to ffprobe for formats we cannot parse.
func ffprobeDurationMS(path string) int {
	out, err := exec.Command("ffprobe", "-v", "quiet",
		"-show_entries", "format=duration", "-of", "csv=p=0", path).Output()
	if err != nil {
		return 0
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return int(sec * 1000)
}

// estimateMP3DurationMS guesses duration from file size assuming
// ~128kbps. Last resort when ffprobe is unavailable.
func estimateMP3DurationMS(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	// 128 kbps = 16000 bytes per second
	return int(info.Size() * 1000 / 16000)
}

// wavFormat is the parsed header of a PCM WAV file.
type wavFormat struct {
	channels   int
	sampleRate int
	bitsPerSmp int
	data       []byte
}

// parseWAV reads the fmt and data chunks of a RIFF/WAVE file.
func parseWAV(path string) (*wavFormat, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV file")
	}

	f := &wavFormat{}
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("short fmt chunk")
			}
			f.channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			f.sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			f.bitsPerSmp = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			f.data = raw[body : body+size]
		}
		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if f.sampleRate == 0 || f.channels == 0 || f.bitsPerSmp == 0 {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	return f, nil
}

// wavDurationMS computes duration from the WAV header.
func wavDurationMS(path string) int {
	f, err := parseWAV(path)
	if err != nil {
		log.Debug("wav parse failed", "file", filepath.Base(path), "err", err)
		return 0
	}
	bytesPerFrame := f.channels * f.bitsPerSmp / 8
	if bytesPerFrame == 0 {
		return 0
	}
	frames := len(f.data) / bytesPerFrame
	return frames * 1000 / f.sampleRate
}

// Waveform returns numSamples normalized peak amplitudes (0..1) for
// visualization. WAV files are analyzed directly; other formats fall
// back to a placeholder pattern so the UI still shows that audio exists.
func Waveform(path string, numSamples int) []float64 {
	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		if wf := wavWaveform(path, numSamples); len(wf) > 0 {
			return wf
		}
	}
	return placeholderWaveform(numSamples)
}

// wavWaveform extracts peak amplitudes from a PCM WAV file.
func wavWaveform(path string, numSamples int) []float64 {
	f, err := parseWAV(path)
	if err != nil || len(f.data) == 0 {
		return nil
	}

	var samples []float64
	var maxVal float64
	switch f.bitsPerSmp {
	case 8:
		maxVal = 255
		samples = make([]float64, len(f.data))
		for i, b := range f.data {
			samples[i] = float64(b)
		}
	case 16:
		maxVal = 32767
		n := len(f.data) / 2
		samples = make([]float64, n)
		for i := 0; i < n; i++ {
			samples[i] = float64(int16(binary.LittleEndian.Uint16(f.data[i*2:])))
		}
	case 32:
		maxVal = 2147483647
		n := len(f.data) / 4
		samples = make([]float64, n)
		for i := 0; i < n; i++ {
			samples[i] = float64(int32(binary.LittleEndian.Uint32(f.data[i*4:])))
		}
	default:
		return nil
	}

	// Mix to mono
	if f.channels == 2 {
		mono := make([]float64, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2
		}
		samples = mono
	}

	return normalizeSamples(samples, numSamples, maxVal)
}

// normalizeSamples downsamples to numSamples chunk peaks in 0..1.
func normalizeSamples(samples []float64, numSamples int, maxVal float64) []float64 {
	if len(samples) == 0 || maxVal <= 0 {
		return nil
	}
	chunk := len(samples) / numSamples
	if chunk < 1 {
		chunk = 1
	}

	var out []float64
	for i := 0; i < len(samples); i += chunk {
		end := i + chunk
		if end > len(samples) {
			end = len(samples)
		}
		peak := 0.0
		for _, s := range samples[i:end] {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		out = append(out, peak/maxVal)
		if len(out) == numSamples {
			break
		}
	}
	return out
}

// placeholderWaveform generates a gentle synthetic pattern for files we
// cannot analyze.
func placeholderWaveform(numSamples int) []float64 {
	out := make([]float64, numSamples)
	for i := range out {
		t := float64(i) / float64(numSamples)
		v := 0.3 + 0.2*math.Sin(t*math.Pi*8)
		v += 0.1 * math.Sin(t*math.Pi*23)
		v += 0.05 * math.Sin(t*math.Pi*47)
		out[i] = math.Max(0.1, math.Min(0.7, v))
	}
	return out
}
