package animation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Annotation is a timed text marker on a saved animation's timeline.
type Annotation struct {
	Time int    `json:"time"`
	Text string `json:"text"`
}

// Saved is a persisted animation: per-channel curves plus metadata.
type Saved struct {
	Name        string        `json:"name"`
	DurationMS  int           `json:"duration_ms"`
	Curves      map[int]Curve `json:"-"`
	Annotations []Annotation  `json:"annotations"`
	AudioFile   string        `json:"audio_file,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

// savedFile is the on-disk shape: curve keys are strings in JSON.
type savedFile struct {
	Name        string           `json:"name"`
	DurationMS  int              `json:"duration_ms"`
	Curves      map[string]Curve `json:"curves"`
	Annotations []Annotation     `json:"annotations"`
	AudioFile   string           `json:"audio_file,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// Meta is the listing entry for a saved animation.
type Meta struct {
	Filename   string `json:"filename"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	AudioFile  string `json:"audio_file,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	NumCurves  int    `json:"num_curves"`
}

// Store manages saved animations as JSON files in a directory.
type Store struct {
	dir string
}

// NewStore creates the store, making the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create animation dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	dashRuns    = regexp.MustCompile(`[-\s]+`)
)

// sanitizeName converts an animation name into a safe filename stem.
func sanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(strings.ToLower(name), "")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")
	if safe == "" {
		return "untitled"
	}
	return safe
}

func (s *Store) filepath(name string) string {
	return filepath.Join(s.dir, sanitizeName(name)+".json")
}

// Save writes an animation to disk and returns the filename stem.
func (s *Store) Save(anim *Saved) (string, error) {
	now := time.Now().Format(time.RFC3339)
	anim.UpdatedAt = now
	if anim.CreatedAt == "" {
		anim.CreatedAt = now
	}

	f := savedFile{
		Name:        anim.Name,
		DurationMS:  anim.DurationMS,
		Curves:      make(map[string]Curve, len(anim.Curves)),
		Annotations: anim.Annotations,
		AudioFile:   anim.AudioFile,
		CreatedAt:   anim.CreatedAt,
		UpdatedAt:   anim.UpdatedAt,
	}
	for ch, c := range anim.Curves {
		f.Curves[strconv.Itoa(ch)] = c
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode animation: %w", err)
	}
	path := s.filepath(anim.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write animation: %w", err)
	}
	return strings.TrimSuffix(filepath.Base(path), ".json"), nil
}

// Load loads an animation by name, trying the sanitized filename first
// and falling back to a case-insensitive stem match.
func (s *Store) Load(name string) (*Saved, error) {
	path := s.filepath(name)
	if _, err := os.Stat(path); err != nil {
		match, ok := s.findByStem(name)
		if !ok {
			return nil, os.ErrNotExist
		}
		path = match
	}
	return s.loadPath(path)
}

// LoadByFilename loads an animation by its file name, with or without
// the .json extension.
func (s *Store) LoadByFilename(filename string) (*Saved, error) {
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}
	return s.loadPath(filepath.Join(s.dir, filepath.Base(filename)))
}

func (s *Store) loadPath(path string) (*Saved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f savedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse animation %s: %w", filepath.Base(path), err)
	}

	anim := &Saved{
		Name:        f.Name,
		DurationMS:  f.DurationMS,
		Curves:      make(map[int]Curve, len(f.Curves)),
		Annotations: f.Annotations,
		AudioFile:   f.AudioFile,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if anim.Name == "" {
		anim.Name = "Untitled"
	}
	for k, c := range f.Curves {
		ch, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		anim.Curves[ch] = c
	}
	return anim, nil
}

// Delete removes an animation by name. Returns false if not found.
func (s *Store) Delete(name string) bool {
	path := s.filepath(name)
	if _, err := os.Stat(path); err != nil {
		match, ok := s.findByStem(name)
		if !ok {
			return false
		}
		path = match
	}
	return os.Remove(path) == nil
}

// findByStem looks for a file whose stem matches name case-insensitively.
func (s *Store) findByStem(name string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".json")
		if strings.EqualFold(stem, name) {
			return filepath.Join(s.dir, e.Name()), true
		}
	}
	return "", false
}

// List returns metadata for all saved animations, newest first.
func (s *Store) List() []Meta {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var out []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		anim, err := s.loadPath(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, Meta{
			Filename:   strings.TrimSuffix(e.Name(), ".json"),
			Name:       anim.Name,
			DurationMS: anim.DurationMS,
			AudioFile:  anim.AudioFile,
			CreatedAt:  anim.CreatedAt,
			UpdatedAt:  anim.UpdatedAt,
			NumCurves:  len(anim.Curves),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}

// Exists reports whether an animation with the given name is saved.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.filepath(name))
	return err == nil
}
