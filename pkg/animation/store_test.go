package animation

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	s := newTestStore(t)

	anim := &Saved{
		Name:       "Head Bob",
		DurationMS: 4000,
		Curves: map[int]Curve{
			0: {{Time: 0, Pulse: 1500}, {Time: 2000, Pulse: 2200}},
			3: {{Time: 0, Pulse: 1000}},
		},
		Annotations: []Annotation{{Time: 1200, Text: "beat drop"}},
		AudioFile:   "theme.wav",
	}

	filename, err := s.Save(anim)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filename != "head-bob" {
		t.Errorf("filename: got %q, want %q", filename, "head-bob")
	}
	if anim.CreatedAt == "" || anim.UpdatedAt == "" {
		t.Error("timestamps not set on save")
	}

	got, err := s.Load("Head Bob")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "Head Bob" || got.DurationMS != 4000 {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if len(got.Curves) != 2 {
		t.Fatalf("curves: got %d, want 2", len(got.Curves))
	}
	if got.Curves[0][1].Pulse != 2200 {
		t.Errorf("curve point lost: %+v", got.Curves[0])
	}
	if got.AudioFile != "theme.wav" {
		t.Errorf("audio file: got %q", got.AudioFile)
	}
	if len(got.Annotations) != 1 || got.Annotations[0].Text != "beat drop" {
		t.Errorf("annotations: %+v", got.Annotations)
	}
}

func TestStore_SavePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)

	anim := &Saved{Name: "wave", DurationMS: 1000, CreatedAt: "2024-01-01T00:00:00Z"}
	if _, err := s.Save(anim); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("wave")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("created_at overwritten: %q", got.CreatedAt)
	}
	if got.UpdatedAt == got.CreatedAt {
		t.Error("updated_at not refreshed")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Head Bob", "head-bob"},
		{"  spaces  and   runs ", "spaces-and-runs"},
		// path traversal characters are stripped entirely
		{"slash/../../etc", "slashetc"},
	}

	for _, c := range cases {
		if got := sanitizeName(c.in); got != c.want {
			t.Errorf("sanitizeName(%q): got %q, want %q", c.in, got, c.want)
		}
	}

	if got := sanitizeName("///"); got != "untitled" {
		t.Errorf("all-unsafe name: got %q, want untitled", got)
	}
	if got := sanitizeName(""); got != "untitled" {
		t.Errorf("empty name: got %q, want untitled", got)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("nope"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing load: got %v, want os.ErrNotExist", err)
	}
}

func TestStore_LoadByFilename(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(&Saved{Name: "blink", DurationMS: 300}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, name := range []string{"blink", "blink.json"} {
		got, err := s.LoadByFilename(name)
		if err != nil {
			t.Fatalf("LoadByFilename(%q): %v", name, err)
		}
		if got.Name != "blink" {
			t.Errorf("LoadByFilename(%q): got name %q", name, got.Name)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(&Saved{Name: "gone", DurationMS: 100}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists("gone") {
		t.Fatal("saved animation not found")
	}
	if !s.Delete("gone") {
		t.Error("Delete returned false for existing animation")
	}
	if s.Exists("gone") {
		t.Error("animation still exists after delete")
	}
	if s.Delete("gone") {
		t.Error("Delete returned true for missing animation")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)

	// Distinct UpdatedAt values, written out of order.
	older := &Saved{Name: "older", DurationMS: 100}
	newer := &Saved{Name: "newer", DurationMS: 200}
	if _, err := s.Save(older); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save(newer); err != nil {
		t.Fatalf("Save: %v", err)
	}
	newer.UpdatedAt = "2099-01-01T00:00:00Z"
	rewriteTimestamp(t, s, newer)

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("list: got %d entries, want 2", len(list))
	}
	if list[0].Name != "newer" {
		t.Errorf("first entry: got %q, want newer", list[0].Name)
	}
	if list[0].NumCurves != 0 {
		t.Errorf("num_curves: got %d, want 0", list[0].NumCurves)
	}
}

// rewriteTimestamp forces a known UpdatedAt on disk, bypassing Save's
// refresh, so ordering is deterministic.
func rewriteTimestamp(t *testing.T, s *Store, anim *Saved) {
	t.Helper()
	path := s.filepath(anim.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var f savedFile
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	f.UpdatedAt = anim.UpdatedAt
	out, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
