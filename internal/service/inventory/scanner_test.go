package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

func writeSized(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_Classification(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, filepath.Join(dir, "a.mkv"), 999)
	writeSized(t, filepath.Join(dir, "b.mkv"), 400)
	writeSized(t, filepath.Join(dir, "nested", "show s01e01.mkv"), 500)
	writeSized(t, filepath.Join(dir, "empty.srt"), 0)

	expected := []domain.RemoteFile{
		{Filename: "a.mkv", Size: 1000},
		{Filename: "b.mkv", Size: 1000},
		{Filename: "Show: S01E01?.mkv", Size: 500},
		{Filename: "c.mkv", Size: 1000},
		{Filename: "empty.srt", Size: 100},
	}

	got, err := New(zap.NewNop()).Scan(dir, expected)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	tests := []struct {
		name      string
		class     domain.FileClass
		exists    bool
		size      int64
		canResume bool
	}{
		{"a.mkv", domain.FileComplete, true, 999, false},
		{"b.mkv", domain.FilePartial, true, 400, true},
		{"Show: S01E01?.mkv", domain.FileComplete, true, 500, false},
		{"c.mkv", domain.FileMissing, false, 0, false},
		{"empty.srt", domain.FileMissing, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := got[tt.name]
			if !ok {
				t.Fatalf("no entry for %s", tt.name)
			}
			if entry.Class != tt.class {
				t.Errorf("Class = %s, want %s", entry.Class, tt.class)
			}
			if entry.Exists != tt.exists {
				t.Errorf("Exists = %v, want %v", entry.Exists, tt.exists)
			}
			if entry.Size != tt.size {
				t.Errorf("Size = %d, want %d", entry.Size, tt.size)
			}
			if entry.CanResume != tt.canResume {
				t.Errorf("CanResume = %v, want %v", entry.CanResume, tt.canResume)
			}
		})
	}
}

func TestScan_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")

	got, err := New(zap.NewNop()).Scan(dir, []domain.RemoteFile{
		{Filename: "a.mkv", Size: 10},
		{Filename: "b.mkv", Size: 20},
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for name, entry := range got {
		if entry.Class != domain.FileMissing || entry.Exists {
			t.Errorf("%s: got %+v, want missing", name, entry)
		}
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Scan must not create the directory")
	}
}

func TestScan_PrefersExactName(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, filepath.Join(dir, "Movie.mkv"), 100)
	writeSized(t, filepath.Join(dir, "sub", "movie.mkv"), 50)

	got, err := New(zap.NewNop()).Scan(dir, []domain.RemoteFile{{Filename: "Movie.mkv", Size: 100}})
	if err != nil {
		t.Fatal(err)
	}
	if got["Movie.mkv"].Path != filepath.Join(dir, "Movie.mkv") {
		t.Errorf("Path = %s, want exact match", got["Movie.mkv"].Path)
	}
}
