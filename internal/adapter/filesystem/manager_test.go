package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

func TestNewManager_CreatesRoots(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(map[string]string{
		"movie":  filepath.Join(base, "movies"),
		"Series": filepath.Join(base, "tv"),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	root, err := m.Resolve("movie")
	if err != nil {
		t.Fatalf("Resolve(movie) error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root %s not created: %v", root, err)
	}

	if _, err := m.Resolve(" SERIES "); err != nil {
		t.Errorf("Resolve should be case-insensitive: %v", err)
	}

	got := m.Categories()
	if len(got) != 2 || got[0] != "movie" || got[1] != "series" {
		t.Errorf("Categories() = %v", got)
	}
}

func TestResolve_Unknown(t *testing.T) {
	m, err := NewManager(map[string]string{"movie": t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Resolve("podcast")
	if !errors.Is(err, domain.ErrUnknownCategory) {
		t.Errorf("Resolve(podcast) error = %v, want ErrUnknownCategory", err)
	}
}

func TestNewManager_RejectsEmpty(t *testing.T) {
	if _, err := NewManager(map[string]string{"movie": " "}); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestEnsureDirAndDiskUsage(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(map[string]string{"movie": base})
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(base, "a", "b", "file.mkv")
	if err := m.EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Errorf("parent not created: %v", err)
	}

	usage, err := m.DiskUsage(base)
	if err != nil {
		t.Fatalf("DiskUsage() error = %v", err)
	}
	if usage.Total == 0 {
		t.Error("expected non-zero total")
	}
	if usage.UsedPct < 0 || usage.UsedPct > 100 {
		t.Errorf("UsedPct = %v out of range", usage.UsedPct)
	}
}
