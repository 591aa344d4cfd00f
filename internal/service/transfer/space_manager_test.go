package transfer

import (
	"errors"
	"testing"

	"github.com/vertextoedge/debrid-sync/internal/port"
)

// mockDiskUsage implements port.DiskUsageProvider for testing
type mockDiskUsage struct {
	usage   *port.DiskUsage
	err     error
	gotPath string
}

func (m *mockDiskUsage) DiskUsage(path string) (*port.DiskUsage, error) {
	m.gotPath = path
	return m.usage, m.err
}

const gib = 1024 * 1024 * 1024

func TestSpaceManager_CheckSpace(t *testing.T) {
	tests := []struct {
		name         string
		reserve      int64
		free         uint64
		needed       int64
		wantHasSpace bool
	}{
		{
			name:         "has space - well under limits",
			reserve:      1 * gib,
			free:         600 * gib,
			needed:       10 * gib,
			wantHasSpace: true,
		},
		{
			name:         "eats into reserve",
			reserve:      2 * gib,
			free:         11 * gib,
			needed:       10 * gib,
			wantHasSpace: false,
		},
		{
			name:         "exactly at reserve - still ok",
			reserve:      1 * gib,
			free:         11 * gib,
			needed:       10 * gib,
			wantHasSpace: true,
		},
		{
			name:         "nothing needed",
			reserve:      100 * gib,
			free:         1,
			needed:       0,
			wantHasSpace: true,
		},
		{
			name:         "negative reserve treated as zero",
			reserve:      -5,
			free:         10,
			needed:       10,
			wantHasSpace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := &mockDiskUsage{usage: &port.DiskUsage{Total: 1000 * gib, Free: tt.free, UsedPct: 40}}
			sm := NewSpaceManager(usage, tt.reserve)

			result, err := sm.CheckSpace("/data/movies", tt.needed)
			if err != nil {
				t.Fatalf("CheckSpace() error = %v", err)
			}
			if result.HasSpace != tt.wantHasSpace {
				t.Errorf("HasSpace = %v, want %v", result.HasSpace, tt.wantHasSpace)
			}
			if result.RequiredBytes != tt.needed {
				t.Errorf("RequiredBytes = %d, want %d", result.RequiredBytes, tt.needed)
			}
			if result.DiskUsedPct != 40 {
				t.Errorf("DiskUsedPct = %v, want 40", result.DiskUsedPct)
			}
			if usage.gotPath != "/data/movies" {
				t.Errorf("usage queried for %q", usage.gotPath)
			}
		})
	}
}

func TestSpaceManager_Error(t *testing.T) {
	sm := NewSpaceManager(&mockDiskUsage{err: errors.New("statfs failed")}, 0)

	if _, err := sm.CheckSpace("/x", 1); err == nil {
		t.Error("expected error")
	}
	ok, err := sm.HasSpace("/x", 1)
	if err == nil || ok {
		t.Errorf("HasSpace() = %v, %v; want false, error", ok, err)
	}
}
