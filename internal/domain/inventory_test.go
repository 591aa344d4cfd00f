package domain

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected int64
		want     FileClass
	}{
		{"exact size", 1000, 1000, FileComplete},
		{"within threshold", 999, 1000, FileComplete},
		{"at threshold", 990, 1000, FileComplete},
		{"just below threshold", 989, 1000, FilePartial},
		{"partial", 400, 1000, FilePartial},
		{"empty file", 0, 1000, FileMissing},
		{"larger than expected", 1200, 1000, FileComplete},
		{"unknown expected size", 10, 0, FileComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.size, tt.expected); got != tt.want {
				t.Errorf("Classify(%d, %d) = %v, want %v", tt.size, tt.expected, got, tt.want)
			}
		})
	}
}

func TestNewInventoryEntry(t *testing.T) {
	e := NewInventoryEntry("b.mkv", "/data/b.mkv", 400, 1000)
	if e.Class != FilePartial || !e.CanResume || !e.Exists {
		t.Errorf("entry = %+v, want resumable partial", e)
	}

	e = NewInventoryEntry("a.mkv", "/data/a.mkv", 999, 1000)
	if e.Class != FileComplete || e.CanResume {
		t.Errorf("entry = %+v, want complete", e)
	}

	m := MissingEntry("c.mkv", 500)
	if m.Exists || m.Class != FileMissing || m.CanResume {
		t.Errorf("missing entry = %+v", m)
	}
}
