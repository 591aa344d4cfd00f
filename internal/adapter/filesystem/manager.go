package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/disk"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/port"
)

// Manager maps content categories onto local destination roots
type Manager struct {
	roots map[string]string
}

// Ensure Manager implements the filesystem ports
var (
	_ port.PathResolver      = (*Manager)(nil)
	_ port.DiskUsageProvider = (*Manager)(nil)
)

// NewManager creates a manager for the given category -> directory map.
// Every root is made absolute and created if missing.
func NewManager(paths map[string]string) (*Manager, error) {
	roots := make(map[string]string, len(paths))
	for category, dir := range paths {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" || strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("invalid path mapping %q -> %q", category, dir)
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s root: %w", category, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s root: %w", category, err)
		}
		roots[category] = abs
	}

	return &Manager{roots: roots}, nil
}

// Resolve returns the destination root of a category
func (m *Manager) Resolve(category string) (string, error) {
	root, ok := m.roots[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	return root, nil
}

// Categories returns the configured categories in sorted order
func (m *Manager) Categories() []string {
	categories := make([]string, 0, len(m.roots))
	for c := range m.roots {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0755)
}

// DiskUsage returns usage of the filesystem holding path
func (m *Manager) DiskUsage(path string) (*port.DiskUsage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	return &port.DiskUsage{
		Total:   stat.Total,
		Used:    stat.Used,
		Free:    stat.Free,
		UsedPct: stat.UsedPercent,
	}, nil
}
