package transfer

import (
	"github.com/vertextoedge/debrid-sync/internal/port"
)

// SpaceManager handles space availability checks before a transfer batch
type SpaceManager struct {
	usage        port.DiskUsageProvider
	reserveBytes int64
}

// Ensure SpaceManager implements port.SpaceChecker
var _ port.SpaceChecker = (*SpaceManager)(nil)

// NewSpaceManager creates a new SpaceManager that keeps reserveBytes free
func NewSpaceManager(usage port.DiskUsageProvider, reserveBytes int64) *SpaceManager {
	if reserveBytes < 0 {
		reserveBytes = 0
	}
	return &SpaceManager{
		usage:        usage,
		reserveBytes: reserveBytes,
	}
}

// CheckSpace checks if needed bytes fit under dir while keeping the reserve free
func (sm *SpaceManager) CheckSpace(dir string, needed int64) (*port.SpaceCheckResult, error) {
	result := &port.SpaceCheckResult{
		RequiredBytes: needed,
		ReserveBytes:  sm.reserveBytes,
	}

	usage, err := sm.usage.DiskUsage(dir)
	if err != nil {
		return nil, err
	}
	result.DiskUsedPct = usage.UsedPct
	result.AvailableBytes = int64(usage.Free)

	if needed <= 0 {
		result.HasSpace = true
		return result, nil
	}

	result.HasSpace = result.AvailableBytes-sm.reserveBytes >= needed
	return result, nil
}

// HasSpace returns true if needed bytes fit under dir
func (sm *SpaceManager) HasSpace(dir string, needed int64) (bool, error) {
	result, err := sm.CheckSpace(dir, needed)
	if err != nil {
		return false, err
	}
	return result.HasSpace, nil
}
