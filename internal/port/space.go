package port

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace       bool
	RequiredBytes  int64
	ReserveBytes   int64
	AvailableBytes int64
	DiskUsedPct    float64
}

// SpaceChecker decides whether a batch fits on the destination disk
type SpaceChecker interface {
	// CheckSpace checks whether needed bytes fit under dir, keeping the reserve free
	CheckSpace(dir string, needed int64) (*SpaceCheckResult, error)
}
