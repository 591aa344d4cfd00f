package port

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// PathResolver maps a content category to its destination root
type PathResolver interface {
	// Resolve returns domain.ErrUnknownCategory for unmapped categories
	Resolve(category string) (string, error)

	// Categories lists every configured category
	Categories() []string
}

// DiskUsageProvider reports usage of the filesystem holding path
type DiskUsageProvider interface {
	DiskUsage(path string) (*DiskUsage, error)
}
