package domain

// CompletenessThreshold is the fraction of the expected size a local file
// must reach to count as complete. Providers report sizes that differ
// slightly from what ends up on disk.
const CompletenessThreshold = 0.99

// FileClass classifies a local file against its expected size
type FileClass string

// File classifications
const (
	FileComplete FileClass = "complete"
	FilePartial  FileClass = "partial"
	FileMissing  FileClass = "missing"
)

// InventoryEntry describes what is already on disk for one expected file
type InventoryEntry struct {
	Filename     string
	ExpectedSize int64
	Exists       bool
	Path         string
	Size         int64
	Class        FileClass
	CanResume    bool
}

// Classify returns the classification of a file of size bytes that
// should be expected bytes long.
func Classify(size, expected int64) FileClass {
	threshold := float64(expected) * CompletenessThreshold
	switch {
	case float64(size) >= threshold:
		return FileComplete
	case size > 0:
		return FilePartial
	default:
		return FileMissing
	}
}

// NewInventoryEntry builds an entry for a file found on disk
func NewInventoryEntry(filename, path string, size, expected int64) InventoryEntry {
	class := Classify(size, expected)
	return InventoryEntry{
		Filename:     filename,
		ExpectedSize: expected,
		Exists:       true,
		Path:         path,
		Size:         size,
		Class:        class,
		CanResume:    class == FilePartial && expected > 0,
	}
}

// MissingEntry builds an entry for a file that is not on disk
func MissingEntry(filename string, expected int64) InventoryEntry {
	return InventoryEntry{
		Filename:     filename,
		ExpectedSize: expected,
		Class:        FileMissing,
	}
}
