package vo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

// FileSize is a size in bytes parsed from a human readable string.
type FileSize struct {
	bytes int64
}

const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([KMGT]?B)$`)

// ParseFileSize parses sizes as reported by torrent indexers ("1.5 GB", "700MB").
// Units are binary: 1 KB is 1024 bytes. Anything unparseable is zero.
func ParseFileSize(s string) FileSize {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return FileSize{}
	}
	unit := strings.ToUpper(m[2])
	if unit != "B" {
		// humanize treats "GB" as SI; "GiB" gives the binary multiple.
		unit = unit[:1] + "iB"
	}
	n, err := humanize.ParseBytes(m[1] + " " + unit)
	if err != nil {
		return FileSize{}
	}
	return FileSize{bytes: int64(n)}
}

// Bytes returns the size in bytes.
func (fs FileSize) Bytes() int64 {
	return fs.bytes
}

// String returns a human-readable string representation.
func (fs FileSize) String() string {
	return humanize.IBytes(uint64(fs.bytes))
}

// FormatSpeed renders a bytes-per-second rate for logs
func FormatSpeed(bytesPerSecond int64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return fmt.Sprintf("%s/s", humanize.IBytes(uint64(bytesPerSecond)))
}
