package vo

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath     = errors.New("file path cannot be empty")
	ErrEmptyFileName = errors.New("file name is empty after cleaning")
)

// illegalNameChars are stripped from every remote file name before it touches disk
const illegalNameChars = `<>:"/\|?*`

// CleanFileName is the single name transform shared by the write path and
// the inventory scanner: it strips characters that are illegal on common
// filesystems, lowercases and trims the result.
func CleanFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalNameChars, r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(strings.ToLower(cleaned))
}

// SameFile reports whether a name found on disk corresponds to an expected
// remote name, either verbatim or after cleaning both sides.
func SameFile(onDisk, expected string) bool {
	return onDisk == expected || CleanFileName(onDisk) == CleanFileName(expected)
}

// FilePath is a destination path for one remote file
type FilePath struct {
	value string
}

// DestinationPath joins root with the cleaned form of filename
func DestinationPath(root, filename string) (FilePath, error) {
	if root == "" {
		return FilePath{}, ErrEmptyPath
	}
	name := CleanFileName(filename)
	if name == "" || name == "." || name == ".." {
		return FilePath{}, ErrEmptyFileName
	}
	return FilePath{value: filepath.Join(root, name)}, nil
}

// String returns the string representation of the path.
func (fp FilePath) String() string {
	return fp.value
}
