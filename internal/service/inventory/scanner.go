package inventory

import (
	"errors"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/domain/vo"
)

// Scanner compares the files already present under a destination root with
// the files a remote job produced.
type Scanner struct {
	logger *zap.Logger
}

// New creates a new Scanner
func New(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

type localFile struct {
	name string
	path string
	size int64
}

// Scan classifies every expected file against what is on disk under dir,
// keyed by the expected (remote) filename. A missing dir yields an
// all-missing inventory; nothing is created.
func (s *Scanner) Scan(dir string, expected []domain.RemoteFile) (map[string]domain.InventoryEntry, error) {
	found, err := s.listFiles(dir)
	if err != nil {
		return nil, err
	}

	result := make(map[string]domain.InventoryEntry, len(expected))
	for _, file := range expected {
		match, ok := bestMatch(found, file.Filename)
		if !ok {
			result[file.Filename] = domain.MissingEntry(file.Filename, file.Size)
			continue
		}
		result[file.Filename] = domain.NewInventoryEntry(file.Filename, match.path, match.size, file.Size)
	}

	s.logger.Debug("inventory scanned",
		zap.String("dir", dir),
		zap.Int("on_disk", len(found)),
		zap.Int("expected", len(expected)))

	return result, nil
}

// listFiles walks dir recursively. Unreadable subtrees are skipped.
func (s *Scanner) listFiles(dir string) ([]localFile, error) {
	var files []localFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			s.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, localFile{name: d.Name(), path: path, size: info.Size()})
		return nil
	})

	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return files, nil
}

// bestMatch prefers an exact name match, then the largest sanitized match.
func bestMatch(files []localFile, expected string) (localFile, bool) {
	var best localFile
	var ok bool
	for _, f := range files {
		if f.name == expected {
			return f, true
		}
		if vo.SameFile(f.name, expected) && (!ok || f.size > best.size) {
			best, ok = f, true
		}
	}
	return best, ok
}
