package upload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/labellerr/labellerr-go/config"
)

// FolderScan is the outcome of walking a local folder: the uploadable file
// paths for the requested data type plus their count and cumulative size.
type FolderScan struct {
	Paths     []string
	FileCount int
	TotalSize int64
}

// ScanFolder walks folderPath recursively and collects files whose extension
// matches the data type. When includePatterns is non-empty, a file must also
// match at least one doublestar glob pattern (relative to folderPath).
// The returned paths are sorted so batch planning is deterministic.
func ScanFolder(folderPath string, dataType config.DataType, includePatterns []string) (FolderScan, error) {
	info, err := os.Stat(folderPath)
	if err != nil {
		return FolderScan{}, fmt.Errorf("folder path %s: %w", folderPath, err)
	}
	if !info.IsDir() {
		return FolderScan{}, fmt.Errorf("path is not a directory: %s", folderPath)
	}

	extensions, ok := config.FileExtensions[dataType]
	if !ok {
		return FolderScan{}, fmt.Errorf("unsupported data type: %s", dataType)
	}

	var scan FolderScan
	err = filepath.WalkDir(folderPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !hasExtension(path, extensions) {
			return nil
		}
		if len(includePatterns) > 0 {
			relative, err := filepath.Rel(folderPath, path)
			if err != nil {
				return err
			}
			if !matchesAny(relative, includePatterns) {
				return nil
			}
		}

		fileInfo, err := entry.Info()
		if err != nil {
			return err
		}
		scan.Paths = append(scan.Paths, path)
		scan.FileCount++
		scan.TotalSize += fileInfo.Size()
		return nil
	})
	if err != nil {
		return FolderScan{}, fmt.Errorf("scan folder %s: %w", folderPath, err)
	}

	sort.Strings(scan.Paths)
	return scan, nil
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func matchesAny(relativePath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, filepath.ToSlash(relativePath)); err == nil && ok {
			return true
		}
	}
	return false
}
