package file

import (
	"os"
	"path/filepath"
	"time"
)

// FindDirsOlderThan returns the immediate subdirectories of root whose
// modification time is before cutoff. Root itself is never returned.
func FindDirsOlderThan(root string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, filepath.Join(root, entry.Name()))
		}
	}
	return stale, nil
}
