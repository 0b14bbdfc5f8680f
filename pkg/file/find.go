package file

import (
	"os"
	"path/filepath"
	"sort"
)

// FindByExt returns regular files directly under dir whose extension matches ext.
// Matching is case-insensitive and the result is sorted by name.
func FindByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if HasExt(entry.Name(), ext) {
			found = append(found, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(found)
	return found, nil
}
