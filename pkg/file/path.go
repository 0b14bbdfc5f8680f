package file

import (
	"path/filepath"
	"strings"
)

// NormalizeExt lower-cases ext and makes sure it starts with a dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func HasExt(path, ext string) bool {
	want := NormalizeExt(ext)
	if want == "" {
		return false
	}
	return strings.ToLower(filepath.Ext(path)) == want
}
