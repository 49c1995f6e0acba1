package file

import (
	"path/filepath"
	"strings"
)

// BaseName returns the file name of path without its final extension.
// e.g. "parcels.zip" -> "parcels".
func BaseName(path string) string {
	name := filepath.Base(path)
	lastDot := strings.LastIndex(name, ".")
	if lastDot <= 0 {
		return name
	}
	return name[:lastDot]
}

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, BaseName(path)+ext)
}
