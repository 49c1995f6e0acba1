package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor unpacks one archive into a flat directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Unzip shells out to the system unzip utility. Member paths are junked so
// shapefile side-cars (.shx, .dbf, .prj) land next to their .shp regardless
// of how the archive was laid out.
type Unzip struct {
	bin string
}

func NewUnzip(bin string) Unzip {
	if bin == "" {
		bin = "unzip"
	}
	return Unzip{bin: bin}
}

func (u Unzip) Extract(ctx context.Context, archivePath, destDir string) error {
	cmdPath, err := exec.LookPath(u.bin)
	if err != nil {
		return fmt.Errorf("unzip binary not found: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, "-o", "-j", archivePath, "-d", destDir)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return fmt.Errorf("failed to extract %s: %s", filepath.Base(archivePath), diag)
	}
	return nil
}

// FindShapefiles lists the .shp members of dir in lexical order, so member
// indexes (and the table suffixes derived from them) are deterministic.
func FindShapefiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var shapefiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".shp") {
			shapefiles = append(shapefiles, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(shapefiles)
	return shapefiles, nil
}
