package gdal

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

// Converter turns one shapefile into one GeoJSON feature collection file.
// The stock implementation shells out to ogr2ogr; tests substitute fakes.
type Converter interface {
	Convert(ctx context.Context, shpPath, outPath string) error
}

// TableLoader loads one GeoJSON file into one relational table.
type TableLoader interface {
	LoadPostgres(ctx context.Context, connString, geojsonPath, table string) error
}

type Ogr2ogr struct {
	bin string
}

func NewOgr2ogr(bin string) Ogr2ogr {
	if bin == "" {
		bin = "ogr2ogr"
	}
	return Ogr2ogr{bin: bin}
}

// Convert reprojects shpPath to EPSG:4326, normalizes polygon winding order
// and repairs invalid geometries while writing GeoJSON to outPath.
func (o Ogr2ogr) Convert(ctx context.Context, shpPath, outPath string) error {
	return o.run(ctx, shpPath, o.convertArgs(shpPath, outPath))
}

// LoadPostgres loads geojsonPath into table, overwriting it when it already
// exists. The geometry column is named geom and a GIST spatial index is
// requested at creation.
func (o Ogr2ogr) LoadPostgres(ctx context.Context, connString, geojsonPath, table string) error {
	return o.run(ctx, geojsonPath, o.postgresArgs(connString, geojsonPath, table))
}

func (o Ogr2ogr) run(ctx context.Context, input string, args []string) error {
	cmdPath, err := exec.LookPath(o.bin)
	if err != nil {
		return fmt.Errorf("ogr2ogr binary not found: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Stderr = &stderr

	log.Debug("Running %s %s", cmdPath, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return fmt.Errorf("ogr2ogr failed for %s: %s", input, diag)
	}
	return nil
}

func (Ogr2ogr) convertArgs(shpPath, outPath string) []string {
	return []string{
		"-f", "GeoJSON",
		"-t_srs", "EPSG:4326",
		"-lco", "RFC7946=YES", // enforce correct polygon winding order
		"-makevalid", // repair invalid geometries
		outPath,
		shpPath,
	}
}

func (Ogr2ogr) postgresArgs(connString, geojsonPath, table string) []string {
	return []string{
		"-f", "PostgreSQL",
		connString,
		geojsonPath,
		"-nln", table,
		"-overwrite",
		"-lco", "GEOMETRY_NAME=geom",
		"-lco", "SPATIAL_INDEX=GIST",
	}
}
