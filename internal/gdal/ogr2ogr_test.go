package gdal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOgr2ogr_ConvertArgs(t *testing.T) {
	o := NewOgr2ogr("")
	args := o.convertArgs("/tmp/in.shp", "/tmp/out.geojson")
	assert.Equal(t, []string{
		"-f", "GeoJSON",
		"-t_srs", "EPSG:4326",
		"-lco", "RFC7946=YES",
		"-makevalid",
		"/tmp/out.geojson",
		"/tmp/in.shp",
	}, args)
}

func TestOgr2ogr_PostgresArgs(t *testing.T) {
	o := NewOgr2ogr("")
	args := o.postgresArgs("PG:host=db dbname=gis", "/tmp/member.geojson", "parcels_1")
	assert.Equal(t, []string{
		"-f", "PostgreSQL",
		"PG:host=db dbname=gis",
		"/tmp/member.geojson",
		"-nln", "parcels_1",
		"-overwrite",
		"-lco", "GEOMETRY_NAME=geom",
		"-lco", "SPATIAL_INDEX=GIST",
	}, args)
}

func TestOgr2ogr_MissingBinary(t *testing.T) {
	o := NewOgr2ogr("definitely-not-ogr2ogr-xyz")
	err := o.Convert(context.Background(), "/tmp/in.shp", "/tmp/out.geojson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ogr2ogr binary not found")
}
