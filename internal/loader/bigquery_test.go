package loader

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

func writeMember(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestMergeNDJSON_UnionSchemaFirstSeenOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeMember(t, dir, "a.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"Alpha","zone":"A"}}
		]
	}`)
	b := writeMember(t, dir, "b.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"zone":"B","area":12.5}}
		]
	}`)

	out := filepath.Join(dir, "merged.ndjson")
	result, err := MergeNDJSON([]string{a, b}, out, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Features)
	assert.Equal(t, 0, result.Dropped)

	names := make([]string, 0, len(result.Schema))
	for _, f := range result.Schema {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "zone", "area", "geometry"}, names)
	for _, f := range result.Schema[:len(result.Schema)-1] {
		assert.Equal(t, jobs.FieldString, f.Type)
		assert.Equal(t, jobs.ModeNullable, f.Mode)
	}
	last := result.Schema[len(result.Schema)-1]
	assert.Equal(t, jobs.FieldGeography, last.Type)

	lines := readLines(t, out)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"name":"Alpha","zone":"A","geometry":"POINT(1 2)"}`, lines[0])
	assert.JSONEq(t, `{"zone":"B","area":12.5,"geometry":"POINT(3 4)"}`, lines[1])
}

func TestMergeNDJSON_PropertyKeyOrderPreserved(t *testing.T) {
	dir := t.TempDir()
	member := writeMember(t, dir, "m.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"z_last":"1","a_first":"2","m_mid":"3"}}
		]
	}`)

	out := filepath.Join(dir, "merged.ndjson")
	result, err := MergeNDJSON([]string{member}, out, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Schema))
	for _, f := range result.Schema {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"z_last", "a_first", "m_mid", "geometry"}, names)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, `{"z_last":"1","a_first":"2","m_mid":"3","geometry":"POINT(0 0)"}`, lines[0])
}

func TestMergeNDJSON_DropsFeaturesWithoutGeometry(t *testing.T) {
	dir := t.TempDir()
	member := writeMember(t, dir, "m.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{"name":"kept"}},
			{"type":"Feature","geometry":{"type":"GeometryCollection","geometries":[]},"properties":{"name":"dropped"}},
			{"type":"Feature","properties":{"name":"no geometry at all","orphan_key":"x"}}
		]
	}`)

	out := filepath.Join(dir, "merged.ndjson")
	result, err := MergeNDJSON([]string{member}, out, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Features)
	assert.Equal(t, 2, result.Dropped)
	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"name":"kept"`)

	// Dropped features still contribute their property keys to the schema.
	names := make([]string, 0, len(result.Schema))
	for _, f := range result.Schema {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "orphan_key", "geometry"}, names)
}

func TestMergeNDJSON_CustomSchemaPassthrough(t *testing.T) {
	dir := t.TempDir()
	member := writeMember(t, dir, "m.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{"population":1234}}
		]
	}`)

	custom := []jobs.SchemaField{
		{Name: "population", Type: jobs.FieldInteger, Mode: jobs.ModeNullable},
		{Name: "geometry", Type: jobs.FieldGeography, Mode: jobs.ModeRequired},
	}
	out := filepath.Join(dir, "merged.ndjson")
	result, err := MergeNDJSON([]string{member}, out, custom)
	require.NoError(t, err)
	assert.Equal(t, custom, result.Schema)
}

func TestMergeNDJSON_UnreadableMember(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "merged.ndjson")
	_, err := MergeNDJSON([]string{filepath.Join(dir, "missing.geojson")}, out, nil)
	require.Error(t, err)
	assert.NoFileExists(t, out)
}
