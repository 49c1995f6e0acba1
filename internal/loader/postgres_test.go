package loader

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

type fakeTableLoader struct {
	calls []struct {
		conn, path, table string
	}
	err error
}

func (f *fakeTableLoader) LoadPostgres(_ context.Context, connString, geojsonPath, table string) error {
	f.calls = append(f.calls, struct{ conn, path, table string }{connString, geojsonPath, table})
	return f.err
}

type fakeRow struct {
	count int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.count
	return nil
}

type fakeDB struct {
	pingErr error
	counts  []int64
	queries []string
	closed  bool
}

func (d *fakeDB) Ping(context.Context) error { return d.pingErr }

func (d *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	d.queries = append(d.queries, sql)
	count := int64(0)
	if len(d.counts) > 0 {
		count = d.counts[0]
		d.counts = d.counts[1:]
	}
	return fakeRow{count: count}
}

func (d *fakeDB) Close(context.Context) error {
	d.closed = true
	return nil
}

func validTarget() jobs.PostgresTarget {
	return jobs.PostgresTarget{
		Host:     "db.example.com",
		Port:     5433,
		Database: "gis",
		User:     "loader",
		Password: "secret",
		Table:    "parcels",
	}
}

func TestPostgresLoader_SingleMember(t *testing.T) {
	dir := t.TempDir()
	member := writeMember(t, dir, "m.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"Alpha"}}
		]
	}`)

	tables := &fakeTableLoader{}
	db := &fakeDB{counts: []int64{7}}
	l := NewPostgresLoader(tables, WithConnect(func(_ context.Context, dsn string) (DB, error) {
		assert.Contains(t, dsn, "host=db.example.com")
		assert.Contains(t, dsn, "port=5433")
		assert.Contains(t, dsn, "dbname=gis")
		return db, nil
	}))

	var logged []string
	result, err := l.Load(context.Background(), validTarget(), []string{member}, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"parcels"}, result.Tables)
	assert.Equal(t, []int64{7}, result.Rows)
	require.Len(t, tables.calls, 1)
	assert.Contains(t, tables.calls[0].conn, "PG:host=db.example.com")
	assert.Equal(t, "parcels", tables.calls[0].table)
	require.Len(t, db.queries, 1)
	assert.Equal(t, `SELECT count(*) FROM "parcels"`, db.queries[0])
	assert.True(t, db.closed)
	require.Len(t, logged, 1)
	assert.Equal(t, "Created table parcels with 7 rows", logged[0])
	require.NotNil(t, result.Preview)
	assert.Len(t, result.Preview.Features, 1)
}

func TestPostgresLoader_MultipleMembersGetSuffixes(t *testing.T) {
	dir := t.TempDir()
	fc := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`
	a := writeMember(t, dir, "a.geojson", fc)
	b := writeMember(t, dir, "b.geojson", fc)

	tables := &fakeTableLoader{}
	l := NewPostgresLoader(tables, WithConnect(func(context.Context, string) (DB, error) {
		return &fakeDB{counts: []int64{1, 1}}, nil
	}))

	result, err := l.Load(context.Background(), validTarget(), []string{a, b}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"parcels_1", "parcels_2"}, result.Tables)
}

func TestPostgresLoader_DefaultPort(t *testing.T) {
	dir := t.TempDir()
	fc := `{"type":"FeatureCollection","features":[]}`
	member := writeMember(t, dir, "m.geojson", fc)

	target := validTarget()
	target.Port = 0
	l := NewPostgresLoader(&fakeTableLoader{}, WithConnect(func(_ context.Context, dsn string) (DB, error) {
		assert.Contains(t, dsn, "port=5432")
		return &fakeDB{}, nil
	}))

	_, err := l.Load(context.Background(), target, []string{member}, nil)
	require.NoError(t, err)
}

func TestPostgresLoader_ValidatesBeforeConnecting(t *testing.T) {
	connected := false
	l := NewPostgresLoader(&fakeTableLoader{}, WithConnect(func(context.Context, string) (DB, error) {
		connected = true
		return &fakeDB{}, nil
	}))

	cases := []struct {
		name   string
		mutate func(*jobs.PostgresTarget)
		want   string
	}{
		{"missing host", func(t *jobs.PostgresTarget) { t.Host = "" }, "host"},
		{"missing database", func(t *jobs.PostgresTarget) { t.Database = "" }, "database"},
		{"missing user", func(t *jobs.PostgresTarget) { t.User = "" }, "user"},
		{"missing password", func(t *jobs.PostgresTarget) { t.Password = "" }, "password"},
		{"missing table", func(t *jobs.PostgresTarget) { t.Table = "" }, "table"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := validTarget()
			tc.mutate(&target)
			_, err := l.Load(context.Background(), target, []string{"unused"}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.False(t, connected)
		})
	}
}

func TestPostgresLoader_PingFailureAborts(t *testing.T) {
	tables := &fakeTableLoader{}
	l := NewPostgresLoader(tables, WithConnect(func(context.Context, string) (DB, error) {
		return &fakeDB{pingErr: fmt.Errorf("connection refused")}, nil
	}))

	_, err := l.Load(context.Background(), validTarget(), []string{"unused"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection check failed")
	assert.Empty(t, tables.calls)
}

func TestPostgresLoader_PreviewBounded(t *testing.T) {
	dir := t.TempDir()
	features := ""
	for i := 0; i < 10; i++ {
		if i > 0 {
			features += ","
		}
		features += `{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}`
	}
	member := writeMember(t, dir, "m.geojson", `{"type":"FeatureCollection","features":[`+features+`]}`)

	l := NewPostgresLoader(&fakeTableLoader{},
		WithConnect(func(context.Context, string) (DB, error) { return &fakeDB{}, nil }),
		WithPreviewRows(3))

	result, err := l.Load(context.Background(), validTarget(), []string{member}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Preview.Features, 3)
}

func TestPostgresLoader_LoadFailureSurfaced(t *testing.T) {
	dir := t.TempDir()
	member := writeMember(t, dir, "m.geojson", `{"type":"FeatureCollection","features":[]}`)

	tables := &fakeTableLoader{err: fmt.Errorf("ogr2ogr failed for %s: boom", member)}
	l := NewPostgresLoader(tables, WithConnect(func(context.Context, string) (DB, error) {
		return &fakeDB{}, nil
	}))

	_, err := l.Load(context.Background(), validTarget(), []string{member}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ogr2ogr failed")
}
