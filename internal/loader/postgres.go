package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/shubhampathak24/shape-to-bq/internal/gdal"
	"github.com/shubhampathak24/shape-to-bq/internal/geometry"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

const defaultPreviewRows = 50

// DB is the slice of pgx used for preflight and verification, extracted so
// tests can supply a fake connection.
type DB interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

type ConnectFunc func(ctx context.Context, dsn string) (DB, error)

func pgxConnect(ctx context.Context, dsn string) (DB, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PostgresLoader creates one table per converted member via ogr2ogr and
// verifies each load with a row count over a direct connection.
type PostgresLoader struct {
	tables      gdal.TableLoader
	connect     ConnectFunc
	previewRows int
}

type PostgresOption func(*PostgresLoader)

// WithConnect replaces the pgx connection factory.
func WithConnect(connect ConnectFunc) PostgresOption {
	return func(l *PostgresLoader) {
		l.connect = connect
	}
}

func WithPreviewRows(n int) PostgresOption {
	return func(l *PostgresLoader) {
		l.previewRows = n
	}
}

func NewPostgresLoader(tables gdal.TableLoader, opts ...PostgresOption) *PostgresLoader {
	l := &PostgresLoader{
		tables:      tables,
		connect:     pgxConnect,
		previewRows: defaultPreviewRows,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PostgresResult reports the created tables and a bounded sample of the
// first member's features for immediate caller feedback.
type PostgresResult struct {
	Tables  []string
	Rows    []int64
	Preview *geometry.FeatureCollection
}

func validatePostgresTarget(t jobs.PostgresTarget) error {
	switch {
	case t.Host == "":
		return fmt.Errorf("postgres destination requires host")
	case t.Database == "":
		return fmt.Errorf("postgres destination requires database")
	case t.User == "":
		return fmt.Errorf("postgres destination requires user")
	case t.Password == "":
		return fmt.Errorf("postgres destination requires password")
	case t.Table == "":
		return fmt.Errorf("postgres destination requires table name")
	}
	return nil
}

// Load creates or overwrites one table per member. A single member uses the
// base name unchanged; multiple members get a numeric suffix. logf receives
// per-table progress lines for the job log.
func (l *PostgresLoader) Load(ctx context.Context, target jobs.PostgresTarget, memberPaths []string, logf func(format string, args ...any)) (*PostgresResult, error) {
	if err := validatePostgresTarget(target); err != nil {
		return nil, err
	}
	if len(memberPaths) == 0 {
		return nil, fmt.Errorf("no converted members to load")
	}
	port := target.Port
	if port == 0 {
		port = 5432
	}

	ogrConn := fmt.Sprintf("PG:host=%s port=%d dbname=%s user=%s password=%s",
		target.Host, port, target.Database, target.User, target.Password)
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		target.Host, port, target.Database, target.User, target.Password)

	db, err := l.connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres at %s: %w", target.Host, err)
	}
	defer db.Close(ctx)
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres connection check failed: %w", err)
	}

	result := &PostgresResult{}
	for i, path := range memberPaths {
		table := target.Table
		if len(memberPaths) > 1 {
			table = fmt.Sprintf("%s_%d", target.Table, i+1)
		}
		if err := l.tables.LoadPostgres(ctx, ogrConn, path, table); err != nil {
			return nil, err
		}

		var count int64
		quoted := pgx.Identifier{table}.Sanitize()
		if err := db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoted)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to verify table %s: %w", table, err)
		}
		if logf != nil {
			logf("Created table %s with %d rows", table, count)
		}
		result.Tables = append(result.Tables, table)
		result.Rows = append(result.Rows, count)
	}

	preview, err := l.samplePreview(memberPaths[0])
	if err != nil {
		return nil, err
	}
	result.Preview = preview
	return result, nil
}

func (l *PostgresLoader) samplePreview(path string) (*geometry.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read member for preview: %w", err)
	}
	var fc geometry.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse member for preview: %w", err)
	}
	if len(fc.Features) > l.previewRows {
		fc.Features = fc.Features[:l.previewRows]
	}
	return geometry.NewFeatureCollection(fc.Features), nil
}
