package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shubhampathak24/shape-to-bq/internal/archive"
	"github.com/shubhampathak24/shape-to-bq/internal/gdal"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
	"github.com/shubhampathak24/shape-to-bq/internal/loader"
	"github.com/shubhampathak24/shape-to-bq/pkg/file"
	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

// ErrRetryUnsupported is returned for every retry request. The source
// payload is not retained after submission, so a retry cannot be replayed.
var ErrRetryUnsupported = errors.New("retry is not supported: the original upload is not retained")

// ObjectStore is the slice of the GCS client the pipeline needs.
type ObjectStore interface {
	Download(ctx context.Context, bucket, object, destPath string) error
	Upload(ctx context.Context, bucket, object, srcPath string) (string, error)
}

// Warehouse submits NDJSON load jobs.
type Warehouse interface {
	InsertLoadJob(ctx context.Context, target jobs.BigQueryTarget, sourceURI string, schema []jobs.SchemaField) (string, error)
}

// LoadMonitor waits for a submitted load job to reach a terminal state.
type LoadMonitor interface {
	Wait(ctx context.Context, projectID, jobID string, logf func(format string, args ...any)) error
}

// RelationalLoader persists converted members into relational tables.
type RelationalLoader interface {
	Load(ctx context.Context, target jobs.PostgresTarget, memberPaths []string, logf func(format string, args ...any)) (*loader.PostgresResult, error)
}

// JobService orchestrates the ingestion pipeline: source acquisition,
// extraction, conversion fan-out, destination load and, for warehouse
// destinations, load-job monitoring. All job mutation goes through the
// store; pipeline components only return values.
type JobService struct {
	store         *jobs.Store
	extractor     archive.Extractor
	converter     gdal.Converter
	objects       ObjectStore
	warehouse     Warehouse
	monitor       LoadMonitor
	relational    RelationalLoader
	scratchDir    string
	stagingBucket string
}

type Option func(*JobService)

// WithStagingBucket sets the default GCS bucket for staging merged NDJSON
// when the request does not name one.
func WithStagingBucket(bucket string) Option {
	return func(s *JobService) {
		s.stagingBucket = bucket
	}
}

func WithScratchDir(dir string) Option {
	return func(s *JobService) {
		s.scratchDir = dir
	}
}

func NewJobService(
	store *jobs.Store,
	extractor archive.Extractor,
	converter gdal.Converter,
	objects ObjectStore,
	warehouse Warehouse,
	monitor LoadMonitor,
	relational RelationalLoader,
	opts ...Option,
) *JobService {
	s := &JobService{
		store:      store,
		extractor:  extractor,
		converter:  converter,
		objects:    objects,
		warehouse:  warehouse,
		monitor:    monitor,
		relational: relational,
		scratchDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest carries everything needed to start a job. Schema is
// optional: when empty the warehouse schema is auto-detected during merge.
type SubmitRequest struct {
	Source      jobs.Source
	Destination jobs.Destination
	Schema      []jobs.SchemaField
	CallerID    string
}

// Submit validates the request, registers a pending job and launches the
// pipeline asynchronously. Malformed requests are rejected here, before any
// asynchronous work starts.
func (s *JobService) Submit(req SubmitRequest) (*jobs.Job, error) {
	if err := s.validateSource(req.Source); err != nil {
		return nil, err
	}
	if err := s.normalizeDestination(&req.Destination); err != nil {
		return nil, err
	}

	job := s.store.Create(req.Source, req.Destination, req.Schema, req.CallerID)
	log.Info("Accepted job %s (%s -> %s)", job.ID, req.Source.Type, req.Destination.Kind)

	go s.run(job.ID, req)
	return job, nil
}

func (s *JobService) validateSource(src jobs.Source) error {
	switch src.Type {
	case jobs.SourceLocal:
		if src.FilePath == "" {
			return fmt.Errorf("local source requires an uploaded file")
		}
		if _, err := os.Stat(src.FilePath); err != nil {
			return fmt.Errorf("uploaded file is not readable: %w", err)
		}
	case jobs.SourceGCS:
		if src.Bucket == "" || src.Object == "" {
			return fmt.Errorf("gcs source requires bucket and path")
		}
	default:
		return fmt.Errorf("unknown source type %q", src.Type)
	}
	return nil
}

func (s *JobService) normalizeDestination(dest *jobs.Destination) error {
	switch dest.Kind {
	case jobs.DestinationBigQuery:
		if dest.BigQuery == nil {
			return fmt.Errorf("bigquery destination requires target parameters")
		}
		if dest.BigQuery.ProjectID == "" {
			return fmt.Errorf("bigquery destination requires project id")
		}
		if _, _, err := dest.BigQuery.DatasetTable(); err != nil {
			return err
		}
		if dest.BigQuery.StagingBucket == "" {
			dest.BigQuery.StagingBucket = s.stagingBucket
		}
		if dest.BigQuery.StagingBucket == "" {
			return fmt.Errorf("bigquery destination requires a staging bucket")
		}
	case jobs.DestinationPostgres:
		if dest.Postgres == nil {
			return fmt.Errorf("postgres destination requires connection parameters")
		}
		pg := dest.Postgres
		switch {
		case pg.Host == "":
			return fmt.Errorf("postgres destination requires host")
		case pg.Database == "":
			return fmt.Errorf("postgres destination requires database")
		case pg.User == "":
			return fmt.Errorf("postgres destination requires user")
		case pg.Password == "":
			return fmt.Errorf("postgres destination requires password")
		}
		if pg.Port == 0 {
			pg.Port = 5432
		}
		if pg.Table == "" {
			pg.Table = fmt.Sprintf("imported_data_%d", time.Now().Unix())
		}
	default:
		return fmt.Errorf("unknown destination kind %q", dest.Kind)
	}
	return nil
}

// run is the supervised pipeline task for one job. It owns the scratch
// directory for the run and always finalizes the job, even on panic.
func (s *JobService) run(id string, req SubmitRequest) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job %s pipeline panicked: %v", id, r)
			s.store.Fail(id, fmt.Sprintf("internal pipeline failure: %v", r))
		}
	}()

	scratch, err := os.MkdirTemp(s.scratchDir, "ingest-"+id+"-")
	if err != nil {
		s.store.Fail(id, fmt.Sprintf("failed to create scratch directory: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("Failed to remove scratch dir %s: %v", scratch, err)
			s.store.AppendLog(id, jobs.LogWarn, fmt.Sprintf("Failed to remove temporary files: %v", err))
		}
	}()

	if err := s.pipeline(ctx, id, req, scratch); err != nil {
		log.Error("Job %s failed: %v", id, err)
		s.store.Fail(id, err.Error())
	}
}

func (s *JobService) pipeline(ctx context.Context, id string, req SubmitRequest, scratch string) error {
	archivePath, err := s.acquireSource(ctx, id, req.Source, scratch)
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(id, jobs.StatusConverting, jobs.ProgressSourceAcquired); err != nil {
		return err
	}

	members, err := s.convertMembers(ctx, archivePath, scratch, func(format string, args ...any) {
		s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf(format, args...))
	})
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(id, jobs.StatusConverting, jobs.ProgressConverted); err != nil {
		return err
	}
	if err := s.store.SetStatus(id, jobs.StatusLoading, jobs.ProgressConverted); err != nil {
		return err
	}

	switch req.Destination.Kind {
	case jobs.DestinationBigQuery:
		return s.loadBigQuery(ctx, id, req, members, scratch)
	case jobs.DestinationPostgres:
		return s.loadPostgres(ctx, id, req, members)
	default:
		return fmt.Errorf("unknown destination kind %q", req.Destination.Kind)
	}
}

func (s *JobService) acquireSource(ctx context.Context, id string, src jobs.Source, scratch string) (string, error) {
	switch src.Type {
	case jobs.SourceLocal:
		s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf("Processing uploaded file %s", src.FileName))
		return src.FilePath, nil
	case jobs.SourceGCS:
		dest := filepath.Join(scratch, filepath.Base(src.Object))
		s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf("Downloading gs://%s/%s", src.Bucket, src.Object))
		if err := s.objects.Download(ctx, src.Bucket, src.Object, dest); err != nil {
			return "", fmt.Errorf("failed to download gs://%s/%s: %w", src.Bucket, src.Object, err)
		}
		return dest, nil
	default:
		return "", fmt.Errorf("unknown source type %q", src.Type)
	}
}

// convertMembers extracts the archive and runs one conversion per shapefile
// member concurrently. A single member failure aborts the whole run.
func (s *JobService) convertMembers(ctx context.Context, archivePath, scratch string, logf func(format string, args ...any)) ([]string, error) {
	extractDir := filepath.Join(scratch, "extracted")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	if err := s.extractor.Extract(ctx, archivePath, extractDir); err != nil {
		return nil, err
	}

	shapefiles, err := archive.FindShapefiles(extractDir)
	if err != nil {
		return nil, err
	}
	if len(shapefiles) == 0 {
		return nil, fmt.Errorf("no shapefiles found in archive")
	}
	logf("Found %d shapefile member(s)", len(shapefiles))

	members := make([]string, len(shapefiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, shp := range shapefiles {
		shp := shp
		out := filepath.Join(scratch, file.ReplaceExt(filepath.Base(shp), ".geojson"))
		members[i] = out
		g.Go(func() error {
			logf("Converting %s", filepath.Base(shp))
			return s.converter.Convert(gctx, shp, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *JobService) loadBigQuery(ctx context.Context, id string, req SubmitRequest, members []string, scratch string) error {
	target := *req.Destination.BigQuery

	merged := filepath.Join(scratch, "merged.ndjson")
	result, err := loader.MergeNDJSON(members, merged, req.Schema)
	if err != nil {
		return err
	}
	s.store.SetSchema(id, result.Schema)
	s.store.AppendLog(id, jobs.LogInfo,
		fmt.Sprintf("Merged %d feature(s), dropped %d without geometry", result.Features, result.Dropped))

	object := fmt.Sprintf("staging/%s.ndjson", id)
	uri, err := s.objects.Upload(ctx, target.StagingBucket, object, result.NDJSONPath)
	if err != nil {
		return fmt.Errorf("failed to stage merged output: %w", err)
	}
	s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf("Staged merged output at %s", uri))

	ref, err := s.warehouse.InsertLoadJob(ctx, target, uri, result.Schema)
	if err != nil {
		return err
	}
	s.store.SetExternalJobRef(id, ref)
	if err := s.store.SetStatus(id, jobs.StatusMonitoring, jobs.ProgressPersisted); err != nil {
		return err
	}

	err = s.monitor.Wait(ctx, target.ProjectID, ref, func(format string, args ...any) {
		s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf(format, args...))
	})
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(id, jobs.StatusMonitoring, jobs.ProgressMonitored); err != nil {
		return err
	}
	s.store.SetTables(id, []string{target.TargetTable})
	return s.store.SetStatus(id, jobs.StatusCompleted, jobs.ProgressDone)
}

func (s *JobService) loadPostgres(ctx context.Context, id string, req SubmitRequest, members []string) error {
	result, err := s.relational.Load(ctx, *req.Destination.Postgres, members, func(format string, args ...any) {
		s.store.AppendLog(id, jobs.LogInfo, fmt.Sprintf(format, args...))
	})
	if err != nil {
		return err
	}
	s.store.SetTables(id, result.Tables)
	if err := s.store.SetStatus(id, jobs.StatusLoading, jobs.ProgressPersisted); err != nil {
		return err
	}
	return s.store.SetStatus(id, jobs.StatusCompleted, jobs.ProgressDone)
}

// List returns jobs newest-first, optionally filtered by caller.
func (s *JobService) List(callerID string) []*jobs.Job {
	all := s.store.List()
	if callerID == "" {
		return all
	}
	filtered := make([]*jobs.Job, 0, len(all))
	for _, j := range all {
		if j.CallerID == callerID {
			filtered = append(filtered, j)
		}
	}
	return filtered
}

func (s *JobService) Get(id string) (*jobs.Job, bool) {
	return s.store.Get(id)
}

func (s *JobService) Delete(id string) {
	s.store.Delete(id)
}

// Subscribe registers fn for every subsequent mutation of the job.
func (s *JobService) Subscribe(id string, fn func(jobs.Job)) (func(), bool) {
	return s.store.Subscribe(id, fn)
}

// Retry always fails: see ErrRetryUnsupported. The job itself is left
// untouched.
func (s *JobService) Retry(id string) error {
	if _, ok := s.store.Get(id); !ok {
		return jobs.ErrNotFound
	}
	return ErrRetryUnsupported
}

// Stats summarizes the registry by status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func (s *JobService) Stats() Stats {
	stats := Stats{ByStatus: make(map[string]int)}
	for _, j := range s.store.List() {
		stats.Total++
		stats.ByStatus[string(j.Status)]++
	}
	return stats
}
