package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shubhampathak24/shape-to-bq/internal/geometry"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
	"github.com/shubhampathak24/shape-to-bq/internal/loader"
	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

// ConvertOutcome is the result of a synchronous conversion. For a warehouse
// destination NDJSON points at the merged record stream; the file lives in a
// scratch directory released by Close, so callers must consume it before
// closing. For a relational destination Tables and Preview are set instead.
type ConvertOutcome struct {
	NDJSON  *loader.MergeResult
	Tables  []string
	Preview *geometry.FeatureCollection
	cleanup func()
}

func (o *ConvertOutcome) Close() {
	if o.cleanup != nil {
		o.cleanup()
	}
}

// ConvertArchive converts an uploaded archive synchronously, without
// registering a job. A warehouse destination stops after the merge: the
// caller receives the NDJSON stream and schema and performs its own load. A
// relational destination is loaded in place.
func (s *JobService) ConvertArchive(ctx context.Context, archivePath string, dest jobs.Destination, schema []jobs.SchemaField) (*ConvertOutcome, error) {
	if dest.Kind == jobs.DestinationPostgres {
		if err := s.normalizeDestination(&dest); err != nil {
			return nil, err
		}
	}

	scratch, err := os.MkdirTemp(s.scratchDir, "convert-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("Failed to remove scratch dir %s: %v", scratch, err)
		}
	}
	done := false
	defer func() {
		if !done {
			cleanup()
		}
	}()

	members, err := s.convertMembers(ctx, archivePath, scratch, log.Info)
	if err != nil {
		return nil, err
	}

	switch dest.Kind {
	case jobs.DestinationBigQuery:
		merged := filepath.Join(scratch, "merged.ndjson")
		result, err := loader.MergeNDJSON(members, merged, schema)
		if err != nil {
			return nil, err
		}
		done = true
		return &ConvertOutcome{NDJSON: result, cleanup: cleanup}, nil
	case jobs.DestinationPostgres:
		result, err := s.relational.Load(ctx, *dest.Postgres, members, log.Info)
		if err != nil {
			return nil, err
		}
		done = true
		return &ConvertOutcome{Tables: result.Tables, Preview: result.Preview, cleanup: cleanup}, nil
	default:
		return nil, fmt.Errorf("unknown destination kind %q", dest.Kind)
	}
}
