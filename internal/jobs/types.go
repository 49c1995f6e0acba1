package jobs

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusLoading    Status = "loading"
	StatusMonitoring Status = "monitoring"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress checkpoints. Progress moves between checkpoints, never linearly,
// and never regresses.
const (
	ProgressAccepted       = 0
	ProgressSourceAcquired = 20
	ProgressConverted      = 50
	ProgressPersisted      = 70
	ProgressMonitored      = 90
	ProgressDone           = 100
)

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

type FieldType string

const (
	FieldString    FieldType = "STRING"
	FieldInteger   FieldType = "INTEGER"
	FieldFloat     FieldType = "FLOAT"
	FieldBoolean   FieldType = "BOOLEAN"
	FieldTimestamp FieldType = "TIMESTAMP"
	FieldGeography FieldType = "GEOGRAPHY"
	FieldJSON      FieldType = "JSON"
)

type FieldMode string

const (
	ModeRequired FieldMode = "REQUIRED"
	ModeNullable FieldMode = "NULLABLE"
	ModeRepeated FieldMode = "REPEATED"
)

type SchemaField struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	Mode FieldMode `json:"mode,omitempty"`
}

type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGCS   SourceType = "gcs"
)

// Source describes where the archive comes from: a locally uploaded file or
// an object already resident in GCS.
type Source struct {
	Type     SourceType `json:"type"`
	FileName string     `json:"file_name,omitempty"`
	FilePath string     `json:"-"`
	FileSize int64      `json:"file_size,omitempty"`
	Bucket   string     `json:"bucket,omitempty"`
	Object   string     `json:"object,omitempty"`
}

type DestinationKind string

const (
	DestinationBigQuery DestinationKind = "bigquery"
	DestinationPostgres DestinationKind = "postgres"
)

type BigQueryTarget struct {
	ProjectID     string `json:"project_id"`
	TargetTable   string `json:"target_table"`
	StagingBucket string `json:"staging_bucket,omitempty"`
}

// DatasetTable splits the dataset.table reference.
func (t BigQueryTarget) DatasetTable() (string, string, error) {
	return SplitTargetTable(t.TargetTable)
}

func SplitTargetTable(ref string) (string, string, error) {
	dataset, table, ok := strings.Cut(ref, ".")
	if !ok || dataset == "" || table == "" {
		return "", "", fmt.Errorf("target table must be in dataset.table form, got %q", ref)
	}
	return dataset, table, nil
}

type PostgresTarget struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"-"`
	Table    string `json:"table"`
}

// Destination is a closed variant: exactly one of BigQuery or Postgres is
// set, selected once at job creation and dispatched on Kind.
type Destination struct {
	Kind     DestinationKind `json:"kind"`
	BigQuery *BigQueryTarget `json:"bigquery,omitempty"`
	Postgres *PostgresTarget `json:"postgres,omitempty"`
}

// Job is the unit of work tracked by the orchestrator.
type Job struct {
	ID             string        `json:"id"`
	CallerID       string        `json:"caller_id,omitempty"`
	Status         Status        `json:"status"`
	Progress       int           `json:"progress"`
	Source         Source        `json:"source"`
	Destination    Destination   `json:"destination"`
	Schema         []SchemaField `json:"schema,omitempty"`
	Logs           []LogEntry    `json:"logs"`
	Tables         []string      `json:"tables,omitempty"`
	ExternalJobRef string        `json:"external_job_ref,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	UpdatedAt      time.Time     `json:"updated_at"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
}
