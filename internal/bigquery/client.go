package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shubhampathak24/shape-to-bq/internal/gauth"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

const defaultBaseURL = "https://bigquery.googleapis.com/bigquery/v2"

// Client is a thin REST client for the BigQuery v2 API: load job insertion,
// job status polling and synchronous queries.
type Client struct {
	http   *resty.Client
	tokens gauth.TokenSource
}

type Option func(*Client)

// WithBaseURL points the client at a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
	}
}

func NewClient(tokens gauth.TokenSource, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(60 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetRetryCount(3).
			SetRetryWaitTime(200 * time.Millisecond),
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tableReference struct {
	ProjectID string `json:"projectId"`
	DatasetID string `json:"datasetId"`
	TableID   string `json:"tableId"`
}

type loadConfiguration struct {
	DestinationTable tableReference `json:"destinationTable"`
	SourceURIs       []string       `json:"sourceUris"`
	SourceFormat     string         `json:"sourceFormat"`
	Schema           *tableSchema   `json:"schema,omitempty"`
	WriteDisposition string         `json:"writeDisposition"`
}

type tableSchema struct {
	Fields []jobs.SchemaField `json:"fields"`
}

type insertJobRequest struct {
	Configuration struct {
		Load loadConfiguration `json:"load"`
	} `json:"configuration"`
}

type jobReference struct {
	JobID string `json:"jobId"`
}

type insertJobResponse struct {
	JobReference jobReference `json:"jobReference"`
}

// InsertLoadJob submits an asynchronous NDJSON load job for the staged
// gs:// URI and returns the external job reference used for polling.
func (c *Client) InsertLoadJob(ctx context.Context, target jobs.BigQueryTarget, sourceURI string, schema []jobs.SchemaField) (string, error) {
	dataset, table, err := target.DatasetTable()
	if err != nil {
		return "", err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var req insertJobRequest
	req.Configuration.Load = loadConfiguration{
		DestinationTable: tableReference{ProjectID: target.ProjectID, DatasetID: dataset, TableID: table},
		SourceURIs:       []string{sourceURI},
		SourceFormat:     "NEWLINE_DELIMITED_JSON",
		WriteDisposition: "WRITE_TRUNCATE",
	}
	if len(schema) > 0 {
		req.Configuration.Load.Schema = &tableSchema{Fields: schema}
	}

	var out insertJobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(req).
		SetResult(&out).
		Post(fmt.Sprintf("/projects/%s/jobs", target.ProjectID))
	if err != nil {
		return "", fmt.Errorf("failed to submit load job: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to submit load job: status %s: %s", resp.Status(), resp.String())
	}
	if out.JobReference.JobID == "" {
		return "", fmt.Errorf("load job submission returned no job reference")
	}
	return out.JobReference.JobID, nil
}

type JobError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// JobState mirrors the status block of a BigQuery job resource.
// State is PENDING, RUNNING or DONE.
type JobState struct {
	State  string     `json:"state"`
	Errors []JobError `json:"errors"`
}

func (s JobState) Done() bool {
	return s.State == "DONE"
}

// ErrorText joins all reported error messages.
func (s JobState) ErrorText() string {
	messages := make([]string, 0, len(s.Errors))
	for _, e := range s.Errors {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, ", ")
}

type getJobResponse struct {
	Status JobState `json:"status"`
}

// GetJobStatus polls the state of a previously submitted job.
func (c *Client) GetJobStatus(ctx context.Context, projectID, jobID string) (*JobState, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var out getJobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get(fmt.Sprintf("/projects/%s/jobs/%s", projectID, jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to check load job status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to check load job status: status %s", resp.Status())
	}
	return &out.Status, nil
}

type queryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
}

type queryResponse struct {
	Schema struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	} `json:"schema"`
	Rows []struct {
		F []struct {
			V any `json:"v"`
		} `json:"f"`
	} `json:"rows"`
}

// Query runs sql via jobs.query and returns each row as a column-name map.
func (c *Client) Query(ctx context.Context, projectID, sql, bearer string) ([]map[string]any, error) {
	tokens := c.tokens
	if bearer != "" {
		tokens = gauth.Static(bearer)
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var out queryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(queryRequest{Query: sql, UseLegacySQL: false}).
		SetResult(&out).
		Post(fmt.Sprintf("/projects/%s/queries", projectID))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("query failed: status %s: %s", resp.Status(), resp.String())
	}

	fields := make([]string, 0, len(out.Schema.Fields))
	for _, f := range out.Schema.Fields {
		fields = append(fields, f.Name)
	}

	rows := make([]map[string]any, 0, len(out.Rows))
	for _, r := range out.Rows {
		row := make(map[string]any, len(fields))
		for i, cell := range r.F {
			if i < len(fields) {
				row[fields[i]] = cell.V
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
