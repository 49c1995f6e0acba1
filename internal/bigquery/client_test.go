package bigquery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhampathak24/shape-to-bq/internal/gauth"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
)

func TestClient_InsertLoadJob(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobReference":{"jobId":"bq-load-42"}}`))
	}))
	defer srv.Close()

	c := NewClient(gauth.Static("tok"), WithBaseURL(srv.URL))
	target := jobs.BigQueryTarget{ProjectID: "proj", TargetTable: "gis.parcels"}
	schema := []jobs.SchemaField{
		{Name: "name", Type: jobs.FieldString, Mode: jobs.ModeNullable},
		{Name: "geometry", Type: jobs.FieldGeography, Mode: jobs.ModeNullable},
	}

	ref, err := c.InsertLoadJob(context.Background(), target, "gs://staging/out.ndjson", schema)
	require.NoError(t, err)
	assert.Equal(t, "bq-load-42", ref)
	assert.Equal(t, "/projects/proj/jobs", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)

	load := gotBody["configuration"].(map[string]any)["load"].(map[string]any)
	assert.Equal(t, "NEWLINE_DELIMITED_JSON", load["sourceFormat"])
	assert.Equal(t, "WRITE_TRUNCATE", load["writeDisposition"])
	assert.Equal(t, []any{"gs://staging/out.ndjson"}, load["sourceUris"])
	destination := load["destinationTable"].(map[string]any)
	assert.Equal(t, "gis", destination["datasetId"])
	assert.Equal(t, "parcels", destination["tableId"])
}

func TestClient_InsertLoadJob_RejectsBadTableRef(t *testing.T) {
	c := NewClient(gauth.Static("tok"))
	_, err := c.InsertLoadJob(context.Background(), jobs.BigQueryTarget{ProjectID: "p", TargetTable: "no-dot"}, "gs://x/y", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.table")
}

func TestClient_GetJobStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/proj/jobs/bq-load-42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"state":"DONE","errors":[{"reason":"invalid","message":"row 7 broken"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(gauth.Static("tok"), WithBaseURL(srv.URL))
	state, err := c.GetJobStatus(context.Background(), "proj", "bq-load-42")
	require.NoError(t, err)
	assert.True(t, state.Done())
	assert.Equal(t, "row 7 broken", state.ErrorText())
}

func TestClient_Preview(t *testing.T) {
	var gotAuth string
	var gotQuery queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"schema":{"fields":[{"name":"name"},{"name":"geometry"},{"name":"geojson"}]},
			"rows":[{"f":[{"v":"Alpha"},{"v":"POINT(1 2)"},{"v":"{\"type\":\"Point\",\"coordinates\":[1,2]}"}]}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(gauth.Static("ambient"), WithBaseURL(srv.URL))
	fc, err := c.Preview(context.Background(), "proj", "gis.parcels", 10, "caller-token")
	require.NoError(t, err)

	assert.Equal(t, "Bearer caller-token", gotAuth)
	assert.Contains(t, gotQuery.Query, "ST_ASGEOJSON(geometry) AS geojson")
	assert.Contains(t, gotQuery.Query, "`proj.gis.parcels`")
	assert.Contains(t, gotQuery.Query, "LIMIT 10")
	assert.False(t, gotQuery.UseLegacySQL)

	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, string(fc.Features[0].Geometry))
	assert.JSONEq(t, `{"name":"Alpha"}`, string(fc.Features[0].Properties))
}

func TestClient_Query_FallsBackToAmbientToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"schema":{"fields":[]},"rows":[]}`))
	}))
	defer srv.Close()

	c := NewClient(gauth.Static("ambient"), WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "proj", "SELECT 1", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer ambient", gotAuth)
}

func TestClient_Preview_RejectsMalformedTableRef(t *testing.T) {
	c := NewClient(gauth.Static("tok"))
	_, err := c.Preview(context.Background(), "proj", "no-dot", 0, "")
	require.Error(t, err)
}
