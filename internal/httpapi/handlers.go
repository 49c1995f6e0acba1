package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
	"github.com/shubhampathak24/shape-to-bq/internal/service"
	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleConvertUpload converts an uploaded archive synchronously. The
// bigquery destination answers with the merged NDJSON stream and the
// generated schema in the X-Generated-Schema header; the postgres
// destination loads the tables and answers with their names plus a preview
// sample.
func (s *Server) handleConvertUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	upload, header, err := s.saveUpload(r)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file too large")
			return
		}
		writeFailure(w, err)
		return
	}
	defer func() {
		if err := os.Remove(upload); err != nil {
			log.Warn("Failed to remove uploaded file %s: %v", upload, err)
		}
	}()
	log.Info("Received upload %s (%d bytes)", header.Filename, header.Size)

	dest, err := destinationFromForm(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	outcome, err := s.svc.ConvertArchive(r.Context(), upload, dest, nil)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer outcome.Close()

	if dest.Kind == jobs.DestinationPostgres {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Data loaded into PostgreSQL",
			"tables":  outcome.Tables,
			"preview": outcome.Preview,
		})
		return
	}

	schema, err := json.Marshal(outcome.NDJSON.Schema)
	if err != nil {
		writeFailure(w, err)
		return
	}
	stream, err := os.Open(outcome.NDJSON.NDJSONPath)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Access-Control-Expose-Headers", "X-Generated-Schema")
	w.Header().Set("X-Generated-Schema", string(schema))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		log.Warn("Failed to stream merged output: %v", err)
	}
}

// saveUpload spools the multipart "shapefile" part to a temp file.
func (s *Server) saveUpload(r *http.Request) (string, *multipartHeader, error) {
	part, header, err := r.FormFile("shapefile")
	if err != nil {
		return "", nil, err
	}
	defer part.Close()

	out, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", nil, err
	}
	defer out.Close()
	if _, err := io.Copy(out, part); err != nil {
		os.Remove(out.Name())
		return "", nil, err
	}
	return out.Name(), &multipartHeader{Filename: header.Filename, Size: header.Size}, nil
}

type multipartHeader struct {
	Filename string
	Size     int64
}

func destinationFromForm(r *http.Request) (jobs.Destination, error) {
	kind := strings.ToLower(r.FormValue("destination"))
	if kind == "" {
		kind = string(jobs.DestinationBigQuery)
	}
	switch jobs.DestinationKind(kind) {
	case jobs.DestinationBigQuery:
		return jobs.Destination{Kind: jobs.DestinationBigQuery}, nil
	case jobs.DestinationPostgres:
		port := 0
		if raw := r.FormValue("pgPort"); raw != "" {
			p, err := strconv.Atoi(raw)
			if err != nil {
				return jobs.Destination{}, fmt.Errorf("invalid pgPort %q", raw)
			}
			port = p
		}
		return jobs.Destination{
			Kind: jobs.DestinationPostgres,
			Postgres: &jobs.PostgresTarget{
				Host:     r.FormValue("pgHost"),
				Port:     port,
				Database: r.FormValue("pgDatabase"),
				User:     r.FormValue("pgUser"),
				Password: r.FormValue("pgPassword"),
				Table:    r.FormValue("pgTable"),
			},
		}, nil
	default:
		return jobs.Destination{}, fmt.Errorf("unknown destination %q", kind)
	}
}

// handlePreviewGeoJSON reads rows back from a loaded warehouse table as a
// feature collection. The response is never cacheable: the same table ref
// can return different rows over time.
func (s *Server) handlePreviewGeoJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	projectID := r.URL.Query().Get("gcpProjectId")
	targetTable := r.URL.Query().Get("targetTable")
	if projectID == "" || targetTable == "" {
		writeError(w, http.StatusBadRequest, "missing gcpProjectId or targetTable")
		return
	}
	if _, _, err := jobs.SplitTargetTable(targetTable); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	fc, err := s.preview.Preview(r.Context(), projectID, targetTable, limit, bearerToken(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, fc)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) >= 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

type submitJobRequest struct {
	Source      jobs.Source        `json:"source"`
	Destination jobs.Destination   `json:"destination"`
	Schema      []jobs.SchemaField `json:"schema,omitempty"`
	CallerID    string             `json:"caller_id,omitempty"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.svc.List(r.URL.Query().Get("caller")))
	case http.MethodPost:
		var req submitJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		job, err := s.svc.Submit(service.SubmitRequest{
			Source:      req.Source,
			Destination: req.Destination,
			Schema:      req.Schema,
			CallerID:    req.CallerID,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, job)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	if action == "retry" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		err := s.svc.Retry(id)
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.svc.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		s.svc.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeFailure(w http.ResponseWriter, err error) {
	log.Error("Conversion request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"message": "File conversion failed on the server",
		"error":   err.Error(),
	})
}
