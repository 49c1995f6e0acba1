package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/shubhampathak24/shape-to-bq/internal/geometry"
	"github.com/shubhampathak24/shape-to-bq/internal/service"
)

const defaultMaxUploadBytes = 500 << 20

// PreviewClient reads rows back from a loaded warehouse table.
type PreviewClient interface {
	Preview(ctx context.Context, projectID, targetTable string, limit int, bearer string) (*geometry.FeatureCollection, error)
}

type Server struct {
	svc     *service.JobService
	preview PreviewClient

	maxUploadBytes int64

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithMaxUploadBytes caps the accepted multipart body size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func NewServer(svc *service.JobService, preview PreviewClient, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		preview:        preview,
		maxUploadBytes: defaultMaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/convert-upload", s.handleConvertUpload)
	s.mux.HandleFunc("/api/preview-geojson", s.handlePreviewGeoJSON)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stats", s.handleJobStats)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
}
