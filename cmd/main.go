package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/shubhampathak24/shape-to-bq/internal/archive"
	"github.com/shubhampathak24/shape-to-bq/internal/bigquery"
	"github.com/shubhampathak24/shape-to-bq/internal/config"
	"github.com/shubhampathak24/shape-to-bq/internal/gauth"
	"github.com/shubhampathak24/shape-to-bq/internal/gcs"
	"github.com/shubhampathak24/shape-to-bq/internal/gdal"
	"github.com/shubhampathak24/shape-to-bq/internal/httpapi"
	"github.com/shubhampathak24/shape-to-bq/internal/jobs"
	"github.com/shubhampathak24/shape-to-bq/internal/loader"
	"github.com/shubhampathak24/shape-to-bq/internal/service"
	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.Server.LogLevel)

	tokens := gauth.NewADC()
	bqClient := bigquery.NewClient(tokens)
	gcsClient := gcs.NewClient(tokens)

	converter := gdal.NewOgr2ogr(cfg.GDAL.Ogr2ogrBin)
	extractor := archive.NewUnzip(cfg.GDAL.UnzipBin)
	monitor := bigquery.NewMonitor(
		bqClient,
		cfg.Monitor.MaxAttempts,
		time.Duration(cfg.Monitor.PollSeconds)*time.Second,
		time.Duration(cfg.Monitor.RetrySeconds)*time.Second,
	)

	svc := service.NewJobService(
		jobs.NewStore(),
		extractor,
		converter,
		gcsClient,
		bqClient,
		monitor,
		loader.NewPostgresLoader(converter),
		service.WithScratchDir(cfg.Scratch.Dir),
		service.WithStagingBucket(cfg.GCS.StagingBucket),
	)

	c := cron.New()
	janitor := service.NewJanitor(
		cfg.Scratch.Dir,
		time.Duration(cfg.Scratch.MaxAgeHours)*time.Hour,
		cfg.Scratch.JanitorCron,
		c,
	)
	if err := janitor.Schedule(); err != nil {
		log.Fatal("Failed to schedule scratch janitor: %v", err)
	}
	c.Start()
	defer c.Stop()

	server := httpapi.NewServer(svc, bqClient,
		httpapi.WithMaxUploadBytes(cfg.Server.UploadMaxBytes))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Info("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Shutdown failed: %v", err)
		}
	}
}
