package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, int64(500<<20), cfg.Server.UploadMaxBytes)
	assert.Equal(t, "ogr2ogr", cfg.GDAL.Ogr2ogrBin)
	assert.Equal(t, "unzip", cfg.GDAL.UnzipBin)
	assert.Equal(t, 30, cfg.Monitor.MaxAttempts)
	assert.Equal(t, 5, cfg.Monitor.PollSeconds)
	assert.Equal(t, 3, cfg.Monitor.RetrySeconds)
	assert.Equal(t, "@hourly", cfg.Scratch.JanitorCron)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MONITOR_MAX_ATTEMPTS", "5")
	t.Setenv("STAGING_BUCKET", "my-staging")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Monitor.MaxAttempts)
	assert.Equal(t, "my-staging", cfg.GCS.StagingBucket)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestLoad_InvalidMonitorAttempts(t *testing.T) {
	t.Setenv("MONITOR_MAX_ATTEMPTS", "0")
	_, err := Load()
	require.Error(t, err)
}
