package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MINIO_PUBLIC_URL", "https://cdn.example.com/")
	t.Setenv("STORAGE_DRIVER", "MinIO")
	t.Setenv("FETCH_TIMEOUT", "3s")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "https://cdn.example.com", cfg.MinIO.PublicURL)
	assert.Equal(t, DriverMinIO, cfg.StorageDriver)
	assert.Equal(t, 3*time.Second, cfg.Image.FetchTimeout)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "")

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, DriverCloudinary, cfg.StorageDriver)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, 500, cfg.Image.Size)
	assert.Equal(t, 85, cfg.Image.Quality)
	assert.Equal(t, int64(10*1024*1024), cfg.Image.MaxUploadBytes)
	assert.Equal(t, 10, cfg.Image.MaxFiles)
	assert.Equal(t, 10*time.Second, cfg.Image.FetchTimeout)
	assert.Equal(t, "c_fill,h_500,w_500/q_auto", cfg.Cloudinary.Transformation)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgsquare.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CLOUDINARY_FOLDER: squares\nIMAGE_SIZE: 256\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("IMAGE_SIZE", "300")

	cfg := Load()

	assert.Equal(t, "squares", cfg.Cloudinary.Folder)
	// environment wins over the file
	assert.Equal(t, 300, cfg.Image.Size)
}
