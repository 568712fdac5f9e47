package config

import (
	"annotation-server/core"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
listen: ":4000"
frame_rate: 30
storage:
  type: sqlite
  data_source_name: annotations.db
projection:
  origin: [13.4, 52.5]
  zoom: 12
managers:
  - id: parcels
    layer_position:
      below: labels
    style:
      fill_antialias: false
      fill_translate: [1, 2]
      fill_translate_anchor: viewport
  - id: labels
    declarative: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annotations.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultFrameRate, cfg.FrameRate)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Empty(t, cfg.Managers)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Listen)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "annotations.db", cfg.Storage.DataSourceName)
	assert.Equal(t, 13.4, cfg.Projection.OriginPoint().Lon())
	assert.Equal(t, 12.0, cfg.Projection.Zoom)

	require.Len(t, cfg.Managers, 2)
	parcels := cfg.Managers[0]
	assert.Equal(t, "parcels", parcels.ID)
	assert.Equal(t, "labels", parcels.LayerPosition.Below)
	require.NotNil(t, parcels.Style.FillAntialias)
	assert.False(t, *parcels.Style.FillAntialias)
	assert.Equal(t, []float64{1, 2}, parcels.Style.FillTranslate)
	assert.Equal(t, core.TranslateAnchorViewport, *parcels.Style.FillTranslateAnchor)
	assert.True(t, cfg.Managers[1].Declarative)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":5000")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("S3_BUCKET_NAME", "snapshots")
	t.Setenv("FRAME_RATE", "120")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "snapshots", cfg.Storage.S3Bucket)
	assert.Equal(t, 120, cfg.FrameRate)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "managers: [\n"},
		{name: "bad frame rate", content: "frame_rate: -1\n"},
		{name: "bad log level", content: "log_level: loud\n"},
		{name: "missing id", content: "managers:\n  - declarative: true\n"},
		{name: "duplicate id", content: "managers:\n  - id: a\n  - id: a\n"},
		{name: "bad style", content: "managers:\n  - id: a\n    style:\n      fill_emissive_strength: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "frame_rate: 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { reloaded <- cfg })
	}()

	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("frame_rate: 90\n"), 0o644); err != nil {
			return false
		}
		select {
		case cfg := <-reloaded:
			return cfg.FrameRate == 90
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_RequiresPath(t *testing.T) {
	assert.Error(t, Watch(context.Background(), "", func(*Config) {}))
}
