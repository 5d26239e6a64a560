package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mood-detector/pkg/detection"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 1.3, cfg.Detector.ScaleFactor)
	assert.Equal(t, 5, cfg.Detector.MinNeighbors)
	assert.Equal(t, BackendNetwork, cfg.Classifier.Backend)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, detection.DefaultConfig(), cfg.Detector.Detection())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Detector.MinNeighbors = 3
	cfg.Pipeline.Workers = 4
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"detector":{"min_neighbors":2}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Detector.MinNeighbors)
	assert.Equal(t, 1.3, cfg.Detector.ScaleFactor)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.BindAddress)
}

func TestLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Detector, cfg.Detector)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MOOD_BIND_ADDRESS", "127.0.0.1:9000")
	t.Setenv("MOOD_MIN_NEIGHBORS", "3")
	t.Setenv("MOOD_SCALE_FACTOR", "1.1")
	t.Setenv("MOOD_WORKERS", "not-a-number")
	t.Setenv("MOOD_CLASSIFIER_BACKEND", BackendOllama)
	t.Setenv("MOOD_DEBUG", "yes")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.BindAddress)
	assert.Equal(t, 3, cfg.Detector.MinNeighbors)
	assert.Equal(t, 1.1, cfg.Detector.ScaleFactor)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, BackendOllama, cfg.Classifier.Backend)
	assert.True(t, cfg.Server.Debug)
}

func TestApplyEnvTFLite(t *testing.T) {
	t.Setenv("MOOD_CLASSIFIER_BACKEND", BackendTFLite)
	t.Setenv("MOOD_TFLITE_PATH", "/srv/models/fer.tflite")
	t.Setenv("MOOD_THREADS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendTFLite, cfg.Classifier.Backend)
	assert.Equal(t, "/srv/models/fer.tflite", cfg.Classifier.TFLitePath)
	assert.Equal(t, 4, cfg.Classifier.Threads)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty bind", func(c *Config) { c.Server.BindAddress = "" }},
		{"body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{"scale factor", func(c *Config) { c.Detector.ScaleFactor = 0.9 }},
		{"min neighbors", func(c *Config) { c.Detector.MinNeighbors = -1 }},
		{"backend", func(c *Config) { c.Classifier.Backend = "onnx" }},
		{"tflite path", func(c *Config) { c.Classifier.Backend = BackendTFLite; c.Classifier.TFLitePath = "" }},
		{"tflite threads", func(c *Config) { c.Classifier.Backend = BackendTFLite; c.Classifier.Threads = 0 }},
		{"model path", func(c *Config) { c.Classifier.ModelPath = "" }},
		{"ollama model", func(c *Config) { c.Classifier.Backend = BackendOllama; c.Classifier.RemoteModel = "" }},
		{"filter", func(c *Config) { c.Classifier.Filter = "sinc" }},
		{"workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	assert.Contains(t, GetConfigPath(), "mood-detector")
}
