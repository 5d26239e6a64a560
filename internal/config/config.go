package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/mood-detector/pkg/cropper"
	"github.com/menta2k/mood-detector/pkg/detection"
)

// Classifier backends.
const (
	BackendNetwork  = "network"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendTFLite   = "tflite"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Detector   DetectorConfig   `json:"detector"`
	Classifier ClassifierConfig `json:"classifier"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Log        LogConfig        `json:"log"`
}

// ServerConfig holds configuration for the HTTP transport
type ServerConfig struct {
	BindAddress         string   `json:"bind_address"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	MaxBodyBytes        int64    `json:"max_body_bytes"`
	CORSOrigins         []string `json:"cors_origins"`
	Gzip                bool     `json:"gzip"`
	Debug               bool     `json:"debug"`
}

// ReadTimeout returns the read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// DetectorConfig holds configuration for face localization
type DetectorConfig struct {
	CascadePath  string  `json:"cascade_path"`
	ScaleFactor  float64 `json:"scale_factor"`
	MinNeighbors int     `json:"min_neighbors"`
	ShiftFactor  float64 `json:"shift_factor"`
	MinSize      int     `json:"min_size"`
	MaxSize      int     `json:"max_size"`
	IoUThreshold float64 `json:"iou_threshold"`
	MinQuality   float32 `json:"min_quality"`
}

// Detection converts the section to detector parameters.
func (d DetectorConfig) Detection() detection.Config {
	return detection.Config{
		ScaleFactor:  d.ScaleFactor,
		MinNeighbors: d.MinNeighbors,
		ShiftFactor:  d.ShiftFactor,
		MinSize:      d.MinSize,
		MaxSize:      d.MaxSize,
		IoUThreshold: d.IoUThreshold,
		MinQuality:   d.MinQuality,
	}
}

// ClassifierConfig holds configuration for emotion classification
type ClassifierConfig struct {
	Backend     string `json:"backend"`
	ModelPath   string `json:"model_path"`
	WeightsPath string `json:"weights_path"`
	TFLitePath  string `json:"tflite_path"`
	Threads     int    `json:"threads"` // interpreter threads for the tflite backend
	Filter      string `json:"resample_filter"`
	RemoteURL   string `json:"remote_url"`
	RemoteModel string `json:"remote_model"`
}

// PipelineConfig holds configuration for per-frame processing
type PipelineConfig struct {
	Workers int `json:"workers"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	det := detection.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			BindAddress:         "0.0.0.0:5000",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
			MaxBodyBytes:        10 << 20,
			CORSOrigins:         []string{"*"},
			Gzip:                false,
			Debug:               false,
		},
		Detector: DetectorConfig{
			CascadePath:  "models/facefinder",
			ScaleFactor:  det.ScaleFactor,
			MinNeighbors: det.MinNeighbors,
			ShiftFactor:  det.ShiftFactor,
			MinSize:      det.MinSize,
			MaxSize:      det.MaxSize,
			IoUThreshold: det.IoUThreshold,
			MinQuality:   det.MinQuality,
		},
		Classifier: ClassifierConfig{
			Backend:     BackendNetwork,
			ModelPath:   "models/emotiondetector.json",
			WeightsPath: "models/emotiondetector.bin",
			TFLitePath:  "models/emotiondetector.tflite",
			Threads:     2,
			Filter:      "linear",
			RemoteURL:   "http://localhost:11434",
			RemoteModel: "llava:7b",
		},
		Pipeline: PipelineConfig{
			Workers: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads filename when it exists, falling back to defaults, then applies
// environment overrides and validates the result.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if cfg, err = LoadFromFile(filename); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from MOOD_* environment variables. Unparseable
// values are ignored.
func (c *Config) ApplyEnv() {
	readEnvString("MOOD_BIND_ADDRESS", &c.Server.BindAddress)
	readEnvBool("MOOD_DEBUG", &c.Server.Debug)
	readEnvString("MOOD_CASCADE_PATH", &c.Detector.CascadePath)
	readEnvFloat("MOOD_SCALE_FACTOR", &c.Detector.ScaleFactor)
	readEnvInt("MOOD_MIN_NEIGHBORS", &c.Detector.MinNeighbors)
	readEnvString("MOOD_CLASSIFIER_BACKEND", &c.Classifier.Backend)
	readEnvString("MOOD_MODEL_PATH", &c.Classifier.ModelPath)
	readEnvString("MOOD_WEIGHTS_PATH", &c.Classifier.WeightsPath)
	readEnvString("MOOD_TFLITE_PATH", &c.Classifier.TFLitePath)
	readEnvInt("MOOD_THREADS", &c.Classifier.Threads)
	readEnvString("MOOD_REMOTE_URL", &c.Classifier.RemoteURL)
	readEnvString("MOOD_REMOTE_MODEL", &c.Classifier.RemoteModel)
	readEnvInt("MOOD_WORKERS", &c.Pipeline.Workers)
	readEnvString("MOOD_LOG_LEVEL", &c.Log.Level)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.BindAddress == "" {
		return fmt.Errorf("server.bind_address cannot be empty")
	}

	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if c.Server.ReadTimeoutSeconds < 0 || c.Server.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}

	if err := c.Detector.Detection().Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	switch c.Classifier.Backend {
	case BackendNetwork:
		if c.Classifier.ModelPath == "" || c.Classifier.WeightsPath == "" {
			return fmt.Errorf("classifier.model_path and classifier.weights_path are required for the network backend")
		}
	case BackendTFLite:
		if c.Classifier.TFLitePath == "" {
			return fmt.Errorf("classifier.tflite_path is required for the tflite backend")
		}
		if c.Classifier.Threads < 1 {
			return fmt.Errorf("classifier.threads must be at least 1")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Classifier.RemoteModel == "" && c.Classifier.Backend == BackendOllama {
			return fmt.Errorf("classifier.remote_model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("classifier.backend must be one of %s, %s, %s, %s", BackendNetwork, BackendTFLite, BackendOllama, BackendLlamaCpp)
	}

	if _, err := cropper.ParseFilter(c.Classifier.Filter); err != nil {
		return fmt.Errorf("classifier.resample_filter: %w", err)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "mood-detector", "config.json")
}

func readEnvString(name string, value *string) {
	if v := os.Getenv(name); v != "" {
		*value = v
	}
}

func readEnvBool(name string, value *bool) {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes", "on":
		*value = true
	case "false", "0", "no", "off":
		*value = false
	}
}

func readEnvFloat(name string, value *float64) {
	if f, err := strconv.ParseFloat(os.Getenv(name), 64); err == nil {
		*value = f
	}
}

func readEnvInt(name string, value *int) {
	if i, err := strconv.Atoi(os.Getenv(name)); err == nil {
		*value = i
	}
}
