package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "LEAF_"

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Image     ImageConfig     `yaml:"image"`
	Inference InferenceConfig `yaml:"inference"`
	Flagging  FlaggingConfig  `yaml:"flagging"`
	Log       LogConfig       `yaml:"log"`

	// Examples maps a short name to an image path shown in the UI gallery
	Examples map[string]string `yaml:"examples"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
	// MaxUploadBytes bounds multipart uploads
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// ModelConfig points at the model artifact
type ModelConfig struct {
	Path         string `yaml:"path"`
	MetadataPath string `yaml:"metadata_path"`
	// SharedLibraryPath is the onnxruntime shared library; empty uses the loader default
	SharedLibraryPath string `yaml:"shared_library_path"`
}

// ImageConfig controls preprocessing
type ImageConfig struct {
	Height        int    `yaml:"height"`
	Width         int    `yaml:"width"`
	Layout        string `yaml:"layout"`
	Scale         string `yaml:"scale"`
	Interpolation string `yaml:"interpolation"`
	// MaxPixels rejects images whose declared width*height is larger
	MaxPixels int `yaml:"max_pixels"`
}

// InferenceConfig controls ranking
type InferenceConfig struct {
	TopK int `yaml:"top_k"`
}

// FlaggingConfig controls the flag store
type FlaggingConfig struct {
	Dir      string   `yaml:"dir"`
	InMemory bool     `yaml:"in_memory"`
	Options  []string `yaml:"options"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			Mode:           "release",
			MaxUploadBytes: 10 << 20,
		},
		Model: ModelConfig{
			Path: "models/leaf_model.onnx",
		},
		Image: ImageConfig{
			Height:        180,
			Width:         180,
			Layout:        "nhwc",
			Scale:         "raw",
			Interpolation: "bilinear",
			MaxPixels:     40_000_000,
		},
		Inference: InferenceConfig{
			TopK: 3,
		},
		Flagging: FlaggingConfig{
			Dir:     "flagged",
			Options: []string{"blurry", "incorrect", "other"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Examples: map[string]string{},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Model.Path == "" {
		return errors.New("model path is required")
	}
	if c.Image.Height <= 0 || c.Image.Width <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.Image.Width, c.Image.Height)
	}
	if c.Image.MaxPixels <= 0 {
		return fmt.Errorf("invalid max_pixels %d", c.Image.MaxPixels)
	}
	if c.Inference.TopK <= 0 {
		return fmt.Errorf("invalid top_k %d", c.Inference.TopK)
	}
	if !c.Flagging.InMemory && c.Flagging.Dir == "" {
		return errors.New("flagging dir is required unless in_memory is set")
	}
	return nil
}

// MetadataFile returns the configured metadata path, or the sidecar next to the model.
func (m ModelConfig) MetadataFile() string {
	if m.MetadataPath != "" {
		return m.MetadataPath
	}
	return strings.TrimSuffix(m.Path, ".onnx") + ".metadata.json"
}

func applyEnv(cfg *Config) error {
	// PORT is honored for platforms that inject it
	if v := os.Getenv("PORT"); v != "" {
		if err := setInt(&cfg.Server.Port, "PORT", v); err != nil {
			return err
		}
	}

	strs := map[string]*string{
		"SERVER_HOST":               &cfg.Server.Host,
		"SERVER_MODE":               &cfg.Server.Mode,
		"MODEL_PATH":                &cfg.Model.Path,
		"MODEL_METADATA_PATH":       &cfg.Model.MetadataPath,
		"MODEL_SHARED_LIBRARY_PATH": &cfg.Model.SharedLibraryPath,
		"IMAGE_LAYOUT":              &cfg.Image.Layout,
		"IMAGE_SCALE":               &cfg.Image.Scale,
		"IMAGE_INTERPOLATION":       &cfg.Image.Interpolation,
		"FLAGGING_DIR":              &cfg.Flagging.Dir,
		"LOG_LEVEL":                 &cfg.Log.Level,
		"LOG_FORMAT":                &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":      &cfg.Server.Port,
		"IMAGE_HEIGHT":     &cfg.Image.Height,
		"IMAGE_WIDTH":      &cfg.Image.Width,
		"IMAGE_MAX_PIXELS": &cfg.Image.MaxPixels,
		"INFERENCE_TOP_K":  &cfg.Inference.TopK,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if err := setInt(dst, EnvPrefix+key, v); err != nil {
				return err
			}
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "FLAGGING_IN_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sFLAGGING_IN_MEMORY: %w", EnvPrefix, err)
		}
		cfg.Flagging.InMemory = b
	}
	return nil
}

func setInt(dst *int, name, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}
