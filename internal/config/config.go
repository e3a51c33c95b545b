// Package config loads application settings from defaults, an optional
// config file, ATK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ATK"

type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Image   ImageConfig   `mapstructure:"image"`
	Predict PredictConfig `mapstructure:"predict"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
}

type ModelConfig struct {
	Path          string   `mapstructure:"path"`
	Backend       string   `mapstructure:"backend"`
	SharedLibrary string   `mapstructure:"shared_library"`
	ClassNames    []string `mapstructure:"class_names"`
	// Rescales is true when the network scales 0-255 input itself.
	Rescales   bool   `mapstructure:"rescales"`
	InputName  string `mapstructure:"input_name"`
	OutputName string `mapstructure:"output_name"`
}

type ImageConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Filter string `mapstructure:"filter"`
}

type PredictConfig struct {
	TopK                   int     `mapstructure:"top_k"`
	LowConfidenceThreshold float64 `mapstructure:"low_confidence_threshold"`
}

type UploadConfig struct {
	MaxBytes          int64    `mapstructure:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var defaults = map[string]any{
	"model.path":                       "models/best_model.onnx",
	"model.backend":                    "auto",
	"model.shared_library":             "",
	"model.class_names":                []string{"eraser", "kertas", "pensil"},
	"model.rescales":                   true,
	"model.input_name":                 "",
	"model.output_name":                "",
	"image.width":                      300,
	"image.height":                     300,
	"image.filter":                     "lanczos3",
	"predict.top_k":                    3,
	"predict.low_confidence_threshold": 0.5,
	"upload.max_bytes":                 5 * 1024 * 1024,
	"upload.allowed_extensions":        []string{"jpg", "jpeg", "png", "bmp"},
	"cache.size":                       128,
	"log.level":                        "info",
	"log.pretty":                       false,
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"model":     "model.path",
	"backend":   "model.backend",
	"onnx-lib":  "model.shared_library",
	"classes":   "model.class_names",
	"top-k":     "predict.top_k",
	"threshold": "predict.low_confidence_threshold",
	"log-level": "log.level",
	"pretty":    "log.pretty",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML, JSON or TOML config file")
	fs.String("model", "", "path to the model artifact (.onnx file or SavedModel directory)")
	fs.String("backend", "", "model runtime: auto, onnx or savedmodel")
	fs.String("onnx-lib", "", "path to the onnxruntime shared library")
	fs.StringSlice("classes", nil, "class names in model output order")
	fs.Int("top-k", 0, "number of ranked predictions to return")
	fs.Float64("threshold", 0, "confidence below which a prediction is flagged")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Bool("pretty", false, "human readable log output")
}

// Load resolves configuration with precedence flags > env > file > defaults.
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Image.Width <= 0 || c.Image.Height <= 0 {
		errs = append(errs, fmt.Errorf("image size must be positive, got %dx%d", c.Image.Width, c.Image.Height))
	}
	if len(c.Model.ClassNames) == 0 {
		errs = append(errs, errors.New("at least one class name is required"))
	}
	if c.Predict.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.Predict.TopK))
	}
	if t := c.Predict.LowConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("low_confidence_threshold must be in [0, 1], got %v", t))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("upload max_bytes must be positive, got %d", c.Upload.MaxBytes))
	}
	switch c.Model.Backend {
	case "", "auto", "onnx", "savedmodel":
	default:
		errs = append(errs, fmt.Errorf("unknown model backend %q", c.Model.Backend))
	}
	return errors.Join(errs...)
}
