// Package config loads the YAML configuration shared by the server and the
// trainer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HEARTRISK_"

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Model    ModelConfig    `yaml:"model"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Training TrainingConfig `yaml:"training"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// StaticDir holds index.html and assets served under / and /static/.
	StaticDir string `yaml:"static_dir"`
}

type ModelConfig struct {
	Path string `yaml:"path"`
}

type DatabaseConfig struct {
	Path             string `yaml:"path"`
	EnableWAL        bool   `yaml:"enable_wal"`
	AuditPredictions bool   `yaml:"audit_predictions"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type TrainingConfig struct {
	DataPath   string  `yaml:"data_path"`
	Encoding   string  `yaml:"encoding"`
	TestRatio  float64 `yaml:"test_ratio"`
	Seed       int64   `yaml:"seed"`
	Components int     `yaml:"components"`
	C          float64 `yaml:"c"`
	Folds      int     `yaml:"folds"`
	StrictRows bool    `yaml:"strict_rows"`
	ModelName  string  `yaml:"model_name"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           5000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			MaxBodyBytes:   1 << 16,
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Path: "models/heart_svm_pca.json",
		},
		Database: DatabaseConfig{
			Path:      "data/heartrisk.db",
			EnableWAL: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    1024,
		},
		Training: TrainingConfig{
			DataPath:   "data/processed.cleveland.data",
			TestRatio:  0.2,
			Seed:       42,
			Components: 8,
			C:          1.0,
			Folds:      5,
			ModelName:  "svc-rbf-pca",
		},
	}
}

// FindFile returns explicit when set, otherwise the first of config.yaml and
// ../config.yaml that exists, so a binary started from cmd/ still finds the
// repo config. An empty result means defaults only.
func FindFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{"config.yaml", filepath.Join("..", "config.yaml")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// LoadFile locates the config with FindFile, loads it and resolves relative
// paths against the directory holding it. It returns the path it used.
func LoadFile(explicit string) (*Config, string, error) {
	path := FindFile(explicit)
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	if path != "" {
		cfg.ResolvePaths(filepath.Dir(path))
	}
	return cfg, path, nil
}

// ResolvePaths joins every relative file path onto dir.
func (c *Config) ResolvePaths(dir string) {
	for _, p := range []*string{&c.Model.Path, &c.Database.Path, &c.HTTP.StaticDir, &c.Log.File, &c.Training.DataPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Load reads path over the defaults, applies HEARTRISK_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return
		}
		n, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s%s: %w", EnvPrefix, key, perr))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return
		}
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s%s: %w", EnvPrefix, key, perr))
			return
		}
		*dst = b
	}

	integer("HTTP_PORT", &c.HTTP.Port)
	str("STATIC_DIR", &c.HTTP.StaticDir)
	str("MODEL_PATH", &c.Model.Path)
	str("DB_PATH", &c.Database.Path)
	boolean("AUDIT_PREDICTIONS", &c.Database.AuditPredictions)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	boolean("CACHE_ENABLED", &c.Cache.Enabled)
	str("DATA_PATH", &c.Training.DataPath)
	return err
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		err = multierr.Append(err, errors.New("http.max_body_bytes must be positive"))
	}
	if c.Model.Path == "" {
		err = multierr.Append(err, errors.New("model.path is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		err = multierr.Append(err, errors.New("cache.size must be positive when the cache is enabled"))
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		err = multierr.Append(err, fmt.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio))
	}
	if c.Training.Components <= 0 {
		err = multierr.Append(err, errors.New("training.components must be positive"))
	}
	if c.Training.C <= 0 {
		err = multierr.Append(err, errors.New("training.c must be positive"))
	}
	if c.Training.Folds < 2 {
		err = multierr.Append(err, fmt.Errorf("training.folds %d must be at least 2", c.Training.Folds))
	}
	return err
}
