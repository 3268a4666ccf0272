package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 5000 || cfg.Training.Seed != 42 || cfg.Training.Components != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 8080
  read_timeout: 5s
  static_dir: ./frontend
model:
  path: /srv/models/heart.json
log:
  level: debug
  format: json
training:
  data_path: /srv/data/cleveland.data
  encoding: latin1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 || cfg.HTTP.ReadTimeout != 5*time.Second || cfg.HTTP.StaticDir != "./frontend" {
		t.Fatalf("unexpected http config: %+v", cfg.HTTP)
	}
	if cfg.Model.Path != "/srv/models/heart.json" || cfg.Log.Level != "debug" || cfg.Training.Encoding != "latin1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	// unset keys keep their defaults
	if cfg.HTTP.WriteTimeout != 15*time.Second || cfg.Training.TestRatio != 0.2 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"HTTP_PORT", "9090")
	t.Setenv(EnvPrefix+"MODEL_PATH", "/tmp/model.json")
	t.Setenv(EnvPrefix+"AUDIT_PREDICTIONS", "true")
	cfg, err := Load(writeConfig(t, "http:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Model.Path != "/tmp/model.json" || !cfg.Database.AuditPredictions {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestEnvOverrideErrors(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvPrefix + "HTTP_PORT":     "eighty",
		EnvPrefix + "CACHE_ENABLED": "maybe",
	}
	err := cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d (%v)", got, err)
	}
}

func TestValidateAggregates(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Port = 0
	cfg.Model.Path = ""
	cfg.Log.Level = "loud"
	cfg.Training.Folds = 1

	err := cfg.Validate()
	errs := multierr.Errors(err)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), err)
	}
	for _, want := range []string{"http.port", "model.path", "log.level", "training.folds"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q: %v", want, err)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "http: [not, a, map]\n")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFindFileFallsBackToParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "cmd")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "model:\n  path: models/heart.json\ndatabase:\n  path: /var/lib/heartrisk.db\n"
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	if got := FindFile(""); got != filepath.Join("..", "config.yaml") {
		t.Fatalf("expected ../config.yaml, got %q", got)
	}
	if got := FindFile("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path not kept, got %q", got)
	}

	cfg, path, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join("..", "config.yaml") {
		t.Fatalf("unexpected path %q", path)
	}
	if cfg.Model.Path != filepath.Join("..", "models", "heart.json") {
		t.Errorf("model path not resolved against the config dir: %q", cfg.Model.Path)
	}
	if cfg.Database.Path != "/var/lib/heartrisk.db" {
		t.Errorf("absolute path rewritten: %q", cfg.Database.Path)
	}
	if cfg.HTTP.StaticDir != "" || cfg.Log.File != "" {
		t.Errorf("empty paths should stay empty: %q %q", cfg.HTTP.StaticDir, cfg.Log.File)
	}
}

func TestFindFileWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	if got := FindFile(""); got != "" {
		t.Fatalf("expected no config, got %q", got)
	}
	cfg, path, err := LoadFile("")
	if err != nil || path != "" {
		t.Fatalf("expected defaults, got path %q err %v", path, err)
	}
	if cfg.Model.Path != Default().Model.Path {
		t.Errorf("defaults should not be rebased: %q", cfg.Model.Path)
	}
}
