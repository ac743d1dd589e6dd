package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repair.InterpolationLimit != 2*time.Hour || cfg.Repair.DayBefore != 24*time.Hour {
		t.Errorf("repair windows = %s/%s", cfg.Repair.InterpolationLimit, cfg.Repair.DayBefore)
	}
	if len(cfg.Repair.Regions) != 4 || cfg.Repair.Region != "DE" {
		t.Errorf("regions = %v (%s)", cfg.Repair.Regions, cfg.Repair.Region)
	}
	if cfg.Source.MinSize != 128 || !cfg.Storage.AllowOverwrite {
		t.Errorf("source/storage defaults = %+v / %+v", cfg.Source, cfg.Storage)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yml", `
run:
  end: 2019-01-01T00:00:00Z
  subset: [50Hertz, Amprion]
source:
  workers: 8
repair:
  interpolation_limit: 90m
storage:
  backend: s3
  bucket: opsd
  prefix: time_series/
logging:
  format: json
`)
	t.Setenv("STORAGE_BUCKET", "override")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUDIT_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Run.End.Equal(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %s", cfg.Run.End)
	}
	if len(cfg.Run.Subset) != 2 || cfg.Run.Subset[1] != "Amprion" {
		t.Errorf("subset = %v", cfg.Run.Subset)
	}
	if cfg.Source.Workers != 8 || cfg.Source.MinSize != 128 {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Repair.InterpolationLimit != 90*time.Minute {
		t.Errorf("interpolation limit = %s", cfg.Repair.InterpolationLimit)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "override" || cfg.Storage.Prefix != "time_series/" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should be enabled from env")
	}
}

func TestLoadEnvLists(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SOURCES_SUBSET", "TenneT, TransnetBW,")
	t.Setenv("SIBLING_REGIONS", "DEtennet")
	t.Setenv("RUN_END", "2017-01-01T00:00:00Z")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Run.Subset) != 2 || cfg.Run.Subset[1] != "TransnetBW" {
		t.Errorf("subset = %q", cfg.Run.Subset)
	}
	if len(cfg.Repair.Regions) != 1 {
		t.Errorf("regions = %v", cfg.Repair.Regions)
	}
	if cfg.Run.End.Year() != 2017 {
		t.Errorf("end = %s", cfg.Run.End)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"INTERPOLATION_LIMIT": "soon"}},
		{"bad int", map[string]string{"READ_WORKERS": "many"}},
		{"bad end", map[string]string{"RUN_END": "next year"}},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "ftp"}},
		{"bucket missing", map[string]string{"STORAGE_BACKEND": "gcs"}},
		{"zero window", map[string]string{"DAY_BEFORE": "0s"}},
		{"metrics nowhere", map[string]string{"METRICS_ENABLED": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Repair.Regions = nil
	cfg.Source.Workers = 0

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}
