// Package config loads the run configuration from defaults, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Run     RunConfig     `yaml:"run"`
	Source  SourceConfig  `yaml:"source"`
	Repair  RepairConfig  `yaml:"repair"`
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type RunConfig struct {
	ID      string    `yaml:"id"`      // generated when empty
	End     time.Time `yaml:"end"`     // data after End is cut off; zero keeps everything
	Subset  []string  `yaml:"subset"`  // sources to read; empty reads all
	Version string    `yaml:"version"` // producer version recorded in lineage
}

type SourceConfig struct {
	Catalog string `yaml:"catalog"` // path to sources.yml
	URL     string `yaml:"url"`     // raw file bucket, e.g. file:///data/raw or gs://bucket
	Workers int    `yaml:"workers"`
	MinSize int64  `yaml:"min_size"`
}

type RepairConfig struct {
	Region             string        `yaml:"region"`
	RegionPrefix       string        `yaml:"region_prefix"`
	GuessAttribute     string        `yaml:"guess_attribute"`
	Regions            []string      `yaml:"regions"`
	Attributes         []string      `yaml:"attributes"`
	InterpolationLimit time.Duration `yaml:"interpolation_limit"`
	DayBefore          time.Duration `yaml:"day_before"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"` // local | gcs | s3
	LocalDir       string `yaml:"local_dir"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	AllowOverwrite bool   `yaml:"allow_overwrite"`
	Compression    string `yaml:"compression"` // parquet codec: snappy | zstd | none
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Namespace   string `yaml:"namespace"`
}

type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Textfile string `yaml:"textfile"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Catalog: "sources.yml",
			URL:     "file://./data/raw",
			Workers: 4,
			MinSize: 128,
		},
		Repair: RepairConfig{
			Region:             "DE",
			RegionPrefix:       "DE",
			GuessAttribute:     "generation",
			Regions:            []string{"DE50hertz", "DEamprion", "DEtennet", "DEtransnetbw"},
			Attributes:         []string{"capacity", "generation", "forecast"},
			InterpolationLimit: 2 * time.Hour,
			DayBefore:          24 * time.Hour,
		},
		Storage: StorageConfig{
			Backend:        "local",
			LocalDir:       "./data/out",
			AllowOverwrite: true,
			Compression:    "snappy",
		},
		Audit: AuditConfig{
			Dir: "./data/audit",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded into the environment first. path names an optional YAML file; when
// empty CONFIG_FILE is consulted.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load for callers that cannot recover from a bad configuration.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	var errs []error

	cfg.Run.ID = getenvDefault("RUN_ID", cfg.Run.ID)
	cfg.Run.Version = getenvDefault("PRODUCER_VERSION", cfg.Run.Version)
	cfg.Run.Subset = getenvList("SOURCES_SUBSET", cfg.Run.Subset)
	if v := os.Getenv("RUN_END"); v != "" {
		end, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RUN_END: %w", err))
		} else {
			cfg.Run.End = end
		}
	}

	cfg.Source.Catalog = getenvDefault("SOURCES_CATALOG", cfg.Source.Catalog)
	cfg.Source.URL = getenvDefault("RAW_URL", cfg.Source.URL)
	cfg.Source.Workers = getenvInt("READ_WORKERS", cfg.Source.Workers, &errs)
	cfg.Source.MinSize = int64(getenvInt("MIN_FILE_SIZE", int(cfg.Source.MinSize), &errs))

	cfg.Repair.Region = getenvDefault("AGGREGATE_REGION", cfg.Repair.Region)
	cfg.Repair.RegionPrefix = getenvDefault("GUESS_REGION_PREFIX", cfg.Repair.RegionPrefix)
	cfg.Repair.Regions = getenvList("SIBLING_REGIONS", cfg.Repair.Regions)
	cfg.Repair.InterpolationLimit = getenvDuration("INTERPOLATION_LIMIT", cfg.Repair.InterpolationLimit, &errs)
	cfg.Repair.DayBefore = getenvDuration("DAY_BEFORE", cfg.Repair.DayBefore, &errs)

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.Bucket = getenvDefault("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = getenvDefault("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.Endpoint = getenvDefault("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = getenvDefault("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AllowOverwrite = getenvBool("ALLOW_OVERWRITE", cfg.Storage.AllowOverwrite)
	cfg.Storage.Compression = getenvDefault("PARQUET_COMPRESSION", cfg.Storage.Compression)

	cfg.Catalog.PostgresDSN = getenvDefault("CATALOG_DSN", cfg.Catalog.PostgresDSN)
	cfg.Catalog.Namespace = getenvDefault("CATALOG_NAMESPACE", cfg.Catalog.Namespace)

	cfg.Audit.Enabled = getenvBool("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.Dir = getenvDefault("AUDIT_DIR", cfg.Audit.Dir)

	cfg.Metrics.Enabled = getenvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
	cfg.Metrics.Textfile = getenvDefault("METRICS_TEXTFILE", cfg.Metrics.Textfile)

	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	return errors.Join(errs...)
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage: local backend needs a directory"))
		}
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage: %s backend needs a bucket", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend))
	}
	if c.Source.Catalog == "" {
		errs = append(errs, errors.New("source: catalog path is empty"))
	}
	if c.Source.URL == "" {
		errs = append(errs, errors.New("source: raw url is empty"))
	}
	if c.Source.Workers < 1 {
		errs = append(errs, fmt.Errorf("source: workers must be positive, got %d", c.Source.Workers))
	}
	if c.Repair.InterpolationLimit <= 0 {
		errs = append(errs, fmt.Errorf("repair: interpolation limit must be positive, got %s", c.Repair.InterpolationLimit))
	}
	if c.Repair.DayBefore <= 0 {
		errs = append(errs, fmt.Errorf("repair: day-before window must be positive, got %s", c.Repair.DayBefore))
	}
	if len(c.Repair.Regions) == 0 {
		errs = append(errs, errors.New("repair: sibling regions are empty"))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" && c.Metrics.Textfile == "" {
		errs = append(errs, errors.New("metrics: enabled without address or textfile"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true"
	}
	return def
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return parsed
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
