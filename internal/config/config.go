package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Blobstore  BlobstoreConfig  `yaml:"blobstore" mapstructure:"blobstore"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Image      ImageConfig      `yaml:"image" mapstructure:"image"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlobstoreConfig configures the object store that holds canonical images.
type BlobstoreConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Bucket      string `yaml:"bucket" mapstructure:"bucket"`
	KeyPrefix   string `yaml:"key_prefix" mapstructure:"key_prefix"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnalysisConfig configures the document analysis service and the job
// orchestration around it.
type AnalysisConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	JobTag            string  `yaml:"job_tag" mapstructure:"job_tag"`
	PollIntervalSecs  int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	BudgetSecs        int     `yaml:"budget_secs" mapstructure:"budget_secs"`
	SubmitMaxAttempts int     `yaml:"submit_max_attempts" mapstructure:"submit_max_attempts"`
	SubmitBackoffMs   int     `yaml:"submit_backoff_ms" mapstructure:"submit_backoff_ms"`
	MaxPollErrors     int     `yaml:"max_poll_errors" mapstructure:"max_poll_errors"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst         int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ImageConfig configures canonical image preparation.
type ImageConfig struct {
	MinBytes    int `yaml:"min_bytes" mapstructure:"min_bytes"`
	MaxBytes    int `yaml:"max_bytes" mapstructure:"max_bytes"`
	JPEGQuality int `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// ExtractConfig configures receipt field extraction.
type ExtractConfig struct {
	LabelsFile       string `yaml:"labels_file" mapstructure:"labels_file"`
	FuzzyMaxDistance int    `yaml:"fuzzy_max_distance" mapstructure:"fuzzy_max_distance"`
}

// ValidationConfig configures receipt consistency checks.
type ValidationConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// FetchConfig configures remote source fetching for batch manifests.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentScans int `yaml:"max_concurrent_scans" mapstructure:"max_concurrent_scans"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int    `yaml:"port" mapstructure:"port"`
	AuthToken      string `yaml:"auth_token" mapstructure:"auth_token"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_bytes", 20971520)
	v.SetDefault("batch.max_concurrent_scans", 5)
	v.SetDefault("blobstore.base_url", "http://localhost:9000")
	v.SetDefault("blobstore.bucket", "receipts")
	v.SetDefault("blobstore.key_prefix", "scans/")
	v.SetDefault("blobstore.timeout_secs", 30)
	v.SetDefault("analysis.base_url", "http://localhost:8200/v1")
	v.SetDefault("analysis.job_tag", "ReceiptAnalysis")
	v.SetDefault("analysis.poll_interval_secs", 5)
	v.SetDefault("analysis.budget_secs", 300)
	v.SetDefault("analysis.submit_max_attempts", 3)
	v.SetDefault("analysis.submit_backoff_ms", 500)
	v.SetDefault("analysis.max_poll_errors", 3)
	v.SetDefault("analysis.rate_per_sec", 5)
	v.SetDefault("analysis.rate_burst", 5)
	v.SetDefault("analysis.breaker_threshold", 5)
	v.SetDefault("analysis.breaker_reset_secs", 30)
	v.SetDefault("image.min_bytes", 1024)
	v.SetDefault("image.max_bytes", 10485760)
	v.SetDefault("image.jpeg_quality", 95)
	v.SetDefault("extract.fuzzy_max_distance", 2)
	v.SetDefault("validation.tolerance", 0.02)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.rate_per_sec", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Mode is the command family being run: "scan", "batch", "serve", or
// "store". All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "scan":
		problems = append(problems, c.scanProblems()...)
	case "batch":
		problems = append(problems, c.scanProblems()...)
	case "serve":
		problems = append(problems, c.scanProblems()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "store":
		// Store commands only need the database.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Batch.MaxConcurrentScans < 1 || c.Batch.MaxConcurrentScans > 50 {
		problems = append(problems, "batch.max_concurrent_scans must be between 1 and 50")
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		problems = append(problems, "image.jpeg_quality must be between 1 and 100")
	}
	if c.Image.MinBytes < 0 || c.Image.MaxBytes < c.Image.MinBytes {
		problems = append(problems, "image.min_bytes/max_bytes must satisfy 0 <= min <= max")
	}
	if c.Validation.Tolerance < 0 {
		problems = append(problems, "validation.tolerance must be >= 0")
	}
	if c.Extract.FuzzyMaxDistance < 0 {
		problems = append(problems, "extract.fuzzy_max_distance must be >= 0")
	}
	if c.Analysis.PollIntervalSecs <= 0 {
		problems = append(problems, "analysis.poll_interval_secs must be > 0")
	}
	if c.Analysis.BudgetSecs <= 0 {
		problems = append(problems, "analysis.budget_secs must be > 0")
	}
	if c.Analysis.SubmitMaxAttempts < 1 {
		problems = append(problems, "analysis.submit_max_attempts must be >= 1")
	}
	if c.Analysis.MaxPollErrors < 1 {
		problems = append(problems, "analysis.max_poll_errors must be >= 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// scanProblems collects requirements shared by every mode that runs the
// scan pipeline.
func (c *Config) scanProblems() []string {
	var problems []string
	if c.Blobstore.BaseURL == "" {
		problems = append(problems, "blobstore.base_url is required")
	}
	if c.Blobstore.Bucket == "" {
		problems = append(problems, "blobstore.bucket is required")
	}
	if c.Analysis.BaseURL == "" {
		problems = append(problems, "analysis.base_url is required")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
