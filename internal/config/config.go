// Package config holds the complete application configuration.
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables, with sensible defaults for everything else.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Blob storage configuration
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Transcoding engine configuration
	Transcoding TranscodingConfig `yaml:"transcoding" json:"transcoding"`

	// Job queue configuration
	Queue QueueConfig `yaml:"queue" json:"queue"`

	// CDN / delivery configuration
	CDN CDNConfig `yaml:"cdn" json:"cdn"`

	// Watch-folder ingest configuration
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DatabaseConfig selects and configures the durable job store backend
type DatabaseConfig struct {
	// Type is "sqlite" or "postgres"
	Type string `yaml:"type" json:"type"`

	// Path is the sqlite database file (sqlite only)
	Path string `yaml:"path" json:"path"`

	// DSN is the postgres connection string (postgres only)
	DSN string `yaml:"dsn" json:"dsn"`
}

// StorageConfig selects and configures the blob store backend
type StorageConfig struct {
	// Backend is "local" or "s3"
	Backend string `yaml:"backend" json:"backend"`

	// Local backend settings
	LocalDir      string `yaml:"local_dir" json:"local_dir"`
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`

	// S3 backend settings
	S3Bucket string `yaml:"s3_bucket" json:"s3_bucket"`
	S3Region string `yaml:"s3_region" json:"s3_region"`
}

// TranscodingConfig holds codec toolchain settings
type TranscodingConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path"`
	TempDir     string `yaml:"temp_dir" json:"temp_dir"`

	// SegmentDuration is the HLS segment length in seconds
	SegmentDuration int `yaml:"segment_duration" json:"segment_duration"`

	// ThumbnailCount is the default number of thumbnails per video
	ThumbnailCount int `yaml:"thumbnail_count" json:"thumbnail_count"`
}

// QueueConfig holds scheduler settings
type QueueConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	Capacity          int           `yaml:"capacity" json:"capacity"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	JobTimeout        time.Duration `yaml:"job_timeout" json:"job_timeout"`

	// Backoff is "exponential" (default) or "constant"
	Backoff      string        `yaml:"backoff" json:"backoff"`
	RetryDelay   time.Duration `yaml:"retry_delay" json:"retry_delay"`
	ShutdownWait time.Duration `yaml:"shutdown_wait" json:"shutdown_wait"`

	// RetentionDays controls how long terminal jobs are kept in the store
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// CDNConfig holds delivery optimization settings
type CDNConfig struct {
	// PrimaryDomain replaces the storage domain in delivery URLs
	PrimaryDomain string `yaml:"primary_domain" json:"primary_domain"`

	// RegionDomains maps a region code to a region-specific CDN domain
	RegionDomains map[string]string `yaml:"region_domains" json:"region_domains"`

	// FallbackDomains are tried in order when the primary CDN is unreachable
	FallbackDomains []string `yaml:"fallback_domains" json:"fallback_domains"`
}

// IngestConfig holds watch-folder settings
type IngestConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	WatchDir string `yaml:"watch_dir" json:"watch_dir"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Default returns a configuration with all default values set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./mediaforge-data/mediaforge.db",
		},
		Storage: StorageConfig{
			Backend:       "local",
			LocalDir:      "./mediaforge-data/media",
			PublicBaseURL: "http://localhost:8080/media",
		},
		Transcoding: TranscodingConfig{
			FFmpegPath:      "ffmpeg",
			FFprobePath:     "ffprobe",
			TempDir:         os.TempDir(),
			SegmentDuration: 6,
			ThumbnailCount:  3,
		},
		Queue: QueueConfig{
			MaxConcurrentJobs: 3,
			Capacity:          100,
			MaxRetries:        3,
			JobTimeout:        30 * time.Minute,
			Backoff:           "exponential",
			RetryDelay:        30 * time.Second,
			ShutdownWait:      30 * time.Second,
			RetentionDays:     30,
		},
		CDN: CDNConfig{
			PrimaryDomain: "",
			RegionDomains: map[string]string{},
		},
		Ingest: IngestConfig{
			Enabled:  false,
			WatchDir: "./mediaforge-data/ingest",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given YAML file path (optional) and
// applies environment overrides. The result becomes the process-wide config
// returned by Get.
func Load(path string) error {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the current configuration, loading defaults if Load was never called
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()

	if cfg != nil {
		return cfg
	}

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = Default()
		applyEnvOverrides(current)
	}
	return current
}

// SetForTesting replaces the current config. Intended for tests only.
func SetForTesting(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("config: unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("config: storage.s3_bucket is required for the s3 backend")
	}
	if c.Queue.MaxConcurrentJobs < 1 {
		return fmt.Errorf("config: queue.max_concurrent_jobs must be at least 1")
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("config: queue.capacity must be at least 1")
	}
	if c.Queue.Backoff != "exponential" && c.Queue.Backoff != "constant" {
		return fmt.Errorf("config: unsupported backoff policy %q", c.Queue.Backoff)
	}
	return nil
}

// applyEnvOverrides overrides config values from environment variables
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "MEDIAFORGE_HOST")
	setInt(&cfg.Server.Port, "MEDIAFORGE_PORT")
	setString(&cfg.Database.Type, "MEDIAFORGE_DB_TYPE")
	setString(&cfg.Database.Path, "MEDIAFORGE_DB_PATH")
	setString(&cfg.Database.DSN, "MEDIAFORGE_DB_DSN")
	setString(&cfg.Storage.Backend, "MEDIAFORGE_STORAGE_BACKEND")
	setString(&cfg.Storage.LocalDir, "MEDIAFORGE_STORAGE_DIR")
	setString(&cfg.Storage.PublicBaseURL, "MEDIAFORGE_PUBLIC_BASE_URL")
	setString(&cfg.Storage.S3Bucket, "MEDIAFORGE_S3_BUCKET")
	setString(&cfg.Storage.S3Region, "MEDIAFORGE_S3_REGION")
	setString(&cfg.Transcoding.FFmpegPath, "MEDIAFORGE_FFMPEG_PATH")
	setString(&cfg.Transcoding.FFprobePath, "MEDIAFORGE_FFPROBE_PATH")
	setString(&cfg.Transcoding.TempDir, "MEDIAFORGE_TEMP_DIR")
	setInt(&cfg.Queue.MaxConcurrentJobs, "MEDIAFORGE_MAX_CONCURRENT_JOBS")
	setInt(&cfg.Queue.Capacity, "MEDIAFORGE_QUEUE_CAPACITY")
	setInt(&cfg.Queue.MaxRetries, "MEDIAFORGE_MAX_RETRIES")
	setDuration(&cfg.Queue.JobTimeout, "MEDIAFORGE_JOB_TIMEOUT")
	setString(&cfg.Queue.Backoff, "MEDIAFORGE_BACKOFF")
	setDuration(&cfg.Queue.RetryDelay, "MEDIAFORGE_RETRY_DELAY")
	setString(&cfg.CDN.PrimaryDomain, "MEDIAFORGE_CDN_DOMAIN")
	setString(&cfg.Ingest.WatchDir, "MEDIAFORGE_WATCH_DIR")
	setString(&cfg.Logging.Level, "MEDIAFORGE_LOG_LEVEL")

	if v := os.Getenv("MEDIAFORGE_INGEST_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ingest.Enabled = b
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
