// Package config loads the pipeline's JSON/YAML configuration and
// applies environment overrides, following the same
// load-then-merge-then-override shape this codebase's other
// components use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "NEWSREPO_CONFIG"
	repoPathEnv     = "NEWSREPO_REPOSITORY_PATH"
	dbPathEnv       = "NEWSREPO_DATABASE_PATH"
	mainDBPathEnv   = "NEWSREPO_MAIN_DATABASE_PATH"
	searchIdxEnv    = "NEWSREPO_SEARCH_INDEX_PATH"
	logLevelEnv     = "NEWSREPO_LOG_LEVEL"
	rateLimitEnv    = "NEWSREPO_DOWNLOADER_RATE_LIMIT"
	queueWorkersEnv = "NEWSREPO_QUEUE_MAX_CONCURRENT"
)

// Config holds every setting the CLI and long-running service need.
type Config struct {
	RepositoryPath    string `yaml:"repository_path" json:"repository_path"`
	DatabasePath      string `yaml:"database_path" json:"database_path"`
	SearchIndexPath   string `yaml:"search_index_path" json:"search_index_path"`
	MainDatabasePath  string `yaml:"main_database_path" json:"main_database_path"`
	ControlSocketPath string `yaml:"control_socket_path" json:"control_socket_path"`

	OCR        OCRConfig        `yaml:"ocr" json:"ocr"`
	Downloader DownloaderConfig `yaml:"downloader" json:"downloader"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Retention  RetentionConfig  `yaml:"retention" json:"retention"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

type OCRConfig struct {
	Language   string `yaml:"language" json:"language"`
	Engine     string `yaml:"engine" json:"engine"`
	MaxWorkers int    `yaml:"max_workers" json:"max_workers"`
}

type DownloaderConfig struct {
	RateLimit     float64 `yaml:"rate_limit" json:"rate_limit"`
	MaxWorkers    int     `yaml:"max_workers" json:"max_workers"`
	RetryAttempts int     `yaml:"retry_attempts" json:"retry_attempts"`
}

type QueueConfig struct {
	PollInterval  time.Duration `yaml:"-" json:"-"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"`
	BatchSize     int           `yaml:"batch_size" json:"batch_size"`
}

// queueConfigWire is the on-disk shape: poll_interval is seconds,
// matching the original Python config's plain integer seconds fields.
type queueConfigWire struct {
	PollIntervalSeconds int `yaml:"poll_interval" json:"poll_interval"`
	MaxConcurrent       int `yaml:"max_concurrent" json:"max_concurrent"`
	BatchSize           int `yaml:"batch_size" json:"batch_size"`
}

func (q *QueueConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var wire queueConfigWire
	if err := unmarshal(&wire); err != nil {
		return err
	}
	q.PollInterval = time.Duration(wire.PollIntervalSeconds) * time.Second
	q.MaxConcurrent = wire.MaxConcurrent
	q.BatchSize = wire.BatchSize
	return nil
}

func (q *QueueConfig) UnmarshalJSON(data []byte) error {
	var wire queueConfigWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	q.PollInterval = time.Duration(wire.PollIntervalSeconds) * time.Second
	q.MaxConcurrent = wire.MaxConcurrent
	q.BatchSize = wire.BatchSize
	return nil
}

type RetentionConfig struct {
	ArchiveDays int `yaml:"archive_days" json:"archive_days"`
}

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	return Config{
		RepositoryPath:   "./data/repository",
		DatabasePath:     "./data/repository.db",
		SearchIndexPath:  "./data/search.db",
		MainDatabasePath: "./data/main.db",
		ControlSocketPath: "./data/newsrepo.sock",
		OCR: OCRConfig{
			Language:   "eng",
			Engine:     "tesseract",
			MaxWorkers: 2,
		},
		Downloader: DownloaderConfig{
			RateLimit:     2.0,
			MaxWorkers:    2,
			RetryAttempts: 5,
		},
		Queue: QueueConfig{
			PollInterval:  5 * time.Second,
			MaxConcurrent: 2,
			BatchSize:     10,
		},
		Retention: RetentionConfig{ArchiveDays: 0},
		LogLevel:  "info",
	}
}

// Load reads the file named by NEWSREPO_CONFIG (or the given path override),
// merges it onto the defaults, then applies environment overrides.
func Load(pathOverride string) (Config, error) {
	cfg := Default()

	path := pathOverride
	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}

		var fileCfg Config
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			if err := json.Unmarshal(raw, &fileCfg); err != nil {
				return cfg, fmt.Errorf("parse json config %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				return cfg, fmt.Errorf("parse yaml config %s: %w", path, err)
			}
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(repoPathEnv); v != "" {
		c.RepositoryPath = v
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(mainDBPathEnv); v != "" {
		c.MainDatabasePath = v
	}
	if v := os.Getenv(searchIdxEnv); v != "" {
		c.SearchIndexPath = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(rateLimitEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Downloader.RateLimit = f
		}
	}
	if v := os.Getenv(queueWorkersEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.MaxConcurrent = n
		}
	}
}

func merge(base, override Config) Config {
	if override.RepositoryPath != "" {
		base.RepositoryPath = override.RepositoryPath
	}
	if override.DatabasePath != "" {
		base.DatabasePath = override.DatabasePath
	}
	if override.SearchIndexPath != "" {
		base.SearchIndexPath = override.SearchIndexPath
	}
	if override.MainDatabasePath != "" {
		base.MainDatabasePath = override.MainDatabasePath
	}
	if override.ControlSocketPath != "" {
		base.ControlSocketPath = override.ControlSocketPath
	}
	if override.OCR.Language != "" {
		base.OCR.Language = override.OCR.Language
	}
	if override.OCR.Engine != "" {
		base.OCR.Engine = override.OCR.Engine
	}
	if override.OCR.MaxWorkers != 0 {
		base.OCR.MaxWorkers = override.OCR.MaxWorkers
	}
	if override.Downloader.RateLimit != 0 {
		base.Downloader.RateLimit = override.Downloader.RateLimit
	}
	if override.Downloader.MaxWorkers != 0 {
		base.Downloader.MaxWorkers = override.Downloader.MaxWorkers
	}
	if override.Downloader.RetryAttempts != 0 {
		base.Downloader.RetryAttempts = override.Downloader.RetryAttempts
	}
	if override.Queue.PollInterval != 0 {
		base.Queue.PollInterval = override.Queue.PollInterval
	}
	if override.Queue.MaxConcurrent != 0 {
		base.Queue.MaxConcurrent = override.Queue.MaxConcurrent
	}
	if override.Queue.BatchSize != 0 {
		base.Queue.BatchSize = override.Queue.BatchSize
	}
	if override.Retention.ArchiveDays != 0 {
		base.Retention.ArchiveDays = override.Retention.ArchiveDays
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	return base
}
