package config

import (
	"time"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Workers  WorkersConfig  `yaml:"workers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: debug, release, test
	// AllowPaths lets API callers reference files on the server's disk.
	AllowPaths bool `yaml:"allow_paths"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EngineConfig is the YAML form of domain.EngineConfig. Sizes are human
// strings such as "50MiB". SI suffixes ("50MB") are decimal.
type EngineConfig struct {
	Languages        []string          `yaml:"languages"`
	Accuracy         string            `yaml:"accuracy"`
	PageSegMode      *int              `yaml:"page_seg_mode"`
	UserWordsFile    string            `yaml:"user_words_file"`
	UserPatternsFile string            `yaml:"user_patterns_file"`
	Whitelist        string            `yaml:"whitelist"`
	TessdataFastDir  string            `yaml:"tessdata_fast_dir"`
	TessdataBestDir  string            `yaml:"tessdata_best_dir"`
	FormatBufferSize int               `yaml:"format_buffer_size"`
	MaxFileSize      string            `yaml:"max_file_size"`
	MaxMemory        string            `yaml:"max_memory"`
	FormatLimits     map[string]string `yaml:"format_limits"`
}

// RecoveryConfig is the YAML form of domain.RecoveryPolicy.
type RecoveryConfig struct {
	MaxRetries              int           `yaml:"max_retries"`
	BaseDelay               time.Duration `yaml:"base_delay"`
	MaxDelay                time.Duration `yaml:"max_delay"`
	OperationTimeout        time.Duration `yaml:"operation_timeout"`
	CircuitFailureThreshold uint32        `yaml:"circuit_failure_threshold"`
	CircuitResetTimeout     time.Duration `yaml:"circuit_reset_timeout"`
}

// WorkersConfig sizes the goroutine pool that runs engine calls.
type WorkersConfig struct {
	Size int `yaml:"size"`
}
