package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

const defaultWorkers = 16

// Load reads configuration from a YAML file, applies defaults and validates
// the engine and recovery sections. The result is read-only for the process
// lifetime.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds an AppConfig from YAML content.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if _, err := cfg.EngineConfig(); err != nil {
		return nil, err
	}
	if err := cfg.RecoveryPolicy().Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Workers.Size <= 0 {
		cfg.Workers.Size = defaultWorkers
	}

	def := domain.DefaultEngineConfig()
	if len(cfg.Engine.Languages) == 0 {
		cfg.Engine.Languages = def.Languages
	}
	if cfg.Engine.Accuracy == "" {
		cfg.Engine.Accuracy = string(def.Accuracy)
	}
	if cfg.Engine.PageSegMode == nil {
		psm := def.PageSegMode
		cfg.Engine.PageSegMode = &psm
	}
	if cfg.Engine.FormatBufferSize == 0 {
		cfg.Engine.FormatBufferSize = def.FormatBufferSize
	}

	r := &cfg.Recovery
	d := domain.DefaultRecoveryPolicy
	if r.MaxRetries == 0 {
		r.MaxRetries = d.MaxRetries
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = d.BaseDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = d.MaxDelay
	}
	if r.OperationTimeout == 0 {
		r.OperationTimeout = d.OperationTimeout
	}
	if r.CircuitFailureThreshold == 0 {
		r.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if r.CircuitResetTimeout == 0 {
		r.CircuitResetTimeout = d.CircuitResetTimeout
	}
}

// EngineConfig resolves the engine section into a validated
// domain.EngineConfig.
func (c *AppConfig) EngineConfig() (domain.EngineConfig, error) {
	out := domain.DefaultEngineConfig()
	e := c.Engine

	out.Languages = append([]string(nil), e.Languages...)
	out.Accuracy = domain.Accuracy(strings.ToLower(e.Accuracy))
	if e.PageSegMode != nil {
		out.PageSegMode = *e.PageSegMode
	}
	out.UserWordsFile = e.UserWordsFile
	out.UserPatternsFile = e.UserPatternsFile
	out.Whitelist = e.Whitelist
	out.TessdataFastDir = e.TessdataFastDir
	out.TessdataBestDir = e.TessdataBestDir
	if e.FormatBufferSize > 0 {
		out.FormatBufferSize = e.FormatBufferSize
	}

	var err error
	if e.MaxFileSize != "" {
		if out.MaxFileSize, err = parseSize("engine.max_file_size", e.MaxFileSize); err != nil {
			return domain.EngineConfig{}, err
		}
	}
	if e.MaxMemory != "" {
		if out.MaxMemory, err = parseSize("engine.max_memory", e.MaxMemory); err != nil {
			return domain.EngineConfig{}, err
		}
	}
	for name, raw := range e.FormatLimits {
		f, ok := lookupFormat(name)
		if !ok {
			return domain.EngineConfig{}, fmt.Errorf("engine.format_limits: unknown format %q", name)
		}
		n, err := parseSize("engine.format_limits."+name, raw)
		if err != nil {
			return domain.EngineConfig{}, err
		}
		out.FormatLimits[f] = n
	}

	if err := out.Validate(); err != nil {
		return domain.EngineConfig{}, err
	}
	return out, nil
}

// RecoveryPolicy converts the recovery section.
func (c *AppConfig) RecoveryPolicy() domain.RecoveryPolicy {
	r := c.Recovery
	return domain.RecoveryPolicy{
		MaxRetries:              r.MaxRetries,
		BaseDelay:               r.BaseDelay,
		MaxDelay:                r.MaxDelay,
		OperationTimeout:        r.OperationTimeout,
		CircuitFailureThreshold: r.CircuitFailureThreshold,
		CircuitResetTimeout:     r.CircuitResetTimeout,
	}
}

func parseSize(field, raw string) (int64, error) {
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid size %q: %w", field, raw, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: size must be > 0", field)
	}
	return int64(n), nil
}

func lookupFormat(name string) (domain.ImageFormat, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "jpg" {
		name = string(domain.FormatJPEG)
	}
	if name == "tif" {
		name = string(domain.FormatTIFF)
	}
	for _, f := range domain.SupportedFormats {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}
