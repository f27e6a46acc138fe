package config

import (
	"os"
	"testing"
	"time"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_TESSDATA_DIR", "/opt/tessdata_best")
	defer os.Unsetenv("TEST_TESSDATA_DIR")

	// Create temp config file
	configContent := `
engine:
  languages: [eng, fra]
  tessdata_best_dir: ${TEST_TESSDATA_DIR}
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	// Load config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if ec.TessdataBestDir != "/opt/tessdata_best" {
		t.Errorf("Expected tessdata dir /opt/tessdata_best, got %s", ec.TessdataBestDir)
	}
	if ec.Key().LanguageSet != "eng+fra" {
		t.Errorf("Expected language set eng+fra, got %s", ec.Key().LanguageSet)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`server: {port: 9090}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Workers.Size != defaultWorkers {
		t.Errorf("Expected %d workers, got %d", defaultWorkers, cfg.Workers.Size)
	}
	if got := cfg.RecoveryPolicy(); got != domain.DefaultRecoveryPolicy {
		t.Errorf("Expected default recovery policy, got %+v", got)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if ec.Accuracy != domain.AccuracyBest || ec.MaxFileSize != domain.DefaultMaxFileSize {
		t.Errorf("Unexpected engine defaults: %+v", ec)
	}
}

func TestParse_SizesAndDurations(t *testing.T) {
	content := `
engine:
  accuracy: FAST
  page_seg_mode: 0
  max_file_size: 40MB
  max_memory: 1GiB
  format_limits:
    jpg: 12MB
    bmp: 2MiB
recovery:
  max_retries: 4
  base_delay: 250ms
  max_delay: 5s
  operation_timeout: 20s
  circuit_failure_threshold: 3
  circuit_reset_timeout: 2m
`
	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if ec.Accuracy != domain.AccuracyFast {
		t.Errorf("Expected fast tier, got %s", ec.Accuracy)
	}
	if ec.PageSegMode != 0 {
		t.Errorf("Expected explicit psm 0 to be kept, got %d", ec.PageSegMode)
	}
	if ec.MaxFileSize != 40_000_000 {
		t.Errorf("Expected 40MB, got %d", ec.MaxFileSize)
	}
	if ec.MaxMemory != 1<<30 {
		t.Errorf("Expected 1GiB, got %d", ec.MaxMemory)
	}
	if ec.FormatLimits[domain.FormatJPEG] != 12_000_000 {
		t.Errorf("Expected jpeg limit 12MB, got %d", ec.FormatLimits[domain.FormatJPEG])
	}
	if ec.FormatLimits[domain.FormatBMP] != 2<<20 {
		t.Errorf("Expected bmp limit 2MiB, got %d", ec.FormatLimits[domain.FormatBMP])
	}

	p := cfg.RecoveryPolicy()
	if p.MaxRetries != 4 || p.BaseDelay != 250*time.Millisecond || p.CircuitResetTimeout != 2*time.Minute {
		t.Errorf("Unexpected recovery policy: %+v", p)
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"max below base": "recovery: {base_delay: 10s, max_delay: 1s}",
		"unknown format": "engine: {format_limits: {heic: 1MB}}",
		"bad size":       "engine: {max_memory: lots}",
		"bad tier":       "engine: {accuracy: ultra}",
		"bad psm":        "engine: {page_seg_mode: 42}",
	}

	for name, content := range tests {
		if _, err := Parse([]byte(content)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestLoad_ShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load("../../../config.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if ec.MaxFileSize != domain.DefaultMaxFileSize {
		t.Errorf("Expected max file size %d, got %d", domain.DefaultMaxFileSize, ec.MaxFileSize)
	}
	if ec.MaxMemory != domain.DefaultMaxMemory {
		t.Errorf("Expected max memory %d, got %d", domain.DefaultMaxMemory, ec.MaxMemory)
	}
	for f, want := range domain.DefaultFormatLimits {
		if got := ec.FormatLimits[f]; got != want {
			t.Errorf("Expected %s limit %d, got %d", f, want, got)
		}
	}
	if got := cfg.RecoveryPolicy(); got != domain.DefaultRecoveryPolicy {
		t.Errorf("Expected default recovery policy, got %+v", got)
	}
}
