package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.toml"))
	if err == nil {
		_ = cfg
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 9091
log_level = "debug"
data_dir = "` + dir + `"

[engines.test]
name = "Test"
api_base = "https://test.example.com"
key_ref = "env:TEST_KEY"
languages = ["en"]
enabled = true
priority = 1
timeout = 30

[queue]
default_engine = "test"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 9091 {
		t.Errorf("DashboardPort: got %d, want 9091", cfg.Server.DashboardPort)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if _, ok := cfg.Engines["test"]; !ok {
		t.Error("expected 'test' engine to be configured")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 7678
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("MANGATL_SERVER_DASHBOARD_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 8888 {
		t.Errorf("DashboardPort with env override: got %d, want 8888", cfg.Server.DashboardPort)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
dashboard_port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_ValidationFailure_UnknownDefaultEngine(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad-engine.toml")

	content := `
[server]
dashboard_port = 7678
log_level = "info"
data_dir = "` + dir + `"

[queue]
default_engine = "nonexistent"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for unknown default engine")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.DashboardPort != DefaultDashboardPort {
		t.Errorf("DashboardPort: got %d, want %d", cfg.Server.DashboardPort, DefaultDashboardPort)
	}
	if cfg.Resilience.RetryMaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("RetryMaxAttempts: got %d, want %d", cfg.Resilience.RetryMaxAttempts, DefaultRetryMaxAttempts)
	}
	if cfg.Resilience.CBEnabled != true {
		t.Error("CBEnabled: got false, want true")
	}
	if cfg.Server.MaxResponseSize != DefaultMaxResponseSize {
		t.Errorf("MaxResponseSize: got %d, want %d", cfg.Server.MaxResponseSize, DefaultMaxResponseSize)
	}
	if cfg.Queue.MaxConcurrentTasks != DefaultMaxConcurrentTasks {
		t.Errorf("MaxConcurrentTasks: got %d, want %d", cfg.Queue.MaxConcurrentTasks, DefaultMaxConcurrentTasks)
	}
	if cfg.Queue.MaxQueueSize != DefaultMaxQueueSize {
		t.Errorf("MaxQueueSize: got %d, want %d", cfg.Queue.MaxQueueSize, DefaultMaxQueueSize)
	}
	if cfg.Cache.WebPQuality != DefaultWebPQuality {
		t.Errorf("WebPQuality: got %d, want %d", cfg.Cache.WebPQuality, DefaultWebPQuality)
	}
	if _, ok := cfg.Engines[cfg.Queue.DefaultEngine]; !ok {
		t.Errorf("default engine %q is not among configured engines", cfg.Queue.DefaultEngine)
	}
}

func TestEngineConfig_TimeoutDuration(t *testing.T) {
	tests := []struct {
		timeout int
		wantSec int
	}{
		{0, 30},  // default
		{-1, 30}, // negative defaults
		{60, 60},
		{10, 10},
	}

	for _, tt := range tests {
		e := EngineConfig{Timeout: tt.timeout}
		got := e.TimeoutDuration().Seconds()
		if int(got) != tt.wantSec {
			t.Errorf("TimeoutDuration(%d): got %v, want %ds", tt.timeout, got, tt.wantSec)
		}
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
dashboard_port = 9998
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.DashboardPort != 9998 {
		t.Errorf("DashboardPort after import: got %d, want 9998", cfg.Server.DashboardPort)
	}

	// Reset to default to not affect other tests.
	set(DefaultConfig())
}
