package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.GetServerAddr() != "0.0.0.0:8084" {
		t.Fatalf("GetServerAddr()=%q", cfg.GetServerAddr())
	}
	if cfg.Device.PositionStreamInterval != 500*time.Millisecond {
		t.Fatalf("PositionStreamInterval=%v", cfg.Device.PositionStreamInterval)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatalf("environment=%q", cfg.App.Environment)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
logging:
  level: debug
devices:
  - brand: YAAN
    model: YL3040
    port: /dev/ttyUSB0
    baud_rate: 9600
    address: 1
`)
	t.Setenv("HAMLINK_APP_ENVIRONMENT", "production")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.Server.Port != "9000" || cfg.Logging.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if !cfg.IsProduction() {
		t.Fatalf("env override not applied: %q", cfg.App.Environment)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Model != "YL3040" || cfg.Devices[0].BaudRate != 9600 {
		t.Fatalf("Devices=%+v", cfg.Devices)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"bad environment", "app:\n  environment: moon\n"},
		{"device without port", "devices:\n  - brand: YAAN\n    model: YL3040\n"},
		{"bad address", "devices:\n  - brand: YAAN\n    model: YL3040\n    port: /dev/x\n    address: 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("Load() err=nil, want validation error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() err=nil for missing explicit file")
	}
}
