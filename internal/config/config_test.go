package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Test with example config file (should work for basic structure validation)
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Wheel.ManagementDTE != 21 {
		t.Errorf("ManagementDTE = %d, want 21", cfg.Wheel.ManagementDTE)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	const key = "WHEEL_TRACKER_TEST_TOKEN"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	yml := "server:\n  auth_token: ${" + key + "}\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.AuthToken != "from-dotenv" {
		t.Errorf("AuthToken = %q, want from-dotenv", cfg.Server.AuthToken)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Environment.Mode != "development" || cfg.Environment.LogLevel != "info" {
		t.Errorf("unexpected environment defaults: %+v", cfg.Environment)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Quotes.Provider != "none" {
		t.Errorf("Provider = %q, want none", cfg.Quotes.Provider)
	}
	if cfg.GetQuoteTimeout() != 3*time.Second {
		t.Errorf("GetQuoteTimeout = %v, want 3s", cfg.GetQuoteTimeout())
	}
	if cfg.GetQuoteCacheTTL() != 30*time.Second {
		t.Errorf("GetQuoteCacheTTL = %v, want 30s", cfg.GetQuoteCacheTTL())
	}
	if cfg.Wheel.ManagementDTE != 21 {
		t.Errorf("ManagementDTE = %d, want 21", cfg.Wheel.ManagementDTE)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestParse_StoragePathDefaults(t *testing.T) {
	tests := map[string]string{
		"json":   "data/ledger.json",
		"sqlite": "data/ledger.db",
		"SQLite": "data/ledger.db",
	}
	for driver, want := range tests {
		t.Run(driver, func(t *testing.T) {
			cfg, err := Parse([]byte("storage:\n  driver: " + driver + "\n"))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cfg.Storage.Path != want {
				t.Errorf("Path = %q, want %q", cfg.Storage.Path, want)
			}
		})
	}
}

func TestParse_TradierEndpointDefaults(t *testing.T) {
	cfg, err := Parse([]byte("quotes:\n  provider: tradier\n  api_key: k\n  sandbox: true\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Quotes.APIEndpoint != "https://sandbox.tradier.com/v1" {
		t.Errorf("APIEndpoint = %q", cfg.Quotes.APIEndpoint)
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("server:\n  prot: 9000\n"))
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad mode", "environment:\n  mode: paper\n", "environment.mode"},
		{"bad log level", "environment:\n  log_level: trace\n", "environment.log_level"},
		{"bad log format", "environment:\n  log_format: xml\n", "environment.log_format"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad request timeout", "server:\n  request_timeout: soon\n", "server.request_timeout"},
		{"production needs token", "environment:\n  mode: production\n", "server.auth_token"},
		{"bad driver", "storage:\n  driver: postgres\n", "storage.driver"},
		{"bad provider", "quotes:\n  provider: yahoo\n", "quotes.provider"},
		{"tradier needs key", "quotes:\n  provider: tradier\n", "quotes.api_key"},
		{"negative quote timeout", "quotes:\n  timeout: -1s\n", "quotes.timeout"},
		{"too many retries", "quotes:\n  max_retries: 9\n", "quotes.max_retries"},
		{"bad failure ratio", "quotes:\n  circuit_breaker:\n    failure_ratio: 1.5\n", "failure_ratio"},
		{"bad breaker interval", "quotes:\n  circuit_breaker:\n    interval: often\n", "circuit_breaker.interval"},
		{"negative upload size", "import:\n  max_upload_bytes: -1\n", "import.max_upload_bytes"},
		{"negative burst", "import:\n  burst: -2\n", "import.burst"},
		{"negative management dte", "wheel:\n  management_dte: -5\n", "wheel.management_dte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.IsProduction() {
		t.Error("Default config must not be production")
	}
	if cfg.GetRequestTimeout() != 30*time.Second || cfg.GetShutdownTimeout() != 10*time.Second {
		t.Errorf("unexpected server timeouts: %v %v", cfg.GetRequestTimeout(), cfg.GetShutdownTimeout())
	}
	if cfg.GetBreakerInterval() != 0 || cfg.GetBreakerTimeout() != 0 {
		t.Error("unset breaker durations should be zero")
	}
}
