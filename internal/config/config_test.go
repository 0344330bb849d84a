package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TemplateDirectory = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}
	if cfg.ServerName != "mcp-pdf-signer" {
		t.Errorf("Expected default server name to be 'mcp-pdf-signer', got '%s'", cfg.ServerName)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}
	if cfg.MaxUploadSize != 2*1024*1024 {
		t.Errorf("Expected default max upload size to be 2MB, got %d", cfg.MaxUploadSize)
	}
	if cfg.MaxDimension != 1200 {
		t.Errorf("Expected default max dimension to be 1200, got %d", cfg.MaxDimension)
	}
	if cfg.Oversample != 4 {
		t.Errorf("Expected default oversample to be 4, got %v", cfg.Oversample)
	}
	if cfg.Delivery != DeliveryDownload {
		t.Errorf("Expected default delivery to be 'download', got '%s'", cfg.Delivery)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("Expected default fetch timeout to be 30s, got %v", cfg.FetchTimeout)
	}
	if cfg.RedisURL != "" {
		t.Errorf("Expected no Redis by default, got '%s'", cfg.RedisURL)
	}

	currentDir, _ := os.Getwd()
	if cfg.TemplateDirectory != currentDir {
		t.Errorf("Expected default template directory to be '%s', got '%s'", currentDir, cfg.TemplateDirectory)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "server mode", modify: func(c *Config) { c.Mode = ModeServer }},
		{
			name:   "submit delivery",
			modify: func(c *Config) { c.Delivery = DeliverySubmit; c.SubmitURL = "https://example.com/signed" },
		},
		{name: "manual delivery", modify: func(c *Config) { c.Delivery = DeliveryManual }},
		{name: "redis cache", modify: func(c *Config) { c.RedisURL = "redis://localhost:6379/0" }},
		{
			name:    "invalid mode",
			modify:  func(c *Config) { c.Mode = "invalid" },
			wantErr: "mode must be either 'stdio' or 'server'",
		},
		{
			name:    "invalid port in server mode",
			modify:  func(c *Config) { c.Mode = ModeServer; c.Port = 0 },
			wantErr: "port must be between 1 and 65535",
		},
		{
			name:   "port ignored in stdio mode",
			modify: func(c *Config) { c.Port = 0 },
		},
		{
			name:    "empty template directory",
			modify:  func(c *Config) { c.TemplateDirectory = "" },
			wantErr: "template directory cannot be empty",
		},
		{
			name:    "zero max file size",
			modify:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: "maximum file size must be positive",
		},
		{
			name:    "zero max upload size",
			modify:  func(c *Config) { c.MaxUploadSize = 0 },
			wantErr: "maximum upload size must be positive",
		},
		{
			name:    "zero max dimension",
			modify:  func(c *Config) { c.MaxDimension = 0 },
			wantErr: "maximum dimension must be positive",
		},
		{
			name:    "oversample below one",
			modify:  func(c *Config) { c.Oversample = 0.5 },
			wantErr: "oversample must be at least 1",
		},
		{
			name:    "zero fetch timeout",
			modify:  func(c *Config) { c.FetchTimeout = 0 },
			wantErr: "fetch timeout must be positive",
		},
		{
			name:    "negative cache size",
			modify:  func(c *Config) { c.CacheSize = -1 },
			wantErr: "cache size cannot be negative",
		},
		{
			name:    "unknown delivery",
			modify:  func(c *Config) { c.Delivery = "email" },
			wantErr: "invalid delivery: email",
		},
		{
			name:    "submit without url",
			modify:  func(c *Config) { c.Delivery = DeliverySubmit },
			wantErr: "submit delivery requires a submit URL",
		},
		{
			name:    "submit url without scheme",
			modify:  func(c *Config) { c.Delivery = DeliverySubmit; c.SubmitURL = "example.com/signed" },
			wantErr: "invalid submit URL",
		},
		{
			name:    "redis without ttl",
			modify:  func(c *Config) { c.RedisURL = "redis://localhost:6379"; c.CacheTTL = 0 },
			wantErr: "cache TTL must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Config.Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Config.Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{
		Host: "192.168.1.1",
		Port: 9090,
	}

	expected := "192.168.1.1:9090"
	if got := cfg.Address(); got != expected {
		t.Errorf("Config.Address() = %v, want %v", got, expected)
	}
}

func TestConfigIsDebug(t *testing.T) {
	tests := []struct {
		logLevel string
		want     bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("Config.IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := &Config{
		Mode:              "server",
		Host:              "localhost",
		Port:              8080,
		TemplateDirectory: "/home/user/templates",
		LogLevel:          "debug",
		MaxFileSize:       1024,
		Delivery:          DeliverySubmit,
		RedisURL:          "redis://:secret@localhost:6379",
	}

	result := cfg.String()

	for _, substr := range []string{
		"Mode: server",
		"Host: localhost",
		"Port: 8080",
		"TemplateDirectory: /home/user/templates",
		"LogLevel: debug",
		"MaxFileSize: 1024",
		"Delivery: submit",
		"Cache: redis",
	} {
		if !strings.Contains(result, substr) {
			t.Errorf("Config.String() result doesn't contain expected substring: %s\nGot: %s", substr, result)
		}
	}
	if strings.Contains(result, "secret") {
		t.Errorf("Config.String() leaked the Redis URL: %s", result)
	}
}

func TestConfigValidateCreatesDirectories(t *testing.T) {
	parent := t.TempDir()
	templates := filepath.Join(parent, "templates", "nested")
	out := filepath.Join(parent, "signed")

	cfg := DefaultConfig()
	cfg.TemplateDirectory = templates
	cfg.OutputDirectory = out

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Config.Validate() unexpected error: %v", err)
	}
	for _, dir := range []string{templates, out} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Directory %s was not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestConfigValidateDirectoryIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.TemplateDirectory = filepath.Join(file, "child")
	if err := cfg.Validate(); err == nil {
		t.Error("Config.Validate() expected error for a directory below a file")
	}
}

func TestConfigValidateLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig(t)
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("Config.Validate() with log level %q: unexpected error %v", level, err)
		}
	}

	for _, level := range []string{"DEBUG", "INFO", "trace", "fatal", ""} {
		cfg := validConfig(t)
		cfg.LogLevel = level
		err := cfg.Validate()
		if err == nil {
			t.Errorf("Config.Validate() with log level %q: expected error", level)
			continue
		}
		if !strings.Contains(err.Error(), "invalid log level") {
			t.Errorf("Config.Validate() with log level %q: error = %v", level, err)
		}
	}
}

func TestConfigModes(t *testing.T) {
	tests := []struct {
		mode       string
		wantServer bool
		wantStdio  bool
	}{
		{"server", true, false},
		{"stdio", false, true},
		{"invalid", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode}
			if got := cfg.IsServerMode(); got != tt.wantServer {
				t.Errorf("Config.IsServerMode() = %v, want %v", got, tt.wantServer)
			}
			if got := cfg.IsStdioMode(); got != tt.wantStdio {
				t.Errorf("Config.IsStdioMode() = %v, want %v", got, tt.wantStdio)
			}
		})
	}
}

func TestConfigValidateInspector(t *testing.T) {
	for _, lib := range []string{"pdfcpu", "ledongthuc"} {
		cfg := validConfig(t)
		cfg.Inspector = lib
		if err := cfg.Validate(); err != nil {
			t.Errorf("Config.Validate() with inspector %q: unexpected error %v", lib, err)
		}
	}

	for _, lib := range []string{"poppler", "PDFCPU", ""} {
		cfg := validConfig(t)
		cfg.Inspector = lib
		err := cfg.Validate()
		if err == nil {
			t.Errorf("Config.Validate() with inspector %q: expected error", lib)
			continue
		}
		if !strings.Contains(err.Error(), "invalid inspector") {
			t.Errorf("Config.Validate() with inspector %q: error = %v", lib, err)
		}
	}
}
