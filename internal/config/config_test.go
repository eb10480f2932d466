// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "123456:test-token"
  poll_timeout: "45s"

database:
  path: "./credentials.db"

google:
  client_secret_file: "./client_secret.json"
  redirect_url: "https://bot.example.com:8480/oauth2callback"

callback:
  listen_addr: ":9000"

engine:
  workers: 8

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "123456:test-token" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123456:test-token")
	}
	if cfg.Telegram.PollTimeout != 45*time.Second {
		t.Errorf("Telegram.PollTimeout = %v, want %v", cfg.Telegram.PollTimeout, 45*time.Second)
	}
	if cfg.Database.Path != "./credentials.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./credentials.db")
	}
	if cfg.Google.RedirectURL != "https://bot.example.com:8480/oauth2callback" {
		t.Errorf("Google.RedirectURL = %q", cfg.Google.RedirectURL)
	}
	if cfg.Callback.ListenAddr != ":9000" {
		t.Errorf("Callback.ListenAddr = %q, want %q", cfg.Callback.ListenAddr, ":9000")
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("Engine.Workers = %d, want 8", cfg.Engine.Workers)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "123456:test-token"
database:
  path: "./credentials.db"
google:
  client_secret_file: "./client_secret.json"
  redirect_url: "https://bot.example.com/oauth2callback"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.PollTimeout != DefaultPollTimeout {
		t.Errorf("PollTimeout = %v, want default %v", cfg.Telegram.PollTimeout, DefaultPollTimeout)
	}
	if cfg.Callback.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", cfg.Callback.ListenAddr, DefaultListenAddr)
	}
	if cfg.Engine.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want default %d", cfg.Engine.Workers, DefaultWorkers)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CALGATE_TEST_TOKEN", "env-token-value")

	configPath := writeConfig(t, `
telegram:
  token: "${CALGATE_TEST_TOKEN}"
database:
  path: "./credentials.db"
google:
  client_secret_file: "./client_secret.json"
  redirect_url: "https://bot.example.com/oauth2callback"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "env-token-value" {
		t.Errorf("Telegram.Token = %q, want expanded env value", cfg.Telegram.Token)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing token",
			content: `
database:
  path: "./credentials.db"
google:
  client_secret_file: "./secret.json"
  redirect_url: "https://x/oauth2callback"
`,
			wantErr: "telegram.token",
		},
		{
			name: "missing database path",
			content: `
telegram:
  token: "t"
google:
  client_secret_file: "./secret.json"
  redirect_url: "https://x/oauth2callback"
`,
			wantErr: "database.path",
		},
		{
			name: "missing client secret",
			content: `
telegram:
  token: "t"
database:
  path: "./credentials.db"
google:
  redirect_url: "https://x/oauth2callback"
`,
			wantErr: "google.client_secret_file",
		},
		{
			name: "missing redirect url",
			content: `
telegram:
  token: "t"
database:
  path: "./credentials.db"
google:
  client_secret_file: "./secret.json"
`,
			wantErr: "google.redirect_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "t"
  poll_timeout: "not-a-duration"
database:
  path: "./credentials.db"
google:
  client_secret_file: "./secret.json"
  redirect_url: "https://x/oauth2callback"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "poll_timeout") {
		t.Errorf("Load() error = %v, want mention of poll_timeout", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
