// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

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
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
  public_url: "https://registry.example.com"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
  request_timeout: "5s"

token:
  base_url: "http://localhost:9091"
  min_balance: 100

sync:
  max_retries: 5
  retry_backoff: "500ms"
  job_retention: "1h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("expected http_addr 0.0.0.0:8080, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Server.PublicURL != "https://registry.example.com" {
		t.Errorf("unexpected public_url: %s", cfg.Server.PublicURL)
	}
	if cfg.Reputation.ServiceID != "reputation.service" {
		t.Errorf("unexpected service_id: %s", cfg.Reputation.ServiceID)
	}
	if cfg.Reputation.RequestTimeout != 5*time.Second {
		t.Errorf("expected request_timeout 5s, got %v", cfg.Reputation.RequestTimeout)
	}
	if cfg.Token.MinBalance != 100 {
		t.Errorf("expected min_balance 100, got %d", cfg.Token.MinBalance)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.RetryBackoff != 500*time.Millisecond {
		t.Errorf("expected retry_backoff 500ms, got %v", cfg.Sync.RetryBackoff)
	}
	if cfg.Sync.JobRetention != time.Hour {
		t.Errorf("expected job_retention 1h, got %v", cfg.Sync.JobRetention)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.PublicURL != "http://localhost:8080" {
		t.Errorf("expected derived public_url, got %s", cfg.Server.PublicURL)
	}
	if cfg.Reputation.RequestTimeout != 10*time.Second {
		t.Errorf("expected default request_timeout, got %v", cfg.Reputation.RequestTimeout)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("expected default max_retries, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.JobRetention != 24*time.Hour {
		t.Errorf("expected default job_retention, got %v", cfg.Sync.JobRetention)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("REGISTRY_TEST_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${REGISTRY_TEST_SECRET}"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("expected env-expanded secret, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "localhost:8080"
auth:
  jwt_secret: "s"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
`,
			wantErr: "database.path",
		},
		{
			name: "missing jwt secret",
			content: `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
`,
			wantErr: "auth.jwt_secret",
		},
		{
			name: "missing reputation service id",
			content: `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
reputation:
  base_url: "http://localhost:9090"
`,
			wantErr: "reputation.service_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
reputation:
  base_url: "http://localhost:9090"
  service_id: "reputation.service"
  request_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected duration parse error")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("expected error mentioning request_timeout, got %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
