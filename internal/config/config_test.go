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
	path := filepath.Join(t.TempDir(), "chat.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "wss://gw.example.com/chat"
  request_url: "/api/v2/chat"
  handshake_timeout: "15s"

auth:
  token_path: "/etc/coven/token"

history:
  conversation: "standup"
  disable_bootstrap: true

archive:
  enabled: true
  path: "./chat.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.URL != "wss://gw.example.com/chat" {
		t.Errorf("Gateway.URL = %q, want %q", cfg.Gateway.URL, "wss://gw.example.com/chat")
	}
	if cfg.Gateway.RequestURL != "/api/v2/chat" {
		t.Errorf("Gateway.RequestURL = %q, want %q", cfg.Gateway.RequestURL, "/api/v2/chat")
	}
	if cfg.Gateway.HandshakeTimeout != 15*time.Second {
		t.Errorf("Gateway.HandshakeTimeout = %v, want %v", cfg.Gateway.HandshakeTimeout, 15*time.Second)
	}
	if cfg.Auth.TokenPath != "/etc/coven/token" {
		t.Errorf("Auth.TokenPath = %q, want %q", cfg.Auth.TokenPath, "/etc/coven/token")
	}
	if cfg.History.Conversation != "standup" {
		t.Errorf("History.Conversation = %q, want %q", cfg.History.Conversation, "standup")
	}
	if !cfg.History.DisableBootstrap {
		t.Error("History.DisableBootstrap = false, want true")
	}
	if !cfg.Archive.Enabled {
		t.Error("Archive.Enabled = false, want true")
	}
	if cfg.Archive.Path != "./chat.db" {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, "./chat.db")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_DefaultsPreserved(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "ws://localhost:9999/chat"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.RequestURL != "/api/chat" {
		t.Errorf("Gateway.RequestURL = %q, want default %q", cfg.Gateway.RequestURL, "/api/chat")
	}
	if cfg.History.Conversation != "default" {
		t.Errorf("History.Conversation = %q, want default %q", cfg.History.Conversation, "default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
	if cfg.Archive.Enabled {
		t.Error("Archive.Enabled = true, want default false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_URL", "wss://expanded.example.com/chat")
	t.Setenv("TEST_TOKEN_PATH", "/run/secrets/token")

	configPath := writeConfig(t, `
gateway:
  url: "${TEST_GATEWAY_URL}"
auth:
  token_path: "${TEST_TOKEN_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.URL != "wss://expanded.example.com/chat" {
		t.Errorf("Gateway.URL = %q, want expanded value", cfg.Gateway.URL)
	}
	if cfg.Auth.TokenPath != "/run/secrets/token" {
		t.Errorf("Auth.TokenPath = %q, want expanded value", cfg.Auth.TokenPath)
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "ws://localhost:8080/chat"
auth:
  token_path: "${DEFINITELY_NOT_SET_VAR_12345}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.TokenPath != "" {
		t.Errorf("Auth.TokenPath = %q, want empty", cfg.Auth.TokenPath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "gateway: [unclosed")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %v, want parsing config file", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "ws://localhost:8080/chat"
  handshake_timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "handshake_timeout") {
		t.Errorf("error = %v, want handshake_timeout mention", err)
	}
}

func TestLoad_MissingGatewayURL(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for missing gateway.url")
	}
	if !strings.Contains(err.Error(), "gateway.url") {
		t.Errorf("error = %v, want gateway.url mention", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "ws://localhost:8080/chat"
logging:
  level: "loud"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error = %v, want logging.level mention", err)
	}
}

func TestLoad_ArchiveRequiresPath(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  url: "ws://localhost:8080/chat"
archive:
  enabled: true
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for archive without path")
	}
	if !strings.Contains(err.Error(), "archive.path") {
		t.Errorf("error = %v, want archive.path mention", err)
	}
}

func TestDefaultPath_EnvOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom-chat.yaml")

	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error = %v", err)
	}
	if path != "/tmp/custom-chat.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", path)
	}
}

func TestDefaultPath_XDG(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error = %v", err)
	}
	want := filepath.Join("/xdg", "coven", "chat.yaml")
	if path != want {
		t.Errorf("DefaultPath() = %q, want %q", path, want)
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}
