package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sporelab/mycelia-core/internal/infrastructure/config"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("MYCELIA_CONFIG")
	defer os.Setenv("MYCELIA_CONFIG", originalEnv)

	os.Setenv("MYCELIA_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingJWTSecret verifies run fails validation when no JWT
// secret is configured.
func TestRun_MissingJWTSecret(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: test-farm

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  mode: simulated

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MYCELIA_CONFIG")
	defer os.Setenv("MYCELIA_CONFIG", originalEnv)
	os.Setenv("MYCELIA_CONFIG", configPath)

	// Ensure no secret leaks in from the environment.
	originalSecret := os.Getenv("MYCELIA_JWT_SECRET")
	defer os.Setenv("MYCELIA_JWT_SECRET", originalSecret)
	os.Unsetenv("MYCELIA_JWT_SECRET")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
}

// TestGetConfigPath verifies environment variable override behaviour.
func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("MYCELIA_CONFIG")
	defer os.Setenv("MYCELIA_CONFIG", originalEnv)

	os.Unsetenv("MYCELIA_CONFIG")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	os.Setenv("MYCELIA_CONFIG", "/etc/mycelia/config.yaml")
	if got := getConfigPath(); got != "/etc/mycelia/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

// TestTransportConfig verifies the config mapping preserves broker and
// reconnect settings.
func TestTransportConfig(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Mode: "broker",
			Broker: config.MQTTBrokerConfig{
				Host:     "mqtt.local",
				Port:     8883,
				TLS:      true,
				ClientID: "mycelia-test",
			},
			Auth: config.MQTTAuthConfig{
				Username: "core",
				Password: "secret",
			},
			QoS: 2,
			Reconnect: config.MQTTReconnectConfig{
				InitialDelay: 2,
				MaxDelay:     30,
			},
		},
	}

	tc := transportConfig(cfg)

	if tc.Mode != "broker" || tc.Host != "mqtt.local" || tc.Port != 8883 {
		t.Errorf("broker settings not mapped: %+v", tc)
	}
	if !tc.TLS || tc.ClientID != "mycelia-test" {
		t.Errorf("TLS/client settings not mapped: %+v", tc)
	}
	if tc.Username != "core" || tc.Password != "secret" {
		t.Errorf("auth settings not mapped: %+v", tc)
	}
	if tc.QoS != 2 || tc.ReconnectInitialDelay != 2 || tc.ReconnectMaxDelay != 30 {
		t.Errorf("qos/reconnect settings not mapped: %+v", tc)
	}
}
