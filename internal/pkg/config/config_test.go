package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  serviceName: inventory-service
  port: 9090
  expiryDelay: 90s
  strictInvariants: true
  admissionPolicy: "total_quantity <= 10"
log:
  level: debug
infra:
  kafka:
    brokers: ["k1:9092", "k2:9092"]
seedProducts:
  - id: P1
    name: Keyboard
    count: 2
  - id: P2
    name: Mouse
    count: 5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.App.ExpiryDelay)
	assert.Equal(t, ExpiryBackendTimer, cfg.App.ExpiryBackend)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "inventory.order-events", cfg.Infra.Kafka.EventTopic)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 90*time.Second, cfg.App.ExpiryDelay)
	assert.True(t, cfg.App.StrictInvariants)
	assert.Equal(t, "total_quantity <= 10", cfg.App.AdmissionPolicy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, []ProductSeed{{ID: "P1", Name: "Keyboard", Count: 2}, {ID: "P2", Name: "Mouse", Count: 5}}, cfg.Seed)
	// 文件中未出现的字段保留默认值
	assert.Equal(t, time.Second, cfg.Infra.Redis.PollInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("EXPIRY_DELAY", "2s")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("STRICT_INVARIANTS", "false")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, 2*time.Second, cfg.App.ExpiryDelay)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Infra.Kafka.Brokers)
	assert.False(t, cfg.App.StrictInvariants)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "app: [unterminated"},
		{name: "zero delay", body: "app:\n  expiryDelay: 0s\n"},
		{name: "unknown backend", body: "app:\n  expiryBackend: cron\n"},
		{name: "redis without addr", body: "app:\n  expiryBackend: redis\n"},
		{name: "duplicate seed", body: "seedProducts:\n  - {id: A, count: 1}\n  - {id: A, count: 2}\n"},
		{name: "negative seed", body: "seedProducts:\n  - {id: A, count: -1}\n"},
		{name: "bad port env", body: "", env: map[string]string{"HTTP_PORT": "eighty"}},
		{name: "bad delay env", body: "", env: map[string]string{"EXPIRY_DELAY": "soon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
