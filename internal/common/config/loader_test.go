package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
camunda:
  broker_address: localhost:26500
ledger:
  driver: memory
token:
  secret: 0123456789abcdef0123
storage:
  minio:
    endpoint: localhost:9000
workers:
  issue-certificate:
    enabled: true
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddress)
	assert.Equal(t, LedgerDriverMemory, cfg.Ledger.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Ledger.CertificateValidityDuration())
	assert.Equal(t, "certificates", cfg.Storage.Minio.Bucket)
	assert.Equal(t, time.Hour, cfg.Storage.Minio.PresignExpiryDuration())
	assert.Equal(t, 1, cfg.Issuance.PrepareWorkers)
	assert.Equal(t, LockDriverLocal, cfg.Issuance.LockDriver)
	assert.Equal(t, 256, cfg.Notifications.QueueSize)
	assert.Equal(t, "json", cfg.Logging.Format)

	w := cfg.Workers["issue-certificate"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_CERT_SECRET", "expanded-secret-value-1234")
	body := `
camunda:
  broker_address: localhost:26500
ledger:
  driver: leveldb
token:
  secret: ${TEST_CERT_SECRET}
storage:
  minio:
    endpoint: localhost:9000
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "expanded-secret-value-1234", cfg.Token.Secret)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "missing broker",
			body: `
ledger: {driver: memory}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
`,
			wantErr: "camunda.broker_address",
		},
		{
			name: "unknown ledger driver",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: mongo}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
`,
			wantErr: "ledger.driver",
		},
		{
			name: "postgres without host",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: postgres}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
`,
			wantErr: "database.postgres.host",
		},
		{
			name: "short secret",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: memory}
token: {secret: short}
storage: {minio: {endpoint: localhost:9000}}
`,
			wantErr: "token.secret",
		},
		{
			name: "redis lock without address",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: memory}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
issuance: {lock_driver: redis}
`,
			wantErr: "database.redis.address",
		},
		{
			name: "lock ttl not above stage timeout",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: memory}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
issuance: {stage_timeout: 20000, lock_ttl: 20000}
`,
			wantErr: "issuance.lock_ttl",
		},
		{
			name: "default lock ttl below raised stage timeout",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: memory}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
issuance: {stage_timeout: 45000}
`,
			wantErr: "must exceed issuance.stage_timeout",
		},
		{
			name: "webhook without url",
			body: `
camunda: {broker_address: localhost:26500}
ledger: {driver: memory}
token: {secret: 0123456789abcdef0123}
storage: {minio: {endpoint: localhost:9000}}
notifications: {webhook: {enabled: true}}
`,
			wantErr: "notifications.webhook.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NOTIFY_LINK", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_LockTTLAboveStageTimeout(t *testing.T) {
	body := minimalConfig + `
issuance:
  lock_driver: local
  stage_timeout: 20000
  lock_ttl: 20001
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Greater(t, cfg.Issuance.LockTTL, cfg.Issuance.StageTimeout)
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}
	w := GetWorkerConfig(cfg, "unknown-worker")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
