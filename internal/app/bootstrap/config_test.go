package bootstrap

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every variable LoadConfig reads so host settings do not leak in.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DB_URL", "POSTGRES_URL", "REDIS_URL", "NATS_URL", "NATS_SUBJECT_PREFIX", "NATS_CREDENTIALS_FILE",
		"KMS_REGION", "AWS_REGION", "KMS_KEY_ID", "INTEGRATION_JWT_PUBLIC_KEY_PEM", "INTEGRATION_JWT_KEY_ID",
		"INTEGRATION_JWT_AUDIENCE", "INTEGRATION_JWT_ALLOW_EPHEMERAL", "HTTP_PORT", "GRPC_PORT", "DB_MAX_CONNS",
		"SIGNATURE_LOOKAHEAD", "OFFLINE_COMPONENT_LENGTH", "PROXIMITY_STEP_COUNT", "PROXIMITY_OTP_LENGTH",
		"AUDIT_LOG_LIMIT", "NATS_MAX_RECONNECTS", "PROXIMITY_STEP_SECONDS", "APP_VERSION_CACHE_TTL_SECONDS",
		"NATS_RECONNECT_WAIT_SECONDS", "OUTBOX_POLL_SECONDS", "OUTBOX_BATCH_SIZE", "OUTBOX_CLAIM_TTL_SECONDS",
		"OUTBOX_MAX_RETRIES", "SERVER_KEY_MASTER_KEY",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfig(t, `
service:
  http_port: 8181
dependencies:
  postgres_url: postgres://file/db
  nats_url: nats://file:4222
signature:
  lookahead: 12
  offline_component_length: 6
  proximity:
    step_length_seconds: 60
    step_count: 2
security:
  integration_jwt_audience: signature-api
events:
  subject_prefix: mesh.activations
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, "nats://file:4222", cfg.NATSURL)
	assert.Equal(t, 12, cfg.SignatureLookahead)
	assert.Equal(t, 6, cfg.OfflineComponentLength)
	assert.Equal(t, time.Minute, cfg.ProximityStepLength)
	assert.Equal(t, 2, cfg.ProximityStepCount)
	assert.Equal(t, 8, cfg.ProximityOTPLength)
	assert.Equal(t, 1000, cfg.AuditLogLimit)
	assert.Equal(t, "signature-api", cfg.IntegrationJWTAudience)
	assert.Equal(t, "mesh.activations", cfg.NATSSubjectPrefix)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfig(t, "dependencies:\n  postgres_url: postgres://file/db\nsignature:\n  lookahead: 12\n")
	masterKey := make([]byte, 32)
	t.Setenv("DB_URL", "postgres://env/db")
	t.Setenv("SIGNATURE_LOOKAHEAD", "30")
	t.Setenv("AUDIT_LOG_LIMIT", "50")
	t.Setenv("APP_VERSION_CACHE_TTL_SECONDS", "0")
	t.Setenv("SERVER_KEY_MASTER_KEY", base64.StdEncoding.EncodeToString(masterKey))
	t.Setenv("INTEGRATION_JWT_ALLOW_EPHEMERAL", "false")
	t.Setenv("INTEGRATION_JWT_PUBLIC_KEY_PEM", "-----BEGIN PUBLIC KEY-----")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, 30, cfg.SignatureLookahead)
	assert.Equal(t, 50, cfg.AuditLogLimit)
	assert.Zero(t, cfg.AppVersionCacheTTL)
	assert.Equal(t, masterKey, cfg.ServerKeyMasterKey)
	assert.False(t, cfg.AllowEphemeralJWT)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("POSTGRES_URL", "postgres://env/db")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.SignatureLookahead)
	assert.Equal(t, 30*time.Second, cfg.ProximityStepLength)
	assert.Equal(t, "activations", cfg.NATSSubjectPrefix)
	assert.True(t, cfg.AllowEphemeralJWT)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database", env: map[string]string{}},
		{name: "lookahead too large", env: map[string]string{"DB_URL": "postgres://x", "SIGNATURE_LOOKAHEAD": "65"}},
		{name: "component length too small", env: map[string]string{"DB_URL": "postgres://x", "OFFLINE_COMPONENT_LENGTH": "3"}},
		{name: "jwt key required", env: map[string]string{"DB_URL": "postgres://x", "INTEGRATION_JWT_ALLOW_EPHEMERAL": "false"}},
		{name: "proximity step count too large", env: map[string]string{"DB_URL": "postgres://x", "PROXIMITY_STEP_COUNT": "11"}},
		{name: "proximity step length too large", env: map[string]string{"DB_URL": "postgres://x", "PROXIMITY_STEP_SECONDS": "3601"}},
		{name: "bad master key", env: map[string]string{"DB_URL": "postgres://x", "SERVER_KEY_MASTER_KEY": "%%%"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_URL", "postgres://x")

	_, err := LoadConfig(writeConfig(t, "service: [unclosed"))
	require.Error(t, err)
}

func TestLoadConfigDefaultFile(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "M04-Activation-Signature-Service", cfg.ServiceID)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "m04-activation-signature-service", cfg.IntegrationJWTAudience)
}

func TestEnvParsersFallBack(t *testing.T) {
	t.Setenv("M04_TEST_INT", "abc")
	t.Setenv("M04_TEST_BOOL", "maybe")
	assert.Equal(t, 7, envInt("M04_TEST_INT", 7))
	assert.True(t, envBool("M04_TEST_BOOL", true))

	t.Setenv("M04_TEST_INT", "42")
	t.Setenv("M04_TEST_BOOL", "no")
	assert.Equal(t, 42, envInt("M04_TEST_INT", 7))
	assert.False(t, envBool("M04_TEST_BOOL", true))
}
