package bootstrap

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M04.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	MaxDBConns         int32
	AppVersionCacheTTL time.Duration

	SignatureLookahead     int
	OfflineComponentLength int
	ProximityStepLength    time.Duration
	ProximityStepCount     int
	ProximityOTPLength     int
	AuditLogLimit          int

	ServerKeyMasterKey []byte
	KMSRegion          string
	KMSKeyID           string

	IntegrationJWTPublicKeyPEM string
	IntegrationJWTKeyID        string
	IntegrationJWTAudience     string
	AllowEphemeralJWT          bool

	NATSSubjectPrefix   string
	NATSCredentialsFile string
	NATSReconnectWait   time.Duration
	NATSMaxReconnects   int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// Secrets are never read from the file.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		NATSURL     string `yaml:"nats_url"`
	} `yaml:"dependencies"`
	Signature struct {
		Lookahead              int `yaml:"lookahead"`
		OfflineComponentLength int `yaml:"offline_component_length"`
		AuditLogLimit          int `yaml:"audit_log_limit"`
		Proximity              struct {
			StepLengthSeconds int `yaml:"step_length_seconds"`
			StepCount         int `yaml:"step_count"`
			OTPLength         int `yaml:"otp_length"`
		} `yaml:"proximity"`
	} `yaml:"signature"`
	Security struct {
		KMSRegion              string `yaml:"kms_region"`
		KMSKeyID               string `yaml:"kms_key_id"`
		IntegrationJWTKeyID    string `yaml:"integration_jwt_key_id"`
		IntegrationJWTAudience string `yaml:"integration_jwt_audience"`
	} `yaml:"security"`
	Events struct {
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"events"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:              "M04-Activation-Signature-Service",
		HTTPPort:               8080,
		GRPCPort:               9090,
		MaxDBConns:             20,
		AppVersionCacheTTL:     5 * time.Minute,
		SignatureLookahead:     20,
		OfflineComponentLength: 8,
		ProximityStepLength:    30 * time.Second,
		ProximityStepCount:     1,
		ProximityOTPLength:     8,
		AuditLogLimit:          1000,
		KMSRegion:              "eu-central-1",
		IntegrationJWTKeyID:    "m04-integration-key-1",
		AllowEphemeralJWT:      true,
		NATSSubjectPrefix:      "activations",
		NATSReconnectWait:      2 * time.Second,
		NATSMaxReconnects:      60,
		OutboxPollInterval:     2 * time.Second,
		OutboxBatchSize:        100,
		OutboxClaimTTL:         30 * time.Second,
		OutboxMaxRetries:       5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.NATSURL = envOrDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	cfg.NATSCredentialsFile = envOrDefault("NATS_CREDENTIALS_FILE", cfg.NATSCredentialsFile)
	cfg.KMSRegion = envOrDefault("KMS_REGION", envOrDefault("AWS_REGION", cfg.KMSRegion))
	cfg.KMSKeyID = envOrDefault("KMS_KEY_ID", cfg.KMSKeyID)
	cfg.IntegrationJWTPublicKeyPEM = envOrDefault("INTEGRATION_JWT_PUBLIC_KEY_PEM", cfg.IntegrationJWTPublicKeyPEM)
	cfg.IntegrationJWTKeyID = envOrDefault("INTEGRATION_JWT_KEY_ID", cfg.IntegrationJWTKeyID)
	cfg.IntegrationJWTAudience = envOrDefault("INTEGRATION_JWT_AUDIENCE", cfg.IntegrationJWTAudience)
	cfg.AllowEphemeralJWT = envBool("INTEGRATION_JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.SignatureLookahead = envInt("SIGNATURE_LOOKAHEAD", cfg.SignatureLookahead)
	cfg.OfflineComponentLength = envInt("OFFLINE_COMPONENT_LENGTH", cfg.OfflineComponentLength)
	cfg.ProximityStepCount = envInt("PROXIMITY_STEP_COUNT", cfg.ProximityStepCount)
	cfg.ProximityOTPLength = envInt("PROXIMITY_OTP_LENGTH", cfg.ProximityOTPLength)
	cfg.AuditLogLimit = envInt("AUDIT_LOG_LIMIT", cfg.AuditLogLimit)
	cfg.NATSMaxReconnects = envInt("NATS_MAX_RECONNECTS", cfg.NATSMaxReconnects)

	cfg.ProximityStepLength = time.Duration(envInt("PROXIMITY_STEP_SECONDS", int(cfg.ProximityStepLength.Seconds()))) * time.Second
	cfg.AppVersionCacheTTL = time.Duration(envInt("APP_VERSION_CACHE_TTL_SECONDS", int(cfg.AppVersionCacheTTL.Seconds()))) * time.Second
	cfg.NATSReconnectWait = time.Duration(envInt("NATS_RECONNECT_WAIT_SECONDS", int(cfg.NATSReconnectWait.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if encoded := os.Getenv("SERVER_KEY_MASTER_KEY"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Config{}, fmt.Errorf("decode SERVER_KEY_MASTER_KEY: %w", err)
		}
		cfg.ServerKeyMasterKey = key
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.SignatureLookahead < 1 || cfg.SignatureLookahead > 64 {
		return Config{}, fmt.Errorf("SIGNATURE_LOOKAHEAD must be between 1 and 64, got %d", cfg.SignatureLookahead)
	}
	if cfg.OfflineComponentLength < 4 || cfg.OfflineComponentLength > 8 {
		return Config{}, fmt.Errorf("OFFLINE_COMPONENT_LENGTH must be between 4 and 8, got %d", cfg.OfflineComponentLength)
	}
	if cfg.ProximityStepCount < 1 || cfg.ProximityStepCount > 10 {
		return Config{}, fmt.Errorf("PROXIMITY_STEP_COUNT must be between 1 and 10, got %d", cfg.ProximityStepCount)
	}
	if cfg.ProximityStepLength < time.Second || cfg.ProximityStepLength > time.Hour {
		return Config{}, fmt.Errorf("PROXIMITY_STEP_SECONDS must be between 1 and 3600, got %s", cfg.ProximityStepLength)
	}
	if cfg.IntegrationJWTPublicKeyPEM == "" && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing INTEGRATION_JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.NATSURL != "" {
		cfg.NATSURL = f.Dependencies.NATSURL
	}
	if f.Signature.Lookahead > 0 {
		cfg.SignatureLookahead = f.Signature.Lookahead
	}
	if f.Signature.OfflineComponentLength > 0 {
		cfg.OfflineComponentLength = f.Signature.OfflineComponentLength
	}
	if f.Signature.AuditLogLimit > 0 {
		cfg.AuditLogLimit = f.Signature.AuditLogLimit
	}
	if f.Signature.Proximity.StepLengthSeconds > 0 {
		cfg.ProximityStepLength = time.Duration(f.Signature.Proximity.StepLengthSeconds) * time.Second
	}
	if f.Signature.Proximity.StepCount > 0 {
		cfg.ProximityStepCount = f.Signature.Proximity.StepCount
	}
	if f.Signature.Proximity.OTPLength > 0 {
		cfg.ProximityOTPLength = f.Signature.Proximity.OTPLength
	}
	if f.Security.KMSRegion != "" {
		cfg.KMSRegion = f.Security.KMSRegion
	}
	if f.Security.KMSKeyID != "" {
		cfg.KMSKeyID = f.Security.KMSKeyID
	}
	if f.Security.IntegrationJWTKeyID != "" {
		cfg.IntegrationJWTKeyID = f.Security.IntegrationJWTKeyID
	}
	if f.Security.IntegrationJWTAudience != "" {
		cfg.IntegrationJWTAudience = f.Security.IntegrationJWTAudience
	}
	if f.Events.SubjectPrefix != "" {
		cfg.NATSSubjectPrefix = f.Events.SubjectPrefix
	}
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
