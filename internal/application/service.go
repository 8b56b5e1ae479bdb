package application

import (
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	defaultSignatureLookahead = 20
	maxSignatureLookahead     = 64
	defaultProximityOTPLength = 8
	defaultAuditLogLimit      = 1000
)

type Service struct {
	cfg         Config
	activations ports.ActivationRepository
	appVersions ports.ApplicationVersionRepository
	auditReads  ports.AuditReadRepository
	crypto      ports.CryptoProvider
	keys        ports.KeyProtector
	audit       *auditLogger
	nowFn       func() time.Time
}

type Dependencies struct {
	Config              Config
	Activations         ports.ActivationRepository
	ApplicationVersions ports.ApplicationVersionRepository
	AuditReads          ports.AuditReadRepository
	Crypto              ports.CryptoProvider
	KeyProtector        ports.KeyProtector
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:         normalizeConfig(deps.Config),
		activations: deps.Activations,
		appVersions: deps.ApplicationVersions,
		auditReads:  deps.AuditReads,
		crypto:      deps.Crypto,
		keys:        deps.KeyProtector,
		audit:       &auditLogger{},
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// normalizeConfig clamps settings into their supported ranges.
func normalizeConfig(cfg Config) Config {
	if cfg.SignatureLookahead <= 0 {
		cfg.SignatureLookahead = defaultSignatureLookahead
	}
	if cfg.SignatureLookahead > maxSignatureLookahead {
		cfg.SignatureLookahead = maxSignatureLookahead
	}
	if cfg.OfflineComponentLength <= 0 {
		cfg.OfflineComponentLength = domain.DefaultComponentLength
	}
	if cfg.ProximityStepLength <= 0 {
		cfg.ProximityStepLength = 30 * time.Second
	}
	if cfg.ProximityStepCount <= 0 {
		cfg.ProximityStepCount = 1
	}
	if cfg.ProximityOTPLength <= 0 {
		cfg.ProximityOTPLength = defaultProximityOTPLength
	}
	if cfg.AuditLogLimit <= 0 {
		cfg.AuditLogLimit = defaultAuditLogLimit
	}
	return cfg
}
