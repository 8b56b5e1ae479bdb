package ports

import (
	"context"
	"slices"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// ServerKeyContext binds an encrypted server private key to its owner.
type ServerKeyContext struct {
	Mode         domain.KeyEncryptionMode
	UserID       string
	ActivationID string
}

// KeyProtector decrypts server private keys stored at rest. Plaintext keys never leave the caller.
type KeyProtector interface {
	DecryptServerPrivateKey(ctx context.Context, keyCtx ServerKeyContext, stored []byte) ([]byte, error)
}

// Scopes granted to integrations in their bearer token.
const (
	ScopeSignatureVerify = "signature:verify"
	ScopeVaultUnlock     = "vault:unlock"
	ScopeActivationAdmin = "activation:admin"
	ScopeAuditRead       = "audit:read"
)

// IntegrationClaims identify a calling integration (another backend service).
type IntegrationClaims struct {
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
}

// HasScope reports whether the integration was granted scope.
func (c IntegrationClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// IntegrationTokenVerifier validates bearer tokens presented by integrations.
type IntegrationTokenVerifier interface {
	ParseAndValidate(token string) (IntegrationClaims, error)
}
