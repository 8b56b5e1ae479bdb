package security

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

func TestIntegrationTokensRoundTrip(t *testing.T) {
	t.Parallel()

	tokens, err := NewEphemeralIntegrationTokens("", "signature-service")
	require.NoError(t, err)

	now := time.Now()
	raw, err := tokens.Sign(ports.IntegrationClaims{
		Subject:   "payments-gateway",
		Scopes:    []string{ports.ScopeSignatureVerify, ports.ScopeVaultUnlock},
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	})
	require.NoError(t, err)

	claims, err := tokens.ParseAndValidate(raw)
	require.NoError(t, err)
	assert.Equal(t, "payments-gateway", claims.Subject)
	assert.Equal(t, "ephemeral-integration-1", claims.KeyID)
	assert.True(t, claims.HasScope(ports.ScopeVaultUnlock))
	assert.False(t, claims.HasScope(ports.ScopeAuditRead))
}

func TestIntegrationTokensRejects(t *testing.T) {
	t.Parallel()

	tokens, err := NewEphemeralIntegrationTokens("kid-1", "signature-service")
	require.NoError(t, err)
	other, err := NewEphemeralIntegrationTokens("kid-1", "another-service")
	require.NoError(t, err)
	now := time.Now()

	expired, err := tokens.Sign(ports.IntegrationClaims{Subject: "svc", IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-10 * time.Minute)})
	require.NoError(t, err)
	wrongAudience, err := other.Sign(ports.IntegrationClaims{Subject: "svc", IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)
	noSubject, err := tokens.Sign(ports.IntegrationClaims{IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"expired":        expired,
		"wrong audience": wrongAudience,
		"no subject":     noSubject,
		"garbage":        "not.a.token",
	} {
		_, err := tokens.ParseAndValidate(raw)
		require.ErrorIs(t, err, domain.ErrUnauthorized, name)
	}
}

func TestIntegrationTokenVerifierFromPEM(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralIntegrationTokens("kid-2", "")
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(signer.publicKey)
	require.NoError(t, err)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	verifier, err := NewIntegrationTokenVerifier("kid-2", publicPEM, "")
	require.NoError(t, err)

	now := time.Now()
	raw, err := signer.Sign(ports.IntegrationClaims{Subject: "svc", Scopes: []string{ports.ScopeAuditRead}, IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)
	claims, err := verifier.ParseAndValidate(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{ports.ScopeAuditRead}, claims.Scopes)

	_, err = verifier.Sign(ports.IntegrationClaims{Subject: "svc"})
	require.Error(t, err, "verify-only instance")

	_, err = NewIntegrationTokenVerifier("kid", "", "")
	require.Error(t, err)
	_, err = NewIntegrationTokenVerifier("kid", "-----BEGIN NOTHING-----", "")
	require.Error(t, err)
}
