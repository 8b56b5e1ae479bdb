package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// IntegrationTokens signs and validates RS256 bearer tokens presented by calling
// integrations. Production deployments configure only the public key.
type IntegrationTokens struct {
	kid        string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	audience   string
}

// NewIntegrationTokenVerifier builds a verify-only instance from a PEM public key.
func NewIntegrationTokenVerifier(kid, publicKeyPEM, audience string) (*IntegrationTokens, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("integration jwt public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &IntegrationTokens{kid: kid, publicKey: pub, audience: audience}, nil
}

// NewEphemeralIntegrationTokens creates an in-memory keypair for local/dev use.
func NewEphemeralIntegrationTokens(kid, audience string) (*IntegrationTokens, error) {
	if kid == "" {
		kid = "ephemeral-integration-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &IntegrationTokens{
		kid:        kid,
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		audience:   audience,
	}, nil
}

type integrationJWTClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues a token. It fails on verify-only instances.
func (t *IntegrationTokens) Sign(claims ports.IntegrationClaims) (string, error) {
	if t.privateKey == nil {
		return "", errors.New("integration tokens are verify-only")
	}
	registered := jwt.RegisteredClaims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	}
	if t.audience != "" {
		registered.Audience = jwt.ClaimStrings{t.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, integrationJWTClaims{
		Scope:            strings.Join(claims.Scopes, " "),
		RegisteredClaims: registered,
	})
	token.Header["kid"] = t.kid
	return token.SignedString(t.privateKey)
}

func (t *IntegrationTokens) ParseAndValidate(raw string) (ports.IntegrationClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	parsed, err := jwt.ParseWithClaims(raw, &integrationJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return t.publicKey, nil
	}, opts...)
	if err != nil {
		return ports.IntegrationClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*integrationJWTClaims)
	if !ok || !parsed.Valid {
		return ports.IntegrationClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return ports.IntegrationClaims{}, fmt.Errorf("%w: subject is required", domain.ErrUnauthorized)
	}

	kid, _ := parsed.Header["kid"].(string)
	out := ports.IntegrationClaims{
		Subject:   claims.Subject,
		Scopes:    strings.Fields(claims.Scope),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		KeyID:     kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
