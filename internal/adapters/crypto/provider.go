package crypto

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	keyIndexTransport = 1000
	keyIndexVault     = 2000
	derivedKeyLength  = 16
)

// Provider implements ports.CryptoProvider on P-256, HMAC-SHA256 and AES-128.
type Provider struct {
	random io.Reader
}

var _ ports.CryptoProvider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{random: rand.Reader}
}

// DeriveFactorKeys returns one 16-byte key per factor, in factor order.
func (p *Provider) DeriveFactorKeys(serverPrivateKey, devicePublicKey []byte, factors []domain.Factor) ([][]byte, error) {
	shared, err := sharedSecret(serverPrivateKey, devicePublicKey)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(factors))
	for _, f := range factors {
		k, err := deriveIndexedKey(shared, int(f))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (p *Provider) VerifySignature(check ports.SignatureCheck) (bool, error) {
	expected, err := ComputeSignature(check.Payload, check.FactorKeys, check.CounterData, check.Format, check.ComponentLength)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(check.Signature)), nil
}

func (p *Provider) DeriveTransportKey(serverPrivateKey, devicePublicKey []byte) ([]byte, error) {
	shared, err := sharedSecret(serverPrivateKey, devicePublicKey)
	if err != nil {
		return nil, err
	}
	return deriveIndexedKey(shared, keyIndexTransport)
}

// EncryptVaultKey wraps the vault encryption key under the transport key.
func (p *Provider) EncryptVaultKey(serverPrivateKey, devicePublicKey []byte) ([]byte, error) {
	shared, err := sharedSecret(serverPrivateKey, devicePublicKey)
	if err != nil {
		return nil, err
	}
	transportKey, err := deriveIndexedKey(shared, keyIndexTransport)
	if err != nil {
		return nil, err
	}
	vaultKey, err := deriveIndexedKey(shared, keyIndexVault)
	if err != nil {
		return nil, err
	}
	out, err := cbcEncrypt(transportKey, zeroIV(), vaultKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap vault key: %v", domain.ErrEncryptionFailed, err)
	}
	return out, nil
}

func (p *Provider) ActivationSharedInfo(transportKey []byte, applicationSecret string) []byte {
	return hmacSHA256(transportKey, []byte(applicationSecret))
}

// VerifyECDSA checks an ASN.1 DER signature over SHA-256(data).
func (p *Provider) VerifyECDSA(publicKey, data, signature []byte) (bool, error) {
	pub, err := parseECDSAPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], signature), nil
}

func (p *Provider) SignECDSA(privateKey, data []byte) ([]byte, error) {
	priv, err := parseECDSAPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(p.random, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa sign: %v", domain.ErrGenericCryptography, err)
	}
	return sig, nil
}

func (p *Provider) RandomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(p.random, out); err != nil {
		return nil, fmt.Errorf("%w: random: %v", domain.ErrInvalidCryptoProvider, err)
	}
	return out, nil
}

func sharedSecret(privateKey, publicKey []byte) ([]byte, error) {
	priv, err := parseECDHPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := parseECDHPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", domain.ErrGenericCryptography, err)
	}
	return shared, nil
}

func deriveIndexedKey(shared []byte, index int) ([]byte, error) {
	return hkdfExpand(shared, nil, []byte("activation-key/"+strconv.Itoa(index)), derivedKeyLength)
}

func hkdfExpand(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", domain.ErrGenericCryptography, err)
	}
	return out, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
