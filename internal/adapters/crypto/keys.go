package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

const (
	privateKeyLength            = 32
	compressedPublicKeyLength   = 33
	uncompressedPublicKeyLength = 65
)

// KeyPair is a raw P-256 key pair: 32-byte scalar and compressed public point.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: generate key: %v", domain.ErrGenericCryptography, err)
	}
	pub, err := compressPublicKey(priv.PublicKey().Bytes())
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKey: priv.Bytes(), PublicKey: pub}, nil
}

// PublicKeyFromPrivate returns the compressed public key for a raw private scalar.
func PublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	priv, err := parseECDHPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return compressPublicKey(priv.PublicKey().Bytes())
}

func parseECDHPrivateKey(raw []byte) (*ecdh.PrivateKey, error) {
	if len(raw) != privateKeyLength {
		return nil, fmt.Errorf("%w: private key length %d", domain.ErrInvalidKeyFormat, len(raw))
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKeyFormat, err)
	}
	return priv, nil
}

func parseECDSAPrivateKey(raw []byte) (*ecdsa.PrivateKey, error) {
	priv, err := parseECDHPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	x, y := splitUncompressed(priv.PublicKey().Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         new(big.Int).SetBytes(raw),
	}, nil
}

// parseECDHPublicKey accepts compressed and uncompressed SEC1 encodings.
func parseECDHPublicKey(raw []byte) (*ecdh.PublicKey, error) {
	uncompressed, err := uncompressPublicKey(raw)
	if err != nil {
		return nil, err
	}
	pub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKeyFormat, err)
	}
	return pub, nil
}

func parseECDSAPublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	pub, err := parseECDHPublicKey(raw)
	if err != nil {
		return nil, err
	}
	x, y := splitUncompressed(pub.Bytes())
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

func uncompressPublicKey(raw []byte) ([]byte, error) {
	switch len(raw) {
	case uncompressedPublicKeyLength:
		return raw, nil
	case compressedPublicKeyLength:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return nil, fmt.Errorf("%w: invalid compressed point", domain.ErrInvalidKeyFormat)
		}
		out := make([]byte, uncompressedPublicKeyLength)
		out[0] = 0x04
		x.FillBytes(out[1:33])
		y.FillBytes(out[33:])
		return out, nil
	default:
		return nil, fmt.Errorf("%w: public key length %d", domain.ErrInvalidKeyFormat, len(raw))
	}
}

func compressPublicKey(uncompressed []byte) ([]byte, error) {
	if len(uncompressed) != uncompressedPublicKeyLength {
		return nil, fmt.Errorf("%w: public key length %d", domain.ErrInvalidKeyFormat, len(uncompressed))
	}
	x, y := splitUncompressed(uncompressed)
	return elliptic.MarshalCompressed(elliptic.P256(), x, y), nil
}

func splitUncompressed(b []byte) (*big.Int, *big.Int) {
	return new(big.Int).SetBytes(b[1:33]), new(big.Int).SetBytes(b[33:65])
}
