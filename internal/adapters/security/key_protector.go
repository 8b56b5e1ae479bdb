package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const masterKeyLength = 32

// KMSDecrypter is the subset of the AWS KMS client used to unwrap server keys.
type KMSDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// NewKMSClient loads the default AWS credential chain for region.
func NewKMSClient(ctx context.Context, region string) (*kms.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return kms.NewFromConfig(awsCfg), nil
}

// KeyProtector decrypts server private keys according to their storage mode.
// AES_GCM keys are sealed with a local master key; KMS keys are unwrapped remotely.
// Both modes bind the ciphertext to the owning user and activation.
type KeyProtector struct {
	masterKey []byte
	kms       KMSDecrypter
	kmsKeyID  string
}

type KeyProtectorConfig struct {
	MasterKey []byte
	KMS       KMSDecrypter
	KMSKeyID  string
}

func NewKeyProtector(cfg KeyProtectorConfig) (*KeyProtector, error) {
	if len(cfg.MasterKey) != 0 && len(cfg.MasterKey) != masterKeyLength {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeyLength, len(cfg.MasterKey))
	}
	return &KeyProtector{
		masterKey: bytes.Clone(cfg.MasterKey),
		kms:       cfg.KMS,
		kmsKeyID:  cfg.KMSKeyID,
	}, nil
}

func (p *KeyProtector) DecryptServerPrivateKey(ctx context.Context, keyCtx ports.ServerKeyContext, stored []byte) ([]byte, error) {
	switch keyCtx.Mode {
	case "", domain.KeyEncryptionNone:
		return bytes.Clone(stored), nil
	case domain.KeyEncryptionAESGCM:
		return p.openAESGCM(keyCtx, stored)
	case domain.KeyEncryptionKMS:
		return p.decryptKMS(ctx, keyCtx, stored)
	default:
		return nil, fmt.Errorf("%w: key encryption mode %q", domain.ErrInvalidCryptoProvider, keyCtx.Mode)
	}
}

// sealServerPrivateKey produces the AES_GCM layout DecryptServerPrivateKey reads. Activations are provisioned elsewhere.
func (p *KeyProtector) sealServerPrivateKey(keyCtx ports.ServerKeyContext, plaintext []byte) ([]byte, error) {
	aead, err := p.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", domain.ErrGenericCryptography, err)
	}
	return aead.Seal(nonce, nonce, plaintext, keyAssociatedData(keyCtx)), nil
}

func (p *KeyProtector) openAESGCM(keyCtx ports.ServerKeyContext, stored []byte) ([]byte, error) {
	aead, err := p.aead()
	if err != nil {
		return nil, err
	}
	if len(stored) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed server key too short", domain.ErrInvalidKeyFormat)
	}
	nonce, sealed := stored[:aead.NonceSize()], stored[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, keyAssociatedData(keyCtx))
	if err != nil {
		return nil, fmt.Errorf("%w: open server key", domain.ErrGenericCryptography)
	}
	return plaintext, nil
}

func (p *KeyProtector) aead() (cipher.AEAD, error) {
	if len(p.masterKey) == 0 {
		return nil, fmt.Errorf("%w: master key not configured", domain.ErrInvalidCryptoProvider)
	}
	block, err := aes.NewCipher(p.masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCryptoProvider, err)
	}
	return cipher.NewGCM(block)
}

func (p *KeyProtector) decryptKMS(ctx context.Context, keyCtx ports.ServerKeyContext, stored []byte) ([]byte, error) {
	if p.kms == nil {
		return nil, fmt.Errorf("%w: kms not configured", domain.ErrInvalidCryptoProvider)
	}
	input := &kms.DecryptInput{
		CiphertextBlob: stored,
		EncryptionContext: map[string]string{
			"user_id":       keyCtx.UserID,
			"activation_id": keyCtx.ActivationID,
		},
	}
	if p.kmsKeyID != "" {
		input.KeyId = aws.String(p.kmsKeyID)
	}
	out, err := p.kms.Decrypt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: kms decrypt: %v", domain.ErrGenericCryptography, err)
	}
	if len(out.Plaintext) == 0 {
		return nil, fmt.Errorf("%w: kms decrypt returned no data", domain.ErrGenericCryptography)
	}
	return out.Plaintext, nil
}

func keyAssociatedData(keyCtx ports.ServerKeyContext) []byte {
	return []byte(keyCtx.UserID + "&" + keyCtx.ActivationID)
}
