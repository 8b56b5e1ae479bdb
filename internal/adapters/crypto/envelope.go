package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const envelopeKeyLength = 48

// envelopeKey is the per-request symmetric state: encryption, MAC and IV-derivation keys.
type envelopeKey struct {
	enc   []byte
	mac   []byte
	ivKey []byte
}

func deriveEnvelopeKey(shared, ephemeralPublicKey []byte, sharedInfo1 string) (envelopeKey, error) {
	raw, err := hkdfExpand(shared, ephemeralPublicKey, []byte(sharedInfo1), envelopeKeyLength)
	if err != nil {
		return envelopeKey{}, err
	}
	return envelopeKey{enc: raw[:16], mac: raw[16:32], ivKey: raw[32:48]}, nil
}

func (k envelopeKey) iv(nonce []byte) []byte {
	if len(nonce) == 0 {
		return zeroIV()
	}
	return hmacSHA256(k.ivKey, nonce)[:aes.BlockSize]
}

func (k envelopeKey) tag(ciphertext, sharedInfo2, associatedData, nonce []byte, timestamp *int64) []byte {
	var buf bytes.Buffer
	buf.Write(ciphertext)
	buf.Write(sharedInfo2)
	buf.Write(associatedData)
	buf.Write(nonce)
	if timestamp != nil {
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(*timestamp))
		buf.Write(ts[:])
	}
	return hmacSHA256(k.mac, buf.Bytes())
}

func (k envelopeKey) seal(plaintext, sharedInfo2, nonce []byte, timestamp *int64, associatedData []byte) (domain.EncryptedEnvelope, error) {
	ciphertext, err := cbcEncrypt(k.enc, k.iv(nonce), plaintext)
	if err != nil {
		return domain.EncryptedEnvelope{}, fmt.Errorf("%w: %v", domain.ErrEncryptionFailed, err)
	}
	return domain.EncryptedEnvelope{
		EncryptedData:  ciphertext,
		Mac:            k.tag(ciphertext, sharedInfo2, associatedData, nonce, timestamp),
		Nonce:          bytes.Clone(nonce),
		Timestamp:      timestamp,
		AssociatedData: bytes.Clone(associatedData),
	}, nil
}

func (k envelopeKey) open(env domain.EncryptedEnvelope, sharedInfo2 []byte) ([]byte, error) {
	expected := k.tag(env.EncryptedData, sharedInfo2, env.AssociatedData, env.Nonce, env.Timestamp)
	if !hmac.Equal(expected, env.Mac) {
		return nil, fmt.Errorf("%w: mac mismatch", domain.ErrDecryptionFailed)
	}
	plaintext, err := cbcDecrypt(k.enc, k.iv(env.Nonce), env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

type envelopeSession struct {
	key         envelopeKey
	sharedInfo2 []byte
}

func (s *envelopeSession) SealResponse(plaintext []byte, nonce []byte, timestamp *int64, associatedData []byte) (domain.EncryptedEnvelope, error) {
	return s.key.seal(plaintext, s.sharedInfo2, nonce, timestamp, associatedData)
}

// OpenEnvelope decrypts a request sealed to privateKey and returns the session for the response.
func (p *Provider) OpenEnvelope(privateKey []byte, sharedInfo1 string, sharedInfo2 []byte, env domain.EncryptedEnvelope) ([]byte, ports.EnvelopeSession, error) {
	priv, err := parseECDHPrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}
	ephemeral, err := parseECDHPublicKey(env.EphemeralPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ephemeral key: %v", domain.ErrDecryptionFailed, err)
	}
	shared, err := priv.ECDH(ephemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ecdh: %v", domain.ErrDecryptionFailed, err)
	}
	key, err := deriveEnvelopeKey(shared, env.EphemeralPublicKey, sharedInfo1)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := key.open(env, sharedInfo2)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, &envelopeSession{key: key, sharedInfo2: bytes.Clone(sharedInfo2)}, nil
}

// ClientSession is the device side of an envelope exchange.
type ClientSession struct {
	key         envelopeKey
	sharedInfo2 []byte
}

// SealRequest encrypts plaintext for recipientPublicKey with a fresh ephemeral key.
func SealRequest(recipientPublicKey []byte, sharedInfo1 string, sharedInfo2, plaintext, nonce []byte, timestamp *int64, associatedData []byte) (domain.EncryptedEnvelope, *ClientSession, error) {
	recipient, err := parseECDHPublicKey(recipientPublicKey)
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, err
	}
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, fmt.Errorf("%w: %v", domain.ErrGenericCryptography, err)
	}
	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, fmt.Errorf("%w: %v", domain.ErrGenericCryptography, err)
	}
	ephemeralPublic, err := compressPublicKey(ephemeral.PublicKey().Bytes())
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, err
	}
	key, err := deriveEnvelopeKey(shared, ephemeralPublic, sharedInfo1)
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, err
	}
	env, err := key.seal(plaintext, sharedInfo2, nonce, timestamp, associatedData)
	if err != nil {
		return domain.EncryptedEnvelope{}, nil, err
	}
	env.EphemeralPublicKey = ephemeralPublic
	return env, &ClientSession{key: key, sharedInfo2: bytes.Clone(sharedInfo2)}, nil
}

// OpenResponse decrypts the server response paired with this session.
func (s *ClientSession) OpenResponse(env domain.EncryptedEnvelope) ([]byte, error) {
	return s.key.open(env, s.sharedInfo2)
}

// DecryptVaultKey unwraps a vault key with the device's transport key.
func DecryptVaultKey(transportKey, encrypted []byte) ([]byte, error) {
	out, err := cbcDecrypt(transportKey, zeroIV(), encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return out, nil
}
