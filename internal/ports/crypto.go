package ports

import "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"

// SignatureCheck is one candidate comparison inside the verification loop.
type SignatureCheck struct {
	Payload         []byte
	Signature       string
	Format          domain.SignatureFormat
	ComponentLength int
	FactorKeys      [][]byte
	CounterData     []byte
}

// EnvelopeSession is the symmetric state established by opening a request envelope.
// Responses sealed through it reuse the envelope key with a fresh IV.
type EnvelopeSession interface {
	SealResponse(plaintext []byte, nonce []byte, timestamp *int64, associatedData []byte) (domain.EncryptedEnvelope, error)
}

// CryptoProvider wraps the raw primitives. Implementations are stateless and safe for concurrent use.
// Errors wrap domain.ErrInvalidKeyFormat, domain.ErrGenericCryptography or domain.ErrDecryptionFailed.
type CryptoProvider interface {
	DeriveFactorKeys(serverPrivateKey, devicePublicKey []byte, factors []domain.Factor) ([][]byte, error)
	VerifySignature(check SignatureCheck) (bool, error)
	DeriveTransportKey(serverPrivateKey, devicePublicKey []byte) ([]byte, error)
	EncryptVaultKey(serverPrivateKey, devicePublicKey []byte) ([]byte, error)
	// ActivationSharedInfo binds an envelope to one activation and application secret.
	ActivationSharedInfo(transportKey []byte, applicationSecret string) []byte
	VerifyECDSA(publicKey, data, signature []byte) (bool, error)
	SignECDSA(privateKey, data []byte) ([]byte, error)
	OpenEnvelope(privateKey []byte, sharedInfo1 string, sharedInfo2 []byte, envelope domain.EncryptedEnvelope) ([]byte, EnvelopeSession, error)
	// TimeBasedOTP computes the proximity-check code for one time step.
	TimeBasedOTP(seed []byte, step int64, digits int) (string, error)
	RandomBytes(n int) ([]byte, error)
}
