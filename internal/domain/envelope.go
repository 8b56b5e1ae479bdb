package domain

import "strings"

// EnvelopeSharedInfoVaultUnlock is the fixed context tag of the vault unlock envelope.
const EnvelopeSharedInfoVaultUnlock = "VAULT_UNLOCK"

// EncryptedEnvelope is an end-to-end encrypted request or response body.
type EncryptedEnvelope struct {
	EphemeralPublicKey []byte
	EncryptedData      []byte
	Mac                []byte
	Nonce              []byte
	Timestamp          *int64
	AssociatedData     []byte
}

// EnvelopeProtocol describes which envelope fields a protocol revision uses.
type EnvelopeProtocol struct {
	Version string
}

// UsesNonce is true from 3.1 on; 3.0 encrypts with a deterministic zero IV.
func (p EnvelopeProtocol) UsesNonce() bool {
	return compareVersion(p.Version, "3.1") >= 0
}

// UsesTimestamp is true from 3.2 on, together with associated data.
func (p EnvelopeProtocol) UsesTimestamp() bool {
	return compareVersion(p.Version, "3.2") >= 0
}

// Supported reports whether the revision is known.
func (p EnvelopeProtocol) Supported() bool {
	switch p.Version {
	case "3.0", "3.1", "3.2", "3.3":
		return true
	default:
		return false
	}
}

func compareVersion(a, b string) int {
	return strings.Compare(strings.TrimSpace(a), b)
}

// EnvelopeAssociatedData binds a request envelope to its protocol version, application and activation.
func EnvelopeAssociatedData(version, applicationKey, activationID string) []byte {
	return []byte(version + "&" + applicationKey + "&" + activationID)
}
