package domain

import (
	"fmt"
	"strings"
)

// Factor is one authentication factor and the index of its derived key.
type Factor int

const (
	FactorPossession Factor = 1
	FactorKnowledge  Factor = 2
	FactorBiometry   Factor = 3
)

// SignatureType names a combination of factors the caller claims to have used.
type SignatureType string

const (
	SignaturePossession                  SignatureType = "POSSESSION"
	SignatureKnowledge                   SignatureType = "KNOWLEDGE"
	SignatureBiometry                    SignatureType = "BIOMETRY"
	SignaturePossessionKnowledge         SignatureType = "POSSESSION_KNOWLEDGE"
	SignaturePossessionBiometry          SignatureType = "POSSESSION_BIOMETRY"
	SignaturePossessionKnowledgeBiometry SignatureType = "POSSESSION_KNOWLEDGE_BIOMETRY"
)

var signatureFactors = map[SignatureType][]Factor{
	SignaturePossession:                  {FactorPossession},
	SignatureKnowledge:                   {FactorKnowledge},
	SignatureBiometry:                    {FactorBiometry},
	SignaturePossessionKnowledge:         {FactorPossession, FactorKnowledge},
	SignaturePossessionBiometry:          {FactorPossession, FactorBiometry},
	SignaturePossessionKnowledgeBiometry: {FactorPossession, FactorKnowledge, FactorBiometry},
}

// ParseSignatureType accepts the canonical upper-case names, case-insensitively.
func ParseSignatureType(raw string) (SignatureType, error) {
	t := SignatureType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := signatureFactors[t]; !ok {
		return "", fmt.Errorf("%w: unknown signature type %q", ErrInvalidRequest, raw)
	}
	return t, nil
}

// Factors returns the ordered factor list. The result must not be modified.
func (t SignatureType) Factors() []Factor {
	return signatureFactors[t]
}

// PossessionOnly signatures never touch the failed-attempt counter.
func (t SignatureType) PossessionOnly() bool {
	return t == SignaturePossession
}

type SignatureFormat string

const (
	SignatureFormatDecimal SignatureFormat = "DECIMAL"
	SignatureFormatBase64  SignatureFormat = "BASE64"
)

// DefaultComponentLength is the number of digits per factor in DECIMAL signatures.
const DefaultComponentLength = 8

// FormatForVersion maps a signature protocol version to its encoding.
func FormatForVersion(version string) (SignatureFormat, error) {
	switch strings.TrimSpace(version) {
	case "2.0", "2.1", "3.0":
		return SignatureFormatDecimal, nil
	case "3.1", "3.2", "3.3":
		return SignatureFormatBase64, nil
	default:
		return "", fmt.Errorf("%w: unsupported signature version %q", ErrInvalidRequest, version)
	}
}

// Additional-info keys written to signature audit records.
const (
	AdditionalInfoBiometryAllowed     = "BIOMETRY_ALLOWED"
	AdditionalInfoBlockedReason       = "BLOCKED_REASON"
	AdditionalInfoVaultUnlockedReason = "vaultUnlockedReason"
	VaultUnlockedReasonNotSpecified   = "NOT_SPECIFIED"
)

// SignatureData is the per-request input of a verification attempt.
type SignatureData struct {
	// Payloads are the candidate signable byte strings. Online requests carry one,
	// proximity-checked offline requests carry one per time step in the window.
	Payloads               [][]byte
	Signature              string
	Format                 SignatureFormat
	ComponentLength        int
	Version                string
	AdditionalInfo         map[string]string
	ForcedSignatureVersion *int
}

// PrimaryPayload is the payload recorded in audit records.
func (d SignatureData) PrimaryPayload() []byte {
	if len(d.Payloads) == 0 {
		return nil
	}
	return d.Payloads[0]
}

// WithAdditionalInfo returns a copy with one extra additional-info entry.
func (d SignatureData) WithAdditionalInfo(key, value string) SignatureData {
	info := make(map[string]string, len(d.AdditionalInfo)+1)
	for k, v := range d.AdditionalInfo {
		info[k] = v
	}
	info[key] = value
	d.AdditionalInfo = info
	return d
}
