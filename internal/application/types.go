package application

import (
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

type Config struct {
	SignatureLookahead     int
	OfflineComponentLength int
	ProximityStepLength    time.Duration
	ProximityStepCount     int
	ProximityOTPLength     int
	AuditLogLimit          int
}

type VerifySignatureRequest struct {
	ActivationID           string            `json:"activation_id"`
	ApplicationKey         string            `json:"application_key"`
	Data                   string            `json:"data"`
	Signature              string            `json:"signature"`
	SignatureType          string            `json:"signature_type"`
	SignatureVersion       string            `json:"signature_version"`
	ForcedSignatureVersion *int              `json:"forced_signature_version,omitempty"`
	AdditionalInfo         map[string]string `json:"additional_info,omitempty"`
}

// VerifySignatureResponse is shared by online and offline verification.
type VerifySignatureResponse struct {
	SignatureValid    bool                    `json:"signature_valid"`
	ActivationID      string                  `json:"activation_id"`
	ActivationStatus  domain.ActivationStatus `json:"activation_status"`
	BlockedReason     string                  `json:"blocked_reason,omitempty"`
	RemainingAttempts int                     `json:"remaining_attempts"`
	UserID            string                  `json:"user_id,omitempty"`
	ApplicationID     int64                   `json:"application_id,omitempty"`
	ApplicationRoles  []string                `json:"application_roles,omitempty"`
	ActivationFlags   []string                `json:"activation_flags,omitempty"`
	SignatureType     domain.SignatureType    `json:"signature_type,omitempty"`
}

type ProximityCheck struct {
	Seed              string `json:"seed"`
	StepLengthSeconds int    `json:"step_length"`
	StepCount         int    `json:"step_count"`
}

type VerifyOfflineSignatureRequest struct {
	ActivationID    string          `json:"activation_id"`
	Data            string          `json:"data"`
	Signature       string          `json:"signature"`
	AllowBiometry   bool            `json:"allow_biometry"`
	ComponentLength *int            `json:"component_length,omitempty"`
	ProximityCheck  *ProximityCheck `json:"proximity_check,omitempty"`
}

type VerifyECDSASignatureRequest struct {
	ActivationID string `json:"activation_id"`
	Data         string `json:"data"`
	Signature    string `json:"signature"`
}

type VerifyECDSASignatureResponse struct {
	SignatureValid bool `json:"signature_valid"`
}

type OfflinePayloadRequest struct {
	ActivationID string `json:"activation_id"`
	Data         string `json:"data"`
}

type OfflinePayloadResponse struct {
	OfflineData string `json:"offline_data"`
	Nonce       string `json:"nonce"`
}

// VaultUnlockRequest carries base64 encoded envelope fields.
type VaultUnlockRequest struct {
	ActivationID       string `json:"activation_id"`
	ApplicationKey     string `json:"application_key"`
	Signature          string `json:"signature"`
	SignatureType      string `json:"signature_type"`
	SignatureVersion   string `json:"signature_version"`
	SignedData         string `json:"signed_data"`
	ProtocolVersion    string `json:"protocol_version"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`
	EncryptedData      string `json:"encrypted_data"`
	Mac                string `json:"mac"`
	Nonce              string `json:"nonce,omitempty"`
	Timestamp          *int64 `json:"timestamp,omitempty"`
}

type VaultUnlockResponse struct {
	EncryptedData  string `json:"encrypted_data,omitempty"`
	Mac            string `json:"mac,omitempty"`
	Nonce          string `json:"nonce,omitempty"`
	Timestamp      *int64 `json:"timestamp,omitempty"`
	SignatureValid bool   `json:"signature_valid"`
}

// vaultUnlockPayload is the decrypted request body.
type vaultUnlockPayload struct {
	Reason *string `json:"reason"`
}

// vaultUnlockResponsePayload is encrypted into the response envelope.
type vaultUnlockResponsePayload struct {
	EncryptedVaultEncryptionKey string `json:"encryptedVaultEncryptionKey,omitempty"`
}

type FlagsRequest struct {
	ActivationID string   `json:"activation_id"`
	Flags        []string `json:"flags"`
}

type FlagsResponse struct {
	ActivationID string   `json:"activation_id"`
	Flags        []string `json:"flags"`
}

type HistoryRequest struct {
	ActivationID string
	From         time.Time
	To           time.Time
}

type SignatureAuditRequest struct {
	UserID        string
	ApplicationID int64
	From          time.Time
	To            time.Time
}
