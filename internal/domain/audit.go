package domain

import "time"

// Audit notes recorded on signature audit records.
const (
	NoteSignatureOK                   = "signature_ok"
	NoteSignatureDoesNotMatch         = "signature_does_not_match"
	NoteActivationInvalidState        = "activation_invalid_state"
	NoteActivationInvalidStateCounter = "activation_invalid_state_ctr_mismatch"
	NoteActivationInvalidApplication  = "activation_invalid_application"
)

// ActivationHistoryEntry is appended once per status-changing save and never mutated.
type ActivationHistoryEntry struct {
	ID             int64
	ActivationID   string
	Status         ActivationStatus
	Reason         string
	ExternalUserID string
	Version        int
	CreatedAt      time.Time
}

// SignatureAuditRecord is appended once per verification attempt.
type SignatureAuditRecord struct {
	ID                int64
	ActivationID      string
	UserID            string
	ApplicationID     int64
	Counter           int64
	CounterData       []byte
	Status            ActivationStatus
	BlockedReason     string
	AdditionalInfo    map[string]string
	DataBase64        string
	Signature         string
	SignatureType     SignatureType
	SignatureVersion  string
	ActivationVersion int
	Valid             bool
	Note              string
	CreatedAt         time.Time
}
