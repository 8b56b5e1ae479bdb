package postgres

import (
	"time"

	"github.com/google/uuid"
)

type activationModel struct {
	ActivationID          string     `gorm:"column:activation_id;primaryKey"`
	UserID                string     `gorm:"column:user_id"`
	ApplicationID         int64      `gorm:"column:application_id"`
	ApplicationExternalID string     `gorm:"column:application_external_id"`
	ApplicationRoles      string     `gorm:"column:application_roles;type:jsonb"`
	Protocol              string     `gorm:"column:protocol"`
	Version               int        `gorm:"column:version"`
	DevicePublicKey       []byte     `gorm:"column:device_public_key"`
	ServerPrivateKey      []byte     `gorm:"column:server_private_key"`
	ServerKeyEncryption   string     `gorm:"column:server_key_encryption"`
	Counter               int64      `gorm:"column:counter"`
	CounterData           []byte     `gorm:"column:ctr_data"`
	FailedAttempts        int        `gorm:"column:failed_attempts"`
	MaxFailedAttempts     int        `gorm:"column:max_failed_attempts"`
	Status                string     `gorm:"column:status"`
	BlockedReason         *string    `gorm:"column:blocked_reason"`
	ActivationName        string     `gorm:"column:activation_name"`
	Platform              string     `gorm:"column:platform"`
	DeviceInfo            string     `gorm:"column:device_info"`
	Flags                 string     `gorm:"column:flags;type:jsonb"`
	TimestampCreated      time.Time  `gorm:"column:timestamp_created"`
	TimestampLastUsed     *time.Time `gorm:"column:timestamp_last_used"`
	TimestampLastChange   *time.Time `gorm:"column:timestamp_last_change"`
}

func (activationModel) TableName() string { return "activations" }

type applicationVersionModel struct {
	ApplicationKey    string `gorm:"column:application_key;primaryKey"`
	ApplicationID     int64  `gorm:"column:application_id"`
	ApplicationSecret string `gorm:"column:application_secret"`
	Name              string `gorm:"column:name"`
	Supported         bool   `gorm:"column:supported"`
}

func (applicationVersionModel) TableName() string { return "application_versions" }

type activationHistoryModel struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ActivationID   string    `gorm:"column:activation_id"`
	Status         string    `gorm:"column:activation_status"`
	EventReason    *string   `gorm:"column:event_reason"`
	ExternalUserID *string   `gorm:"column:external_user_id"`
	Version        int       `gorm:"column:activation_version"`
	CreatedAt      time.Time `gorm:"column:timestamp_created"`
}

func (activationHistoryModel) TableName() string { return "activation_history" }

type signatureAuditModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ActivationID      string    `gorm:"column:activation_id"`
	UserID            string    `gorm:"column:user_id"`
	ApplicationID     int64     `gorm:"column:application_id"`
	Counter           int64     `gorm:"column:activation_counter"`
	CounterData       *string   `gorm:"column:activation_ctr_data"`
	Status            string    `gorm:"column:activation_status"`
	BlockedReason     *string   `gorm:"column:blocked_reason"`
	AdditionalInfo    string    `gorm:"column:additional_info;type:jsonb"`
	DataBase64        string    `gorm:"column:data_base64"`
	Signature         string    `gorm:"column:signature"`
	SignatureType     string    `gorm:"column:signature_type"`
	SignatureVersion  string    `gorm:"column:signature_version"`
	ActivationVersion int       `gorm:"column:version"`
	Valid             bool      `gorm:"column:valid"`
	Note              string    `gorm:"column:note"`
	CreatedAt         time.Time `gorm:"column:timestamp_created"`
}

func (signatureAuditModel) TableName() string { return "signature_audit" }

type activationOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (activationOutboxModel) TableName() string { return "activation_outbox" }
