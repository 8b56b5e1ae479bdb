package postgres

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainActivation(row activationModel) (domain.Activation, error) {
	roles, err := decodeStringList(row.ApplicationRoles)
	if err != nil {
		return domain.Activation{}, fmt.Errorf("decode application roles: %w", err)
	}
	flags, err := decodeStringList(row.Flags)
	if err != nil {
		return domain.Activation{}, fmt.Errorf("decode activation flags: %w", err)
	}
	return domain.Activation{
		ActivationID:          row.ActivationID,
		UserID:                row.UserID,
		ApplicationID:         row.ApplicationID,
		ApplicationExternalID: row.ApplicationExternalID,
		ApplicationRoles:      roles,
		Protocol:              domain.Protocol(row.Protocol),
		Version:               row.Version,
		DevicePublicKey:       row.DevicePublicKey,
		ServerPrivateKey:      row.ServerPrivateKey,
		ServerKeyEncryption:   domain.KeyEncryptionMode(row.ServerKeyEncryption),
		Counter:               row.Counter,
		CounterData:           row.CounterData,
		FailedAttempts:        row.FailedAttempts,
		MaxFailedAttempts:     row.MaxFailedAttempts,
		Status:                domain.ActivationStatus(row.Status),
		BlockedReason:         derefString(row.BlockedReason),
		ActivationName:        row.ActivationName,
		Platform:              row.Platform,
		DeviceInfo:            row.DeviceInfo,
		Flags:                 flags,
		TimestampCreated:      row.TimestampCreated,
		TimestampLastUsed:     derefTime(row.TimestampLastUsed),
		TimestampLastChange:   derefTime(row.TimestampLastChange),
	}, nil
}

// activationUpdates lists the columns verification and flag flows may change.
func activationUpdates(a domain.Activation) (map[string]any, error) {
	flags, err := encodeStringList(a.Flags)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"counter":               a.Counter,
		"ctr_data":              a.CounterData,
		"failed_attempts":       a.FailedAttempts,
		"status":                string(a.Status),
		"blocked_reason":        nullableString(a.BlockedReason),
		"flags":                 flags,
		"timestamp_last_used":   nullableTime(a.TimestampLastUsed),
		"timestamp_last_change": nullableTime(a.TimestampLastChange),
	}, nil
}

func toDomainApplicationVersion(row applicationVersionModel) domain.ApplicationVersion {
	return domain.ApplicationVersion{
		ApplicationID:     row.ApplicationID,
		ApplicationKey:    row.ApplicationKey,
		ApplicationSecret: row.ApplicationSecret,
		Name:              row.Name,
		Supported:         row.Supported,
	}
}

func toHistoryModel(entry domain.ActivationHistoryEntry) activationHistoryModel {
	return activationHistoryModel{
		ActivationID:   entry.ActivationID,
		Status:         string(entry.Status),
		EventReason:    nullableString(entry.Reason),
		ExternalUserID: nullableString(entry.ExternalUserID),
		Version:        entry.Version,
		CreatedAt:      entry.CreatedAt,
	}
}

func toDomainHistory(row activationHistoryModel) domain.ActivationHistoryEntry {
	return domain.ActivationHistoryEntry{
		ID:             row.ID,
		ActivationID:   row.ActivationID,
		Status:         domain.ActivationStatus(row.Status),
		Reason:         derefString(row.EventReason),
		ExternalUserID: derefString(row.ExternalUserID),
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
	}
}

func toSignatureAuditModel(record domain.SignatureAuditRecord) (signatureAuditModel, error) {
	info := record.AdditionalInfo
	if info == nil {
		info = map[string]string{}
	}
	rawInfo, err := json.Marshal(info)
	if err != nil {
		return signatureAuditModel{}, fmt.Errorf("encode additional info: %w", err)
	}
	var ctrData *string
	if len(record.CounterData) > 0 {
		encoded := base64.StdEncoding.EncodeToString(record.CounterData)
		ctrData = &encoded
	}
	return signatureAuditModel{
		ActivationID:      record.ActivationID,
		UserID:            record.UserID,
		ApplicationID:     record.ApplicationID,
		Counter:           record.Counter,
		CounterData:       ctrData,
		Status:            string(record.Status),
		BlockedReason:     nullableString(record.BlockedReason),
		AdditionalInfo:    string(rawInfo),
		DataBase64:        record.DataBase64,
		Signature:         record.Signature,
		SignatureType:     string(record.SignatureType),
		SignatureVersion:  record.SignatureVersion,
		ActivationVersion: record.ActivationVersion,
		Valid:             record.Valid,
		Note:              record.Note,
		CreatedAt:         record.CreatedAt,
	}, nil
}

func toDomainSignatureAudit(row signatureAuditModel) (domain.SignatureAuditRecord, error) {
	info := map[string]string{}
	if row.AdditionalInfo != "" {
		if err := json.Unmarshal([]byte(row.AdditionalInfo), &info); err != nil {
			return domain.SignatureAuditRecord{}, fmt.Errorf("decode additional info: %w", err)
		}
	}
	var ctrData []byte
	if row.CounterData != nil {
		decoded, err := base64.StdEncoding.DecodeString(*row.CounterData)
		if err != nil {
			return domain.SignatureAuditRecord{}, fmt.Errorf("decode counter data: %w", err)
		}
		ctrData = decoded
	}
	return domain.SignatureAuditRecord{
		ID:                row.ID,
		ActivationID:      row.ActivationID,
		UserID:            row.UserID,
		ApplicationID:     row.ApplicationID,
		Counter:           row.Counter,
		CounterData:       ctrData,
		Status:            domain.ActivationStatus(row.Status),
		BlockedReason:     derefString(row.BlockedReason),
		AdditionalInfo:    info,
		DataBase64:        row.DataBase64,
		Signature:         row.Signature,
		SignatureType:     domain.SignatureType(row.SignatureType),
		SignatureVersion:  row.SignatureVersion,
		ActivationVersion: row.ActivationVersion,
		Valid:             row.Valid,
		Note:              row.Note,
		CreatedAt:         row.CreatedAt,
	}, nil
}

func decodeStringList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeStringList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
