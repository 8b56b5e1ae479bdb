package application

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

const serviceName = "M04-Activation-Signature-Service"

func appLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "application",
		"layer", "application",
	)
}

// auditLogger projects verification outcomes and status changes into audit facts.
// It makes no decisions of its own.
type auditLogger struct{}

// signatureRecord copies counters and status from the activation passed in.
func (auditLogger) signatureRecord(snapshot domain.Activation, data domain.SignatureData, sigType domain.SignatureType, valid bool, note string, at time.Time) domain.SignatureAuditRecord {
	info := make(map[string]string, len(data.AdditionalInfo))
	maps.Copy(info, data.AdditionalInfo)
	return domain.SignatureAuditRecord{
		ActivationID:      snapshot.ActivationID,
		UserID:            snapshot.UserID,
		ApplicationID:     snapshot.ApplicationID,
		Counter:           snapshot.Counter,
		CounterData:       snapshot.CounterData,
		Status:            snapshot.Status,
		BlockedReason:     snapshot.BlockedReason,
		AdditionalInfo:    info,
		DataBase64:        base64.StdEncoding.EncodeToString(data.PrimaryPayload()),
		Signature:         data.Signature,
		SignatureType:     sigType,
		SignatureVersion:  data.Version,
		ActivationVersion: snapshot.Version,
		Valid:             valid,
		Note:              note,
		CreatedAt:         at,
	}
}

func (auditLogger) historyEntry(a domain.Activation, reason, externalUserID string, at time.Time) domain.ActivationHistoryEntry {
	return domain.ActivationHistoryEntry{
		ActivationID:   a.ActivationID,
		Status:         a.Status,
		Reason:         reason,
		ExternalUserID: externalUserID,
		Version:        a.Version,
		CreatedAt:      at,
	}
}

func (auditLogger) logSignatureOutcome(ctx context.Context, record domain.SignatureAuditRecord) {
	result, outcome, level := "FAILURE", "failure", slog.LevelWarn
	if record.Valid {
		result, outcome, level = "SUCCESS", "success", slog.LevelInfo
	}
	appLogger().Log(ctx, level, fmt.Sprintf("Signature validation completed: %s (%s)", result, record.Note),
		"operation", "verify_signature",
		"outcome", outcome,
		"activation_id", record.ActivationID,
		"user_id", record.UserID,
		"application_id", record.ApplicationID,
		"signature_type", record.SignatureType,
		"signature_version", record.SignatureVersion,
		"activation_status", record.Status,
		"note", record.Note,
	)
}

func (auditLogger) logStatusChange(ctx context.Context, entry domain.ActivationHistoryEntry) {
	appLogger().InfoContext(ctx, "activation status changed",
		"operation", "activation_status_change",
		"outcome", "success",
		"activation_id", entry.ActivationID,
		"status", entry.Status,
		"reason", entry.Reason,
	)
}
