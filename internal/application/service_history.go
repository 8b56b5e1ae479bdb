package application

import (
	"context"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// GetActivationHistory lists status changes of one activation, newest first.
func (s *Service) GetActivationHistory(ctx context.Context, req HistoryRequest) ([]domain.ActivationHistoryEntry, error) {
	if err := requireFields(field{"activation_id", req.ActivationID}); err != nil {
		return nil, err
	}
	if err := validateRange(req.From, req.To); err != nil {
		return nil, err
	}
	if _, err := s.activations.FindWithoutLock(ctx, req.ActivationID); err != nil {
		return nil, classifyError(ctx, "get_activation_history", err)
	}
	entries, err := s.auditReads.ListHistory(ctx, ports.HistoryQuery{
		ActivationID: req.ActivationID,
		From:         req.From,
		To:           req.To,
	})
	if err != nil {
		return nil, classifyError(ctx, "get_activation_history", err)
	}
	return entries, nil
}

// GetSignatureAuditLog lists signature audit records of one user, newest first.
func (s *Service) GetSignatureAuditLog(ctx context.Context, req SignatureAuditRequest) ([]domain.SignatureAuditRecord, error) {
	if err := requireFields(field{"user_id", req.UserID}); err != nil {
		return nil, err
	}
	if err := validateRange(req.From, req.To); err != nil {
		return nil, err
	}
	records, err := s.auditReads.ListSignatureAudit(ctx, ports.SignatureAuditQuery{
		UserID:        req.UserID,
		ApplicationID: req.ApplicationID,
		From:          req.From,
		To:            req.To,
		Limit:         s.cfg.AuditLogLimit,
	})
	if err != nil {
		return nil, classifyError(ctx, "get_signature_audit_log", err)
	}
	return records, nil
}

func validateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("%w: time range end precedes start", domain.ErrInvalidRequest)
	}
	return nil
}
