package application

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// signatureAttempt is one verification request after parameter validation.
// Types are tried in order; the first one is reported when nothing matches.
type signatureAttempt struct {
	data  domain.SignatureData
	types []domain.SignatureType
	// offline attempts may record BIOMETRY_ALLOWED on failure.
	offline bool
}

func (a signatureAttempt) primaryType() domain.SignatureType {
	return a.types[0]
}

// verification is the read-only result of the lookahead search.
type verification struct {
	valid            bool
	signatureVersion int
	matchedType      domain.SignatureType
	next             domain.CounterScheme
}

// attemptOutcome carries what must be logged once the transaction commits.
type attemptOutcome struct {
	response VerifySignatureResponse
	records  []domain.SignatureAuditRecord
	history  []domain.ActivationHistoryEntry
}

func (o *attemptOutcome) log(ctx context.Context, audit *auditLogger) {
	for _, record := range o.records {
		audit.logSignatureOutcome(ctx, record)
	}
	for _, entry := range o.history {
		audit.logStatusChange(ctx, entry)
	}
}

// runAttempt applies the verification state machine to a locked activation.
// Every write goes through tx so the whole attempt commits atomically.
func (s *Service) runAttempt(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, out *attemptOutcome) error {
	if act.Status != domain.ActivationStatusActive {
		return s.handleInactive(ctx, act, tx, attempt, out)
	}
	if act.CeilingReached() {
		return s.handleCeilingReached(ctx, act, tx, attempt, out)
	}

	v, err := s.searchCounterWindow(ctx, act, attempt)
	if err != nil {
		return err
	}
	if v.valid {
		return s.handleValid(ctx, act, tx, attempt, v, out)
	}
	return s.handleInvalid(ctx, act, tx, attempt, out)
}

// searchCounterWindow tries every counter in the lookahead window against every
// candidate payload and signature type. It does not mutate anything.
func (s *Service) searchCounterWindow(ctx context.Context, act domain.Activation, attempt signatureAttempt) (verification, error) {
	sigVersion, err := domain.SignatureVersionForActivation(act, attempt.data.ForcedSignatureVersion)
	if err != nil {
		return verification{}, err
	}
	counter, err := domain.CounterSchemeFor(act, sigVersion)
	if err != nil {
		return verification{}, err
	}

	serverPrivateKey, err := s.serverPrivateKey(ctx, act)
	if err != nil {
		return verification{}, err
	}
	defer clear(serverPrivateKey)

	factorKeys := make([][][]byte, len(attempt.types))
	for i, sigType := range attempt.types {
		keys, err := s.crypto.DeriveFactorKeys(serverPrivateKey, act.DevicePublicKey, sigType.Factors())
		if err != nil {
			return verification{}, err
		}
		factorKeys[i] = keys
	}

	for step := 0; step < s.cfg.SignatureLookahead; step++ {
		counterData := counter.Bytes()
		for i, sigType := range attempt.types {
			for _, payload := range attempt.data.Payloads {
				ok, err := s.crypto.VerifySignature(ports.SignatureCheck{
					Payload:         payload,
					Signature:       attempt.data.Signature,
					Format:          attempt.data.Format,
					ComponentLength: attempt.data.ComponentLength,
					FactorKeys:      factorKeys[i],
					CounterData:     counterData,
				})
				if err != nil {
					return verification{}, err
				}
				if ok {
					return verification{valid: true, signatureVersion: sigVersion, matchedType: sigType, next: counter.Next()}, nil
				}
			}
		}
		counter = counter.Next()
	}
	return verification{signatureVersion: sigVersion, matchedType: attempt.primaryType()}, nil
}

func (s *Service) serverPrivateKey(ctx context.Context, act domain.Activation) ([]byte, error) {
	key, err := s.keys.DecryptServerPrivateKey(ctx, ports.ServerKeyContext{
		Mode:         act.ServerKeyEncryption,
		UserID:       act.UserID,
		ActivationID: act.ActivationID,
	}, act.ServerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt server private key: %w", err)
	}
	return key, nil
}

func (s *Service) handleValid(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, v verification, out *attemptOutcome) error {
	now := s.nowFn()
	snapshot := act.Clone()

	act.Counter = v.next.Value()
	if v.next.Chained() {
		act.CounterData = v.next.Bytes()
	}
	if !v.matchedType.PossessionOnly() {
		act.FailedAttempts = 0
	}
	act.TimestampLastUsed = now
	if err := tx.Save(ctx, act); err != nil {
		return fmt.Errorf("save activation: %w", err)
	}

	record := s.audit.signatureRecord(snapshot, attempt.data, v.matchedType, true, domain.NoteSignatureOK, now)
	if err := tx.AppendSignatureAudit(ctx, record); err != nil {
		return fmt.Errorf("append signature audit: %w", err)
	}
	out.records = append(out.records, record)
	out.response = validResponse(act, v.matchedType)
	return nil
}

func (s *Service) handleInvalid(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, out *attemptOutcome) error {
	now := s.nowFn()
	snapshot := act.Clone()
	data := attempt.data
	sigType := attempt.primaryType()

	if attempt.offline && slices.Contains(attempt.types, domain.SignaturePossessionBiometry) {
		data = data.WithAdditionalInfo(domain.AdditionalInfoBiometryAllowed, "TRUE")
	}
	if !sigType.PossessionOnly() {
		act.FailedAttempts++
	}
	act.TimestampLastUsed = now

	if act.CeilingReached() {
		var err error
		if data, err = s.blockActivation(ctx, &act, tx, data, now, out); err != nil {
			return err
		}
	}
	if err := tx.Save(ctx, act); err != nil {
		return fmt.Errorf("save activation: %w", err)
	}

	record := s.audit.signatureRecord(snapshot, data, sigType, false, domain.NoteSignatureDoesNotMatch, now)
	if err := tx.AppendSignatureAudit(ctx, record); err != nil {
		return fmt.Errorf("append signature audit: %w", err)
	}
	out.records = append(out.records, record)
	out.response = invalidResponse(act, sigType)
	return nil
}

// handleCeilingReached covers an ACTIVE activation whose failed count is already at
// the ceiling. No verification is attempted and the activation is blocked.
func (s *Service) handleCeilingReached(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, out *attemptOutcome) error {
	now := s.nowFn()
	snapshot := act.Clone()
	sigType := attempt.primaryType()

	act.TimestampLastUsed = now
	data, err := s.blockActivation(ctx, &act, tx, attempt.data, now, out)
	if err != nil {
		return err
	}
	if err := tx.Save(ctx, act); err != nil {
		return fmt.Errorf("save activation: %w", err)
	}

	record := s.audit.signatureRecord(snapshot, data, sigType, false, domain.NoteActivationInvalidStateCounter, now)
	if err := tx.AppendSignatureAudit(ctx, record); err != nil {
		return fmt.Errorf("append signature audit: %w", err)
	}
	out.records = append(out.records, record)
	out.response = invalidStateResponse(act.ActivationID, act.Status)
	return nil
}

func (s *Service) handleInactive(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, out *attemptOutcome) error {
	now := s.nowFn()
	sigType := attempt.primaryType()

	act.TimestampLastUsed = now
	if err := tx.Save(ctx, act); err != nil {
		return fmt.Errorf("save activation: %w", err)
	}

	record := s.audit.signatureRecord(act, attempt.data, sigType, false, domain.NoteActivationInvalidState, now)
	if err := tx.AppendSignatureAudit(ctx, record); err != nil {
		return fmt.Errorf("append signature audit: %w", err)
	}
	out.records = append(out.records, record)
	out.response = invalidStateResponse(act.ActivationID, act.Status)
	return nil
}

// handleInvalidApplication records the attempt without touching the activation.
// The caller is not bound to the activation, so the response carries only its id and status.
func (s *Service) handleInvalidApplication(ctx context.Context, act domain.Activation, tx ports.ActivationTx, attempt signatureAttempt, out *attemptOutcome) error {
	now := s.nowFn()
	sigType := attempt.primaryType()

	record := s.audit.signatureRecord(act, attempt.data, sigType, false, domain.NoteActivationInvalidApplication, now)
	if err := tx.AppendSignatureAudit(ctx, record); err != nil {
		return fmt.Errorf("append signature audit: %w", err)
	}
	out.records = append(out.records, record)
	out.response = invalidStateResponse(act.ActivationID, act.Status)
	return nil
}

// blockActivation moves act to BLOCKED and stages the history entry and status event.
// It returns data extended with the blocked reason.
func (s *Service) blockActivation(ctx context.Context, act *domain.Activation, tx ports.ActivationTx, data domain.SignatureData, now time.Time, out *attemptOutcome) (domain.SignatureData, error) {
	if !act.Block(domain.BlockedReasonAuthFailed, now) {
		return data, nil
	}
	entry := s.audit.historyEntry(*act, domain.BlockedReasonAuthFailed, "", now)
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return data, fmt.Errorf("append activation history: %w", err)
	}
	if err := tx.EnqueueOutbox(ctx, statusChangedEvent(*act, now)); err != nil {
		return data, fmt.Errorf("enqueue status change: %w", err)
	}
	out.history = append(out.history, entry)
	return data.WithAdditionalInfo(domain.AdditionalInfoBlockedReason, domain.BlockedReasonAuthFailed), nil
}

func validResponse(act domain.Activation, sigType domain.SignatureType) VerifySignatureResponse {
	return VerifySignatureResponse{
		SignatureValid:    true,
		ActivationID:      act.ActivationID,
		ActivationStatus:  domain.ActivationStatusActive,
		RemainingAttempts: act.MaxFailedAttempts,
		UserID:            act.UserID,
		ApplicationID:     act.ApplicationID,
		ApplicationRoles:  slices.Clone(act.ApplicationRoles),
		ActivationFlags:   slices.Clone(act.Flags),
		SignatureType:     sigType,
	}
}

func invalidResponse(act domain.Activation, sigType domain.SignatureType) VerifySignatureResponse {
	return VerifySignatureResponse{
		SignatureValid:    false,
		ActivationID:      act.ActivationID,
		ActivationStatus:  act.Status,
		BlockedReason:     act.BlockedReason,
		RemainingAttempts: act.RemainingAttempts(),
		UserID:            act.UserID,
		ApplicationID:     act.ApplicationID,
		ApplicationRoles:  slices.Clone(act.ApplicationRoles),
		ActivationFlags:   slices.Clone(act.Flags),
		SignatureType:     sigType,
	}
}

func invalidStateResponse(activationID string, status domain.ActivationStatus) VerifySignatureResponse {
	return VerifySignatureResponse{
		SignatureValid:   false,
		ActivationID:     activationID,
		ActivationStatus: status,
	}
}
