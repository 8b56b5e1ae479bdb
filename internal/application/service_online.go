package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// VerifySignature verifies an online signature and advances the activation state.
// Authentication failures are reported through the response, never as errors.
func (s *Service) VerifySignature(ctx context.Context, req VerifySignatureRequest) (VerifySignatureResponse, error) {
	if err := requireFields(
		field{"activation_id", req.ActivationID},
		field{"application_key", req.ApplicationKey},
		field{"data", req.Data},
		field{"signature", req.Signature},
		field{"signature_type", req.SignatureType},
		field{"signature_version", req.SignatureVersion},
	); err != nil {
		return VerifySignatureResponse{}, err
	}
	sigType, err := domain.ParseSignatureType(req.SignatureType)
	if err != nil {
		return VerifySignatureResponse{}, err
	}
	format, err := domain.FormatForVersion(req.SignatureVersion)
	if err != nil {
		return VerifySignatureResponse{}, err
	}

	attempt := signatureAttempt{
		data: domain.SignatureData{
			Signature:              req.Signature,
			Format:                 format,
			ComponentLength:        domain.DefaultComponentLength,
			Version:                req.SignatureVersion,
			AdditionalInfo:         req.AdditionalInfo,
			ForcedSignatureVersion: req.ForcedSignatureVersion,
		},
		types: []domain.SignatureType{sigType},
	}
	resp, err := s.verifyOnline(ctx, req.ActivationID, req.ApplicationKey, []byte(req.Data), attempt)
	if err != nil {
		return VerifySignatureResponse{}, classifyError(ctx, "verify_signature", err)
	}
	return resp, nil
}

// verifyOnline binds the attempt to the application secret and runs it under the activation lock.
func (s *Service) verifyOnline(ctx context.Context, activationID, applicationKey string, data []byte, attempt signatureAttempt) (VerifySignatureResponse, error) {
	appVersion, found, err := s.appVersions.FindByKey(ctx, applicationKey)
	if err != nil {
		return VerifySignatureResponse{}, fmt.Errorf("find application version: %w", err)
	}

	var out attemptOutcome
	err = s.activations.WithLock(ctx, activationID, func(ctx context.Context, act domain.Activation, tx ports.ActivationTx) error {
		if err := domain.ValidateProtocol(act, domain.ProtocolPowerAuth); err != nil {
			return err
		}
		if !found || !appVersion.Supported || appVersion.ApplicationID != act.ApplicationID {
			attempt.data.Payloads = [][]byte{signedPayload(data, []byte(applicationKey))}
			return s.handleInvalidApplication(ctx, act, tx, attempt, &out)
		}
		attempt.data.Payloads = [][]byte{signedPayload(data, []byte(appVersion.ApplicationSecret))}
		return s.runAttempt(ctx, act, tx, attempt, &out)
	})
	if errors.Is(err, domain.ErrActivationNotFound) {
		return invalidStateResponse(activationID, domain.ActivationStatusRemoved), nil
	}
	if err != nil {
		return VerifySignatureResponse{}, err
	}
	out.log(ctx, s.audit)
	return out.response, nil
}

// signedPayload joins payload parts with '&'.
func signedPayload(parts ...[]byte) []byte {
	return bytes.Join(parts, []byte("&"))
}
