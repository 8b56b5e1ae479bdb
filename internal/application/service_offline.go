package application

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	offlineSuffix      = "offline"
	offlineNonceLength = 16
	// offlineKeyServerPrivate marks payloads signed with the activation's server private key.
	offlineKeyServerPrivate = "1"
	minComponentLength      = 4
	maxComponentLength      = 8
	maxProximityStepCount   = 10
	maxProximityStepSeconds = 3600
)

// VerifyOfflineSignature verifies a DECIMAL signature typed in by the user from an
// offline QR code. It shares counters and lockout with online verification.
func (s *Service) VerifyOfflineSignature(ctx context.Context, req VerifyOfflineSignatureRequest) (VerifySignatureResponse, error) {
	if err := requireFields(
		field{"activation_id", req.ActivationID},
		field{"data", req.Data},
		field{"signature", req.Signature},
	); err != nil {
		return VerifySignatureResponse{}, err
	}

	componentLength := s.cfg.OfflineComponentLength
	if req.ComponentLength != nil {
		componentLength = *req.ComponentLength
	}
	if componentLength < minComponentLength || componentLength > maxComponentLength {
		return VerifySignatureResponse{}, fmt.Errorf("%w: component length %d", domain.ErrInvalidRequest, componentLength)
	}

	payloads, err := s.offlinePayloads([]byte(req.Data), req.ProximityCheck)
	if err != nil {
		return VerifySignatureResponse{}, classifyError(ctx, "verify_offline_signature", err)
	}

	types := []domain.SignatureType{domain.SignaturePossessionKnowledge}
	if req.AllowBiometry {
		types = append(types, domain.SignaturePossessionBiometry)
	}
	attempt := signatureAttempt{
		data: domain.SignatureData{
			Payloads:        payloads,
			Signature:       req.Signature,
			Format:          domain.SignatureFormatDecimal,
			ComponentLength: componentLength,
		},
		types:   types,
		offline: true,
	}

	var out attemptOutcome
	err = s.activations.WithLock(ctx, req.ActivationID, func(ctx context.Context, act domain.Activation, tx ports.ActivationTx) error {
		if err := domain.ValidateProtocol(act, domain.ProtocolPowerAuth); err != nil {
			return err
		}
		attempt.data.Version = fmt.Sprintf("%d.0", act.Version)
		return s.runAttempt(ctx, act, tx, attempt, &out)
	})
	if errors.Is(err, domain.ErrActivationNotFound) {
		return invalidStateResponse(req.ActivationID, domain.ActivationStatusRemoved), nil
	}
	if err != nil {
		return VerifySignatureResponse{}, classifyError(ctx, "verify_offline_signature", err)
	}
	out.log(ctx, s.audit)
	return out.response, nil
}

// offlinePayloads returns the candidate payloads. Without a proximity check there is
// exactly one; with it there is one per time step in the tolerance window.
func (s *Service) offlinePayloads(data []byte, check *ProximityCheck) ([][]byte, error) {
	suffix := []byte(offlineSuffix)
	if check == nil {
		return [][]byte{signedPayload(data, suffix)}, nil
	}

	seed, err := decodeBase64Field("proximity_check.seed", check.Seed)
	if err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: proximity_check.seed is required", domain.ErrInvalidRequest)
	}
	stepLength := s.cfg.ProximityStepLength
	if check.StepLengthSeconds != 0 {
		if check.StepLengthSeconds < 1 || check.StepLengthSeconds > maxProximityStepSeconds {
			return nil, fmt.Errorf("%w: proximity_check.step_length %d", domain.ErrInvalidRequest, check.StepLengthSeconds)
		}
		stepLength = time.Duration(check.StepLengthSeconds) * time.Second
	}
	stepCount := s.cfg.ProximityStepCount
	if check.StepCount != 0 {
		if check.StepCount < 1 || check.StepCount > maxProximityStepCount {
			return nil, fmt.Errorf("%w: proximity_check.step_count %d", domain.ErrInvalidRequest, check.StepCount)
		}
		stepCount = check.StepCount
	}
	if stepLength < time.Second {
		return nil, fmt.Errorf("%w: proximity step length %s", domain.ErrInvalidRequest, stepLength)
	}

	current := s.nowFn().Unix() / int64(stepLength/time.Second)
	payloads := make([][]byte, 0, 2*stepCount+1)
	for _, step := range proximitySteps(current, stepCount) {
		otp, err := s.crypto.TimeBasedOTP(seed, step, s.cfg.ProximityOTPLength)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, signedPayload(data, []byte(otp), suffix))
	}
	return payloads, nil
}

// proximitySteps lists the current step first, then alternates outward.
func proximitySteps(current int64, count int) []int64 {
	steps := []int64{current}
	for i := 1; i <= count; i++ {
		steps = append(steps, current-int64(i), current+int64(i))
	}
	return steps
}

// CreatePersonalizedOfflineSignaturePayload builds QR code data signed by the
// activation's server private key.
func (s *Service) CreatePersonalizedOfflineSignaturePayload(ctx context.Context, req OfflinePayloadRequest) (OfflinePayloadResponse, error) {
	if err := requireFields(
		field{"activation_id", req.ActivationID},
		field{"data", req.Data},
	); err != nil {
		return OfflinePayloadResponse{}, err
	}

	act, err := s.activations.FindWithoutLock(ctx, req.ActivationID)
	if err != nil {
		return OfflinePayloadResponse{}, classifyError(ctx, "create_offline_payload", err)
	}
	if err := domain.ValidateProtocol(act, domain.ProtocolPowerAuth); err != nil {
		return OfflinePayloadResponse{}, err
	}
	if err := domain.ValidateActiveStatus(act); err != nil {
		return OfflinePayloadResponse{}, err
	}

	nonceBytes, err := s.crypto.RandomBytes(offlineNonceLength)
	if err != nil {
		return OfflinePayloadResponse{}, classifyError(ctx, "create_offline_payload", err)
	}
	nonce := base64.StdEncoding.EncodeToString(nonceBytes)
	signed := req.Data + "\n" + nonce + "\n" + offlineKeyServerPrivate

	serverPrivateKey, err := s.serverPrivateKey(ctx, act)
	if err != nil {
		return OfflinePayloadResponse{}, classifyError(ctx, "create_offline_payload", err)
	}
	defer clear(serverPrivateKey)

	signature, err := s.crypto.SignECDSA(serverPrivateKey, []byte(signed))
	if err != nil {
		return OfflinePayloadResponse{}, classifyError(ctx, "create_offline_payload", err)
	}
	return OfflinePayloadResponse{
		OfflineData: signed + base64.StdEncoding.EncodeToString(signature),
		Nonce:       nonce,
	}, nil
}
