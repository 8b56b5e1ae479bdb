package application

import (
	"context"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

// VerifyECDSASignature checks a device ECDSA signature over base64 data.
// It never changes the activation.
func (s *Service) VerifyECDSASignature(ctx context.Context, req VerifyECDSASignatureRequest) (VerifyECDSASignatureResponse, error) {
	if err := requireFields(
		field{"activation_id", req.ActivationID},
		field{"data", req.Data},
		field{"signature", req.Signature},
	); err != nil {
		return VerifyECDSASignatureResponse{}, err
	}
	data, err := decodeBase64Field("data", req.Data)
	if err != nil {
		return VerifyECDSASignatureResponse{}, err
	}
	signature, err := decodeBase64Field("signature", req.Signature)
	if err != nil {
		return VerifyECDSASignatureResponse{}, err
	}

	act, err := s.activations.FindWithoutLock(ctx, req.ActivationID)
	if err != nil {
		return VerifyECDSASignatureResponse{}, classifyError(ctx, "verify_ecdsa_signature", err)
	}
	if err := domain.ValidateProtocol(act, domain.ProtocolPowerAuth); err != nil {
		return VerifyECDSASignatureResponse{}, err
	}

	valid, err := s.crypto.VerifyECDSA(act.DevicePublicKey, data, signature)
	if err != nil {
		return VerifyECDSASignatureResponse{}, classifyError(ctx, "verify_ecdsa_signature", err)
	}
	return VerifyECDSASignatureResponse{SignatureValid: valid}, nil
}
