package application

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const (
	envelopeNonceLength = 16
	// vaultActivationVersion is the only activation version the 3.x envelope can serve.
	vaultActivationVersion = 3
)

var vaultReasonPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)

// UnlockVault releases the wrapped vault encryption key to a caller that presents a
// valid signature. Request and response travel in an end-to-end encrypted envelope.
func (s *Service) UnlockVault(ctx context.Context, req VaultUnlockRequest) (VaultUnlockResponse, error) {
	resp, err := s.unlockVault(ctx, req)
	if err != nil {
		return VaultUnlockResponse{}, classifyError(ctx, "vault_unlock", err)
	}
	return resp, nil
}

func (s *Service) unlockVault(ctx context.Context, req VaultUnlockRequest) (VaultUnlockResponse, error) {
	if err := requireFields(
		field{"activation_id", req.ActivationID},
		field{"application_key", req.ApplicationKey},
		field{"signature", req.Signature},
		field{"signature_type", req.SignatureType},
		field{"signature_version", req.SignatureVersion},
		field{"signed_data", req.SignedData},
		field{"protocol_version", req.ProtocolVersion},
		field{"ephemeral_public_key", req.EphemeralPublicKey},
		field{"encrypted_data", req.EncryptedData},
		field{"mac", req.Mac},
	); err != nil {
		return VaultUnlockResponse{}, err
	}
	protocol := domain.EnvelopeProtocol{Version: req.ProtocolVersion}
	if !protocol.Supported() {
		return VaultUnlockResponse{}, fmt.Errorf("%w: protocol version %q", domain.ErrInvalidRequest, req.ProtocolVersion)
	}
	if protocol.UsesNonce() && req.Nonce == "" {
		return VaultUnlockResponse{}, fmt.Errorf("%w: nonce is required", domain.ErrInvalidRequest)
	}
	if protocol.UsesTimestamp() && req.Timestamp == nil {
		return VaultUnlockResponse{}, fmt.Errorf("%w: timestamp is required", domain.ErrInvalidRequest)
	}
	sigType, err := domain.ParseSignatureType(req.SignatureType)
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	format, err := domain.FormatForVersion(req.SignatureVersion)
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	envelope, err := decodeRequestEnvelope(req, protocol)
	if err != nil {
		return VaultUnlockResponse{}, err
	}

	act, err := s.activations.FindWithoutLock(ctx, req.ActivationID)
	if errors.Is(err, domain.ErrActivationNotFound) {
		return VaultUnlockResponse{SignatureValid: false}, nil
	}
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	appVersion, found, err := s.appVersions.FindByKey(ctx, req.ApplicationKey)
	if err != nil {
		return VaultUnlockResponse{}, fmt.Errorf("find application version: %w", err)
	}
	if !found || !appVersion.Supported || appVersion.ApplicationID != act.ApplicationID || act.Status != domain.ActivationStatusActive {
		return VaultUnlockResponse{SignatureValid: false}, nil
	}
	if err := domain.ValidateProtocol(act, domain.ProtocolPowerAuth); err != nil {
		return VaultUnlockResponse{}, err
	}
	if err := domain.ValidateVersion(act, vaultActivationVersion); err != nil {
		return VaultUnlockResponse{}, err
	}

	serverPrivateKey, err := s.serverPrivateKey(ctx, act)
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	defer clear(serverPrivateKey)

	transportKey, err := s.crypto.DeriveTransportKey(serverPrivateKey, act.DevicePublicKey)
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	defer clear(transportKey)
	sharedInfo2 := s.crypto.ActivationSharedInfo(transportKey, appVersion.ApplicationSecret)

	plaintext, session, err := s.crypto.OpenEnvelope(serverPrivateKey, domain.EnvelopeSharedInfoVaultUnlock, sharedInfo2, envelope)
	if err != nil {
		return VaultUnlockResponse{}, err
	}
	reason, err := parseVaultReason(plaintext)
	if err != nil {
		return VaultUnlockResponse{}, err
	}

	attempt := signatureAttempt{
		data: domain.SignatureData{
			Signature:       req.Signature,
			Format:          format,
			ComponentLength: domain.DefaultComponentLength,
			Version:         req.SignatureVersion,
			AdditionalInfo:  map[string]string{domain.AdditionalInfoVaultUnlockedReason: reason},
		},
		types: []domain.SignatureType{sigType},
	}
	verified, err := s.verifyOnline(ctx, req.ActivationID, req.ApplicationKey, []byte(req.SignedData), attempt)
	if err != nil {
		return VaultUnlockResponse{}, err
	}

	var payload vaultUnlockResponsePayload
	if verified.SignatureValid {
		vaultKey, err := s.crypto.EncryptVaultKey(serverPrivateKey, act.DevicePublicKey)
		if err != nil {
			return VaultUnlockResponse{}, err
		}
		payload.EncryptedVaultEncryptionKey = base64.StdEncoding.EncodeToString(vaultKey)
	}
	return s.sealVaultResponse(ctx, session, payload, protocol, envelope.AssociatedData, verified.SignatureValid)
}

func (s *Service) sealVaultResponse(ctx context.Context, session ports.EnvelopeSession, payload vaultUnlockResponsePayload, protocol domain.EnvelopeProtocol, associatedData []byte, valid bool) (VaultUnlockResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return VaultUnlockResponse{}, fmt.Errorf("%w: marshal response: %v", domain.ErrEncryptionFailed, err)
	}
	var nonce []byte
	if protocol.UsesNonce() {
		if nonce, err = s.crypto.RandomBytes(envelopeNonceLength); err != nil {
			return VaultUnlockResponse{}, fmt.Errorf("%w: response nonce: %v", domain.ErrEncryptionFailed, err)
		}
	}
	var timestamp *int64
	if protocol.UsesTimestamp() {
		ts := s.nowFn().UnixMilli()
		timestamp = &ts
	}

	sealed, err := session.SealResponse(body, nonce, timestamp, associatedData)
	if err != nil {
		appLogger().ErrorContext(ctx, "vault unlock response encryption failed",
			"operation", "vault_unlock",
			"outcome", "failure",
			"error", err,
		)
		if errors.Is(err, domain.ErrEncryptionFailed) {
			return VaultUnlockResponse{}, err
		}
		return VaultUnlockResponse{}, fmt.Errorf("%w: %v", domain.ErrEncryptionFailed, err)
	}

	resp := VaultUnlockResponse{
		EncryptedData:  base64.StdEncoding.EncodeToString(sealed.EncryptedData),
		Mac:            base64.StdEncoding.EncodeToString(sealed.Mac),
		Timestamp:      sealed.Timestamp,
		SignatureValid: valid,
	}
	if len(sealed.Nonce) > 0 {
		resp.Nonce = base64.StdEncoding.EncodeToString(sealed.Nonce)
	}
	return resp, nil
}

func decodeRequestEnvelope(req VaultUnlockRequest, protocol domain.EnvelopeProtocol) (domain.EncryptedEnvelope, error) {
	ephemeral, err := decodeBase64Field("ephemeral_public_key", req.EphemeralPublicKey)
	if err != nil {
		return domain.EncryptedEnvelope{}, err
	}
	encrypted, err := decodeBase64Field("encrypted_data", req.EncryptedData)
	if err != nil {
		return domain.EncryptedEnvelope{}, err
	}
	mac, err := decodeBase64Field("mac", req.Mac)
	if err != nil {
		return domain.EncryptedEnvelope{}, err
	}
	env := domain.EncryptedEnvelope{
		EphemeralPublicKey: ephemeral,
		EncryptedData:      encrypted,
		Mac:                mac,
	}
	if protocol.UsesNonce() {
		if env.Nonce, err = decodeBase64Field("nonce", req.Nonce); err != nil {
			return domain.EncryptedEnvelope{}, err
		}
	}
	if protocol.UsesTimestamp() {
		env.Timestamp = req.Timestamp
		env.AssociatedData = domain.EnvelopeAssociatedData(req.ProtocolVersion, req.ApplicationKey, req.ActivationID)
	}
	return env, nil
}

// parseVaultReason validates the decrypted request body.
func parseVaultReason(plaintext []byte) (string, error) {
	var body vaultUnlockPayload
	if len(plaintext) > 0 {
		if err := json.Unmarshal(plaintext, &body); err != nil {
			return "", fmt.Errorf("%w: vault unlock request body", domain.ErrInvalidInputFormat)
		}
	}
	if body.Reason == nil {
		return domain.VaultUnlockedReasonNotSpecified, nil
	}
	if !vaultReasonPattern.MatchString(*body.Reason) {
		return "", fmt.Errorf("%w: vault unlock reason", domain.ErrInvalidInputFormat)
	}
	return *body.Reason, nil
}
