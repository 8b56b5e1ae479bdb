package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) verifySignature(w http.ResponseWriter, r *http.Request) {
	const op = "verify_signature"
	var req application.VerifySignatureRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := h.service.VerifySignature(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) verifyOfflineSignature(w http.ResponseWriter, r *http.Request) {
	const op = "verify_offline_signature"
	var req application.VerifyOfflineSignatureRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := h.service.VerifyOfflineSignature(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createOfflinePayload(w http.ResponseWriter, r *http.Request) {
	const op = "create_offline_payload"
	var req application.OfflinePayloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := h.service.CreatePersonalizedOfflineSignaturePayload(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) verifyECDSASignature(w http.ResponseWriter, r *http.Request) {
	const op = "verify_ecdsa_signature"
	var req application.VerifyECDSASignatureRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := h.service.VerifyECDSASignature(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) unlockVault(w http.ResponseWriter, r *http.Request) {
	const op = "vault_unlock"
	var req application.VaultUnlockRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := h.service.UnlockVault(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listFlags(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListActivationFlags(r.Context(), chi.URLParam(r, "activation_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_activation_flags", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) addFlags(w http.ResponseWriter, r *http.Request) {
	h.mutateFlags(w, r, "add_activation_flags", h.service.AddActivationFlags)
}

func (h *Handler) updateFlags(w http.ResponseWriter, r *http.Request) {
	h.mutateFlags(w, r, "update_activation_flags", h.service.UpdateActivationFlags)
}

func (h *Handler) removeFlags(w http.ResponseWriter, r *http.Request) {
	h.mutateFlags(w, r, "remove_activation_flags", h.service.RemoveActivationFlags)
}

type flagsBody struct {
	Flags []string `json:"flags"`
}

func (h *Handler) mutateFlags(w http.ResponseWriter, r *http.Request, op string, call func(ctx context.Context, req application.FlagsRequest) (application.FlagsResponse, error)) {
	var body flagsBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	res, err := call(r.Context(), application.FlagsRequest{
		ActivationID: chi.URLParam(r, "activation_id"),
		Flags:        body.Flags,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) activationHistory(w http.ResponseWriter, r *http.Request) {
	const op = "get_activation_history"
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	entries, err := h.service.GetActivationHistory(r.Context(), application.HistoryRequest{
		ActivationID: chi.URLParam(r, "activation_id"),
		From:         from,
		To:           to,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toHistoryItem(e))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) signatureAudit(w http.ResponseWriter, r *http.Request) {
	const op = "get_signature_audit_log"
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	appID, err := parseInt64Query(r, "application_id")
	if err != nil {
		writeValidationError(r.Context(), w, op, err)
		return
	}
	records, err := h.service.GetSignatureAuditLog(r.Context(), application.SignatureAuditRequest{
		UserID:        strings.TrimSpace(r.URL.Query().Get("user_id")),
		ApplicationID: appID,
		From:          from,
		To:            to,
	})
	if err != nil {
		writeMappedError(r.Context(), w, op, err)
		return
	}
	items := make([]signatureAuditItem, 0, len(records))
	for _, rec := range records {
		items = append(items, toSignatureAuditItem(rec))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}

type historyItem struct {
	ID             int64  `json:"id"`
	ActivationID   string `json:"activation_id"`
	Status         string `json:"activation_status"`
	Reason         string `json:"event_reason,omitempty"`
	ExternalUserID string `json:"external_user_id,omitempty"`
	Version        int    `json:"activation_version"`
	CreatedAt      string `json:"timestamp_created"`
}

func toHistoryItem(e domain.ActivationHistoryEntry) historyItem {
	return historyItem{
		ID:             e.ID,
		ActivationID:   e.ActivationID,
		Status:         string(e.Status),
		Reason:         e.Reason,
		ExternalUserID: e.ExternalUserID,
		Version:        e.Version,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type signatureAuditItem struct {
	ID                int64             `json:"id"`
	ActivationID      string            `json:"activation_id"`
	UserID            string            `json:"user_id"`
	ApplicationID     int64             `json:"application_id"`
	Counter           int64             `json:"activation_counter"`
	CounterData       []byte            `json:"activation_ctr_data,omitempty"`
	Status            string            `json:"activation_status"`
	BlockedReason     string            `json:"blocked_reason,omitempty"`
	AdditionalInfo    map[string]string `json:"additional_info,omitempty"`
	DataBase64        string            `json:"data_base64"`
	Signature         string            `json:"signature"`
	SignatureType     string            `json:"signature_type"`
	SignatureVersion  string            `json:"signature_version"`
	ActivationVersion int               `json:"activation_version"`
	Valid             bool              `json:"valid"`
	Note              string            `json:"note"`
	CreatedAt         string            `json:"timestamp_created"`
}

func toSignatureAuditItem(rec domain.SignatureAuditRecord) signatureAuditItem {
	return signatureAuditItem{
		ID:                rec.ID,
		ActivationID:      rec.ActivationID,
		UserID:            rec.UserID,
		ApplicationID:     rec.ApplicationID,
		Counter:           rec.Counter,
		CounterData:       rec.CounterData,
		Status:            string(rec.Status),
		BlockedReason:     rec.BlockedReason,
		AdditionalInfo:    rec.AdditionalInfo,
		DataBase64:        rec.DataBase64,
		Signature:         rec.Signature,
		SignatureType:     string(rec.SignatureType),
		SignatureVersion:  rec.SignatureVersion,
		ActivationVersion: rec.ActivationVersion,
		Valid:             rec.Valid,
		Note:              rec.Note,
		CreatedAt:         rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
