package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

// SignatureService is the application surface served over HTTP.
type SignatureService interface {
	VerifySignature(ctx context.Context, req application.VerifySignatureRequest) (application.VerifySignatureResponse, error)
	VerifyOfflineSignature(ctx context.Context, req application.VerifyOfflineSignatureRequest) (application.VerifySignatureResponse, error)
	VerifyECDSASignature(ctx context.Context, req application.VerifyECDSASignatureRequest) (application.VerifyECDSASignatureResponse, error)
	CreatePersonalizedOfflineSignaturePayload(ctx context.Context, req application.OfflinePayloadRequest) (application.OfflinePayloadResponse, error)
	UnlockVault(ctx context.Context, req application.VaultUnlockRequest) (application.VaultUnlockResponse, error)
	ListActivationFlags(ctx context.Context, activationID string) (application.FlagsResponse, error)
	AddActivationFlags(ctx context.Context, req application.FlagsRequest) (application.FlagsResponse, error)
	UpdateActivationFlags(ctx context.Context, req application.FlagsRequest) (application.FlagsResponse, error)
	RemoveActivationFlags(ctx context.Context, req application.FlagsRequest) (application.FlagsResponse, error)
	GetActivationHistory(ctx context.Context, req application.HistoryRequest) ([]domain.ActivationHistoryEntry, error)
	GetSignatureAuditLog(ctx context.Context, req application.SignatureAuditRequest) ([]domain.SignatureAuditRecord, error)
}

// Handler is the HTTP adapter entrypoint for signature use-cases.
// A nil verifier disables integration authentication.
type Handler struct {
	service  SignatureService
	verifier ports.IntegrationTokenVerifier
}

func NewHandler(service SignatureService, verifier ports.IntegrationTokenVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// NewRouter registers HTTP routes and the middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/signature/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(requireScope(ports.ScopeSignatureVerify))
			r.Post("/signatures/verify", handler.verifySignature)
			r.Post("/signatures/offline/verify", handler.verifyOfflineSignature)
			r.Post("/signatures/offline/payload", handler.createOfflinePayload)
			r.Post("/signatures/ecdsa/verify", handler.verifyECDSASignature)
		})
		r.With(requireScope(ports.ScopeVaultUnlock)).Post("/vault/unlock", handler.unlockVault)

		r.Group(func(r chi.Router) {
			r.Use(requireScope(ports.ScopeActivationAdmin))
			r.Get("/activations/{activation_id}/flags", handler.listFlags)
			r.Post("/activations/{activation_id}/flags", handler.addFlags)
			r.Put("/activations/{activation_id}/flags", handler.updateFlags)
			r.Delete("/activations/{activation_id}/flags", handler.removeFlags)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireScope(ports.ScopeAuditRead))
			r.Get("/activations/{activation_id}/history", handler.activationHistory)
			r.Get("/signature-audit", handler.signatureAudit)
		})
	})

	return r
}
