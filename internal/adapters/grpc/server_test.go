package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

type stubSignatureService struct {
	lastVerify application.VerifySignatureRequest
	err        error
}

func (s *stubSignatureService) VerifySignature(_ context.Context, req application.VerifySignatureRequest) (application.VerifySignatureResponse, error) {
	s.lastVerify = req
	if s.err != nil {
		return application.VerifySignatureResponse{}, s.err
	}
	return application.VerifySignatureResponse{
		SignatureValid:    true,
		ActivationID:      req.ActivationID,
		ActivationStatus:  domain.ActivationStatusActive,
		RemainingAttempts: 5,
		ActivationFlags:   []string{"VIP"},
	}, nil
}

func (s *stubSignatureService) VerifyOfflineSignature(context.Context, application.VerifyOfflineSignatureRequest) (application.VerifySignatureResponse, error) {
	return application.VerifySignatureResponse{}, domain.ErrInvalidRequest
}

func (s *stubSignatureService) VerifyECDSASignature(context.Context, application.VerifyECDSASignatureRequest) (application.VerifyECDSASignatureResponse, error) {
	return application.VerifyECDSASignatureResponse{}, domain.ErrActivationNotFound
}

func (s *stubSignatureService) CreatePersonalizedOfflineSignaturePayload(context.Context, application.OfflinePayloadRequest) (application.OfflinePayloadResponse, error) {
	return application.OfflinePayloadResponse{}, domain.ErrActivationIncorrectState
}

func (s *stubSignatureService) UnlockVault(context.Context, application.VaultUnlockRequest) (application.VaultUnlockResponse, error) {
	return application.VaultUnlockResponse{}, domain.ErrGenericCryptography
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestSignatureServerErrorCodes(t *testing.T) {
	t.Parallel()

	srv := NewSignatureServer(&stubSignatureService{})
	ctx := context.Background()
	req := mustStruct(t, map[string]any{"activation_id": "act-1"})

	tests := []struct {
		name string
		call func(context.Context, *structpb.Struct) (*structpb.Struct, error)
		code codes.Code
	}{
		{"offline invalid request", srv.VerifyOfflineSignature, codes.InvalidArgument},
		{"ecdsa not found", srv.VerifyECDSASignature, codes.NotFound},
		{"payload incorrect state", srv.CreateOfflinePayload, codes.FailedPrecondition},
		{"vault cryptography", srv.UnlockVault, codes.Internal},
	}
	for _, tc := range tests {
		tc := tc
		_, err := tc.call(ctx, req)
		if status.Code(err) != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}

	_, err := srv.VerifySignature(ctx, mustStruct(t, map[string]any{"forced_signature_version": "three"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for mistyped field, got %v", err)
	}
}

func TestSignatureServerOverBufconn(t *testing.T) {
	t.Parallel()

	tokens, err := security.NewEphemeralIntegrationTokens("kid", "")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	svc := &stubSignatureService{}

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(tokens, MethodScopes)))
	Register(server, NewSignatureServer(svc))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	req := mustStruct(t, map[string]any{
		"activation_id":            "act-1",
		"application_key":          "key",
		"data":                     "data",
		"signature":                "sig",
		"signature_type":           "POSSESSION",
		"signature_version":        "3.1",
		"forced_signature_version": 3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp structpb.Struct
	err = conn.Invoke(ctx, fullMethod("VerifySignature"), req, &resp)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated without token, got %v", err)
	}

	now := time.Now()
	vaultOnly, err := tokens.Sign(ports.IntegrationClaims{Subject: "svc", Scopes: []string{ports.ScopeVaultUnlock}, IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = conn.Invoke(metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+vaultOnly), fullMethod("VerifySignature"), req, &resp)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}

	verifier, err := tokens.Sign(ports.IntegrationClaims{Subject: "svc", Scopes: []string{ports.ScopeSignatureVerify}, IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = conn.Invoke(metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+verifier), fullMethod("VerifySignature"), req, &resp)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	fields := resp.AsMap()
	if fields["signature_valid"] != true || fields["activation_status"] != "ACTIVE" || fields["remaining_attempts"] != float64(5) {
		t.Fatalf("unexpected response: %v", fields)
	}
	if svc.lastVerify.ForcedSignatureVersion == nil || *svc.lastVerify.ForcedSignatureVersion != 3 {
		t.Fatalf("forced version not decoded: %+v", svc.lastVerify)
	}
}

func TestAuthInterceptorSkipsUnguardedMethods(t *testing.T) {
	t.Parallel()

	tokens, err := security.NewEphemeralIntegrationTokens("kid", "")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	interceptor := AuthInterceptor(tokens, MethodScopes)
	called := false
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil || !called {
		t.Fatalf("expected health check to pass through, err=%v called=%v", err, called)
	}

	open := AuthInterceptor(nil, MethodScopes)
	called = false
	_, err = open(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod("UnlockVault")}, func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil || !called {
		t.Fatalf("expected nil verifier to disable auth, err=%v called=%v", err, called)
	}
}

func TestRecoveryInterceptorReturnsInternal(t *testing.T) {
	t.Parallel()

	interceptor := RecoveryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("VerifyOfflineSignature")}
	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("makeslice: cap out of range")
	})
	if resp != nil || status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal after panic, resp=%v err=%v", resp, err)
	}

	resp, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("expected passthrough, resp=%v err=%v", resp, err)
	}
}
