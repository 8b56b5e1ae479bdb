package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

const serviceName = "viralforge.signature.v1.SignatureService"

// SignatureService is the application surface exposed to internal gRPC callers.
type SignatureService interface {
	VerifySignature(ctx context.Context, req application.VerifySignatureRequest) (application.VerifySignatureResponse, error)
	VerifyOfflineSignature(ctx context.Context, req application.VerifyOfflineSignatureRequest) (application.VerifySignatureResponse, error)
	VerifyECDSASignature(ctx context.Context, req application.VerifyECDSASignatureRequest) (application.VerifyECDSASignatureResponse, error)
	CreatePersonalizedOfflineSignaturePayload(ctx context.Context, req application.OfflinePayloadRequest) (application.OfflinePayloadResponse, error)
	UnlockVault(ctx context.Context, req application.VaultUnlockRequest) (application.VaultUnlockResponse, error)
}

// SignatureInternalService is the wire-level contract. Messages are google.protobuf.Struct
// values carrying the same field names as the HTTP API.
type SignatureInternalService interface {
	VerifySignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyOfflineSignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyECDSASignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateOfflinePayload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnlockVault(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// MethodScopes lists the integration scope each RPC requires.
var MethodScopes = map[string]string{
	fullMethod("VerifySignature"):        ports.ScopeSignatureVerify,
	fullMethod("VerifyOfflineSignature"): ports.ScopeSignatureVerify,
	fullMethod("VerifyECDSASignature"):   ports.ScopeSignatureVerify,
	fullMethod("CreateOfflinePayload"):   ports.ScopeSignatureVerify,
	fullMethod("UnlockVault"):            ports.ScopeVaultUnlock,
}

type SignatureServer struct {
	service SignatureService
}

func NewSignatureServer(service SignatureService) *SignatureServer {
	return &SignatureServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc SignatureInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*SignatureInternalService)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod("VerifySignature", svc.VerifySignature),
			unaryMethod("VerifyOfflineSignature", svc.VerifyOfflineSignature),
			unaryMethod("VerifyECDSASignature", svc.VerifyECDSASignature),
			unaryMethod("CreateOfflinePayload", svc.CreateOfflinePayload),
			unaryMethod("UnlockVault", svc.UnlockVault),
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/signature/v1/signature_internal.proto",
	}, svc)
}

func (s *SignatureServer) VerifySignature(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in application.VerifySignatureRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	out, err := s.service.VerifySignature(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, "VerifySignature", err)
	}
	return encodeStruct(out)
}

func (s *SignatureServer) VerifyOfflineSignature(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in application.VerifyOfflineSignatureRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	out, err := s.service.VerifyOfflineSignature(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, "VerifyOfflineSignature", err)
	}
	return encodeStruct(out)
}

func (s *SignatureServer) VerifyECDSASignature(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in application.VerifyECDSASignatureRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	out, err := s.service.VerifyECDSASignature(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, "VerifyECDSASignature", err)
	}
	return encodeStruct(out)
}

func (s *SignatureServer) CreateOfflinePayload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in application.OfflinePayloadRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	out, err := s.service.CreatePersonalizedOfflineSignaturePayload(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, "CreateOfflinePayload", err)
	}
	return encodeStruct(out)
}

func (s *SignatureServer) UnlockVault(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in application.VaultUnlockRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	out, err := s.service.UnlockVault(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, "UnlockVault", err)
	}
	return encodeStruct(out)
}

// AuthInterceptor validates the integration bearer token on every RPC listed in scopes.
// Other services on the same server, such as health, are not checked.
func AuthInterceptor(verifier ports.IntegrationTokenVerifier, scopes map[string]string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		scope, guarded := scopes[info.FullMethod]
		if !guarded || verifier == nil {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 || !strings.HasPrefix(values[0], "Bearer ") {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := verifier.ParseAndValidate(strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer ")))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		if !claims.HasScope(scope) {
			return nil, status.Errorf(codes.PermissionDenied, "missing scope %s", scope)
		}
		return handler(ctx, req)
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal so one request cannot stop the server.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Default().ErrorContext(ctx, "panic recovered",
					"service", "M04-Activation-Signature-Service",
					"module", "signature",
					"layer", "adapter.grpc",
					"operation", "grpc_panic_recovery",
					"outcome", "failure",
					"method", info.FullMethod,
					"panic", rec,
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func unaryMethod(name string, call func(context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := &structpb.Struct{}
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				typed, ok := req.(*structpb.Struct)
				if !ok {
					return nil, status.Error(codes.InvalidArgument, "invalid request type")
				}
				return call(ctx, typed)
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// decodeStruct maps a Struct onto a request type through its JSON tags.
func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func toStatus(ctx context.Context, method string, err error) error {
	code := codes.Internal
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		code, msg = codes.InvalidArgument, err.Error()
	case errors.Is(err, domain.ErrInvalidInputFormat):
		code, msg = codes.InvalidArgument, "invalid input format"
	case errors.Is(err, domain.ErrDecryptionFailed):
		code, msg = codes.InvalidArgument, "request decryption failed"
	case errors.Is(err, domain.ErrActivationNotFound):
		code, msg = codes.NotFound, "activation not found"
	case errors.Is(err, domain.ErrActivationIncorrectState):
		code, msg = codes.FailedPrecondition, "activation is in incorrect state"
	case errors.Is(err, domain.ErrUnauthorized):
		code, msg = codes.Unauthenticated, "unauthorized"
	}
	level := slog.LevelWarn
	if code == codes.Internal {
		level = slog.LevelError
	}
	slog.Default().Log(ctx, level, "grpc operation failed",
		"service", "M04-Activation-Signature-Service",
		"module", "signature",
		"layer", "adapter.grpc",
		"operation", method,
		"code", code.String(),
		"error", err,
	)
	return status.Error(code, msg)
}
