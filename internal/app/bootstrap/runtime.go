package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/cache"
	cryptoadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/crypto"
	eventadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-activation-signature-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping m04 activation signature service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	closers = append(closers, func() { _ = postgres.Close(db) })

	if err := postgres.RunMigrations(ctx, db); err != nil {
		cleanup()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)

	var appVersions ports.ApplicationVersionRepository = repos.ApplicationVersions
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		appVersions = cacheadapter.NewCachedApplicationVersions(
			repos.ApplicationVersions,
			cacheadapter.NewRedisApplicationVersionCache(redisClient),
			cfg.AppVersionCacheTTL,
		)
	} else {
		logger.Warn("redis not configured, application versions are read from postgres on every request")
	}

	keyCfg := security.KeyProtectorConfig{
		MasterKey: cfg.ServerKeyMasterKey,
		KMSKeyID:  cfg.KMSKeyID,
	}
	if cfg.KMSKeyID != "" {
		kmsClient, err := security.NewKMSClient(ctx, cfg.KMSRegion)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("init kms client: %w", err)
		}
		keyCfg.KMS = kmsClient
	}
	keys, err := security.NewKeyProtector(keyCfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("init key protector: %w", err)
	}

	verifier, err := integrationVerifier(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	var publisher ports.EventPublisher = eventadapter.NewLoggingPublisher(logger)
	if cfg.NATSURL != "" {
		natsPublisher, err := eventadapter.ConnectNATS(eventadapter.NATSConfig{
			URL:             cfg.NATSURL,
			SubjectPrefix:   cfg.NATSSubjectPrefix,
			CredentialsFile: cfg.NATSCredentialsFile,
			ReconnectWait:   cfg.NATSReconnectWait,
			MaxReconnects:   cfg.NATSMaxReconnects,
		}, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, func() { _ = natsPublisher.Close() })
		publisher = natsPublisher
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			SignatureLookahead:     cfg.SignatureLookahead,
			OfflineComponentLength: cfg.OfflineComponentLength,
			ProximityStepLength:    cfg.ProximityStepLength,
			ProximityStepCount:     cfg.ProximityStepCount,
			ProximityOTPLength:     cfg.ProximityOTPLength,
			AuditLogLimit:          cfg.AuditLogLimit,
		},
		Activations:         repos.Activations,
		ApplicationVersions: appVersions,
		AuditReads:          repos.AuditReads,
		Crypto:              cryptoadapter.NewProvider(),
		KeyProtector:        keys,
	})

	handler := httpadapter.NewHandler(svc, verifier)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcadapter.RecoveryInterceptor(),
		grpcadapter.AuthInterceptor(verifier, grpcadapter.MethodScopes),
	))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewSignatureServer(svc))

	outbox := eventadapter.NewOutboxWorker(logger, repos.Outbox, publisher, eventadapter.OutboxWorkerConfig{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		ClaimTTL:   cfg.OutboxClaimTTL,
		MaxRetries: cfg.OutboxMaxRetries,
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		outbox:     outbox,
		cleanupFn: func(context.Context) {
			cleanup()
		},
	}, nil
}

// integrationVerifier falls back to ephemeral keys when no public key is configured.
func integrationVerifier(cfg Config, logger *slog.Logger) (ports.IntegrationTokenVerifier, error) {
	if cfg.IntegrationJWTPublicKeyPEM != "" {
		v, err := security.NewIntegrationTokenVerifier(cfg.IntegrationJWTKeyID, cfg.IntegrationJWTPublicKeyPEM, cfg.IntegrationJWTAudience)
		if err != nil {
			return nil, fmt.Errorf("init integration token verifier: %w", err)
		}
		return v, nil
	}
	logger.Warn("using ephemeral integration JWT keys for local/dev runtime")
	v, err := security.NewEphemeralIntegrationTokens(cfg.IntegrationJWTKeyID, cfg.IntegrationJWTAudience)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral integration tokens: %w", err)
	}
	return v, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
