package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/gatekeeper/pkg/api"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/sso"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithFormat(cfg.Observability.Level(), cfg.Observability.Format(), os.Stdout).
		WithField("service", "gatekeeper").
		WithField("version", version)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("gatekeeper exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := observability.NewMetrics(registry)

	recorders := observability.Tee{promMetrics}
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
		recorders = append(recorders, otelMetrics)
	}
	opts := []rbac.Option{rbac.WithLogger(logger), rbac.WithMetrics(recorders)}
	if providers != nil {
		opts = append(opts, rbac.WithTracer(providers.TracerProvider.Tracer(rbac.InstrumentationName)))
	}

	adapters := storage.NewCache(storage.DefaultFactory(opts...))
	adapter, err := adapters.Get(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open adapter at %s: %w", cfg.Storage.Redacted(), err)
	}
	logger.WithField("target", cfg.Storage.Redacted()).Info("adapter ready")

	authn, err := buildAuthenticator(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}

	auditLog, err := buildAuditLogger(cfg.Audit, logger)
	if err != nil {
		return err
	}

	resolver := rbac.NewResolver(adapter, opts...)
	apiCfg := api.Config{
		Resolver:      resolver,
		Enforcer:      rbac.NewEnforcer(resolver, opts...),
		Authenticator: authn,
		Logger:        logger,
		Metrics:       promMetrics,
		Vocabulary:    cfg.RBAC.Vocabulary(),
		Audit:         auditLog,
	}
	if cfg.Server.DemoResources {
		apiCfg.Resources = api.DemoResources()
	}
	server := api.NewServer(apiCfg)

	checker := observability.NewHealthChecker(version)
	checker.Register("adapter", observability.PingerFunc(func(ctx context.Context) error {
		return rbac.Ping(ctx, adapter)
	}), true)

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     api.NewOpsHandler(checker, registry),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer("api", apiServer.Shutdown)
	shutdown.RegisterServer("ops", opsServer.Shutdown)
	shutdown.RegisterResource("adapter", func(context.Context) error { return adapters.Close() })
	shutdown.RegisterResource("audit", func(context.Context) error { return auditLog.Close() })
	shutdown.RegisterResource("otel", providers.Shutdown)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		logger.WithField("addr", srv.Addr).Infof("starting %s listener", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
			cancel()
		}
	}
	go serve("api", apiServer)
	go serve("ops", opsServer)

	shutdownErr := shutdown.WaitForSignal(ctx)
	select {
	case err := <-errCh:
		return errors.Join(err, shutdownErr)
	default:
		return shutdownErr
	}
}

// buildAuthenticator tries API tokens, then OIDC bearer tokens, then the
// trusted header
func buildAuthenticator(ctx context.Context, cfg config.AuthConfig, logger *observability.Logger) (middleware.Authenticator, error) {
	var chain middleware.ChainAuthenticator

	if len(cfg.APITokens) > 0 {
		hashes, err := auth.ParseTokenEntries(cfg.APITokens)
		if err != nil {
			return nil, err
		}
		logger.WithField("tokens", len(hashes)).Info("API token authentication enabled")
		chain = append(chain, auth.NewTokenAuthenticator(hashes))
	}

	if cfg.OIDCEnabled {
		oidcAuth, err := sso.NewOIDCAuthenticator(ctx, cfg.OIDC())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
		}
		logger.WithField("issuer", cfg.OIDCIssuerURL).Info("OIDC authentication enabled")
		chain = append(chain, oidcAuth)
	}
	if cfg.TrustedHeader != "" {
		logger.WithField("header", cfg.TrustedHeader).Info("trusted header authentication enabled")
		chain = append(chain, middleware.NewHeaderAuthenticator(cfg.TrustedHeader))
	}

	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

// buildAuditLogger always logs to the application log and adds a rotated
// file when a directory is configured
func buildAuditLogger(cfg config.AuditConfig, logger *observability.Logger) (audit.Logger, error) {
	loggers := []audit.Logger{audit.NewLogLogger(logger)}
	if cfg.Dir != "" {
		file, err := audit.NewFileLogger(cfg.File())
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		loggers = append(loggers, file)
	}
	multi := audit.NewMultiLogger(loggers...)
	if cfg.BufferSize == 0 {
		return multi, nil
	}
	return audit.NewAsyncLogger(multi, cfg.BufferSize, logger), nil
}
