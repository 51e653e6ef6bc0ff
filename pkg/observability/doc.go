// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry setup for the gatekeeper services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subject", userID).Info("permissions resolved")
//
// Request-scoped loggers pick up the request id and user id:
//
//	observability.FromContext(ctx, logger).Error("authorization unavailable")
//
// # Metrics
//
// Metrics and OTelMetrics both satisfy rbac.Metrics; combine them with Tee:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	resolver := rbac.NewResolver(adapter, rbac.WithMetrics(metrics))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("adapter", observability.PingerFunc(ping), true)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gatekeeper",
//	}, logger)
//	defer providers.Shutdown(ctx)
package observability
