// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"certificate-workers/internal/bootstrap"
	"certificate-workers/internal/common/camunda"
	"certificate-workers/internal/common/config"
	"certificate-workers/internal/common/logger"
	"certificate-workers/internal/common/observability"
	"certificate-workers/internal/notify"

	ecb "certificate-workers/internal/workers/issuance/export-pending-requests"
	icb "certificate-workers/internal/workers/issuance/import-certificate-batch"
	ic "certificate-workers/internal/workers/issuance/issue-certificate"
	vct "certificate-workers/internal/workers/verification/verify-certificate-token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"app":     cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting worker manager...")

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.Build(ctx, cfg, bootstrap.Options{
		Logger:  log,
		Tracer:  obs.Tracer(),
		Retries: 15,
	})
	if err != nil {
		zapLog.Fatal("pipeline initialization failed", zap.Error(err))
	}
	defer pipeline.Close()

	drained := make(chan struct{})
	go drainFailures(pipeline.Dispatcher, pipeline.Sender.Channel(), obs, log, drained)

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = bootstrap.RetryWithBackoff(ctx, log, "Zeebe client initialization", 10, 2*time.Second, func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFromApp(cfg.Camunda))
		return err
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	registry := camunda.NewRegistry(log)
	if err := registerWorkers(registry, cfg, zeebe, pipeline, log); err != nil {
		zapLog.Fatal("worker construction failed", zap.Error(err))
	}
	if err := registry.Start(); err != nil {
		zapLog.Fatal("worker registration failed", zap.Error(err))
	}
	zapLog.Info("Workers registered", zap.Strings("taskTypes", registry.TaskTypes()))

	// --- Health & Metrics Server ---
	server := &http.Server{Addr: cfg.App.HTTPAddress, Handler: healthRouter(registry)}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := pipeline.Close(); err != nil {
		zapLog.Error("Error closing pipeline", zap.Error(err))
	}
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		zapLog.Warn("Notification failures not fully drained")
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func registerWorkers(registry *camunda.Registry, cfg *config.Config, zeebe *camunda.Client, p *bootstrap.Pipeline, log logger.Logger) error {
	issue, err := ic.NewHandler(ic.HandlerOptions{
		AppConfig: cfg,
		Camunda:   zeebe,
		Logger:    log,
		Dependencies: ic.ServiceDependencies{
			Organizations: p.Ledger,
			Issuer:        p.Operation,
			Tokens:        p.Codec,
		},
	})
	if err != nil {
		return err
	}

	importBatch, err := icb.NewHandler(icb.HandlerOptions{
		AppConfig:    cfg,
		Camunda:      zeebe,
		Logger:       log,
		Dependencies: icb.ServiceDependencies{Importer: p.Orchestrator},
	})
	if err != nil {
		return err
	}

	export, err := ecb.NewHandler(ecb.HandlerOptions{
		AppConfig:    cfg,
		Camunda:      zeebe,
		Logger:       log,
		Dependencies: ecb.ServiceDependencies{Ledger: p.Ledger},
	})
	if err != nil {
		return err
	}

	verify, err := vct.NewHandler(vct.HandlerOptions{
		AppConfig:    cfg,
		Camunda:      zeebe,
		Logger:       log,
		Dependencies: vct.ServiceDependencies{Verifier: p.Verifier},
	})
	if err != nil {
		return err
	}

	for _, w := range []camunda.Worker{issue, importBatch, export, verify} {
		if err := registry.Add(w); err != nil {
			return err
		}
	}
	return nil
}

// drainFailures logs undelivered notifications until the dispatcher closes.
func drainFailures(d *notify.Dispatcher, channel string, obs *observability.Observability, log logger.Logger, done chan<- struct{}) {
	defer close(done)
	for f := range d.Failures() {
		obs.RecordNotificationFailure(context.Background(), channel, f.At)
		log.Error("Certificate notification undelivered", map[string]interface{}{
			"notificationId": f.Message.ID,
			"certificateId":  f.Message.CertificateID,
			"channel":        channel,
			"error":          f.Err.Error(),
		})
	}
}

func healthRouter(registry *camunda.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := registry.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug", middleware.Profiler())
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
