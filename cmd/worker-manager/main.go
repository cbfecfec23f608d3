// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qms-workers/internal/app"
	"qms-workers/internal/common/camunda"
	"qms-workers/internal/common/config"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/observability"

	kq "qms-workers/internal/workers/qms/knowledge-query"
	wq "qms-workers/internal/workers/qms/workflow-query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if cfg.Camunda.BrokerAddress == "" {
		zapLog.Fatal("camunda.broker_address is required")
	}

	zapLog.Info("starting worker manager",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()
	obs, err := observability.New(ctx, observability.Config{
		ServiceName:  cfg.App.Name,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		Insecure:     cfg.Observability.Insecure,
		SampleRatio:  cfg.Observability.SampleRatio,
	})
	if obs == nil {
		zapLog.Fatal("failed to initialise tracing", zap.Error(err))
	}
	if err != nil {
		zapLog.Warn("observability degraded to tracing only", zap.Error(err))
	}
	services, err := app.Build(ctx, cfg, log, app.Options{Observability: obs})
	if err != nil {
		zapLog.Fatal("failed to initialise services", zap.Error(err))
	}
	defer services.Close()

	camundaClient, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: cfg.Camunda.Plaintext,
		RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		zapLog.Fatal("failed to connect to Zeebe", zap.Error(err))
	}
	zapLog.Info("connected to Zeebe", zap.String("broker", cfg.Camunda.BrokerAddress))

	var workers []*camunda.Worker

	if wcfg := config.GetWorkerConfig(cfg, wq.TaskType); wcfg.Enabled {
		handler, err := wq.NewHandler(wq.ConfigFromWorker(wcfg), services.Dispatcher, log)
		if err != nil {
			zapLog.Fatal("failed to create workflow-query handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(camundaClient.GetClient(), wq.TaskType, wcfg, handler.Handle, obs, log))
	}

	if wcfg := config.GetWorkerConfig(cfg, kq.TaskType); wcfg.Enabled {
		handler, err := kq.NewHandler(kq.ConfigFromWorker(wcfg), services.Knowledge, log)
		if err != nil {
			zapLog.Fatal("failed to create knowledge-query handler", zap.Error(err))
		}
		workers = append(workers, camunda.StartWorker(camundaClient.GetClient(), kq.TaskType, wcfg, handler.Handle, obs, log))
	}
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           opsRouter(services, camundaClient),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("health/metrics server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("health/metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("error stopping health server", zap.Error(err))
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("error closing Zeebe client", zap.Error(err))
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("worker manager stopped gracefully")
}

type pinger interface {
	Ping(ctx context.Context) error
}

type zeebeHealth interface {
	HealthCheck(ctx context.Context) error
}

// opsRouter serves liveness, readiness and Prometheus metrics.
func opsRouter(deps pinger, zeebe zeebeHealth) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := deps.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if err := zeebe.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	r.Handle("/metrics", promhttp.Handler())
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
	json.NewEncoder(w).Encode(body)
}
