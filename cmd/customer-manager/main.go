// cmd/customer-manager/main.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"customer-manager/internal/api"
	"customer-manager/internal/common/camunda"
	"customer-manager/internal/common/config"
	"customer-manager/internal/common/database"
	"customer-manager/internal/common/logger"
	"customer-manager/internal/common/observability"
	"customer-manager/internal/form"
	"customer-manager/internal/gateway"
	"customer-manager/internal/store"

	lp "customer-manager/internal/workers/lookup/lookup-postcode"
	vp "customer-manager/internal/workers/lookup/verify-pan"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting customer manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lookups gateway.Gateway = gateway.NewHTTPGateway(gateway.Config{
		VerifyPANURL: cfg.Gateway.VerifyPANURL(),
		PostcodeURL:  cfg.Gateway.PostcodeURL(),
		Timeout:      config.GetDuration(cfg.Gateway.Timeout),
	}, obs, log)

	var handlerOpts []api.HandlerOption

	// --- Lookup cache ---
	if cfg.Cache.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err := retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 5, time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Warn("Redis unavailable, lookup cache disabled", zap.Error(err))
			_ = redis.Close()
		} else {
			defer redis.Close()
			lookups = gateway.NewCachedGateway(lookups, redis.Client,
				time.Duration(cfg.Cache.TTL)*time.Second, cfg.Cache.KeyPrefix, log)
			handlerOpts = append(handlerOpts, api.WithReadinessCheck("redis", redis.Ping))
			zapLog.Info("Redis connected successfully, lookup cache enabled")
		}
	}

	// --- Zeebe workers ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Dial(camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		}, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}

		started := startWorkers(cfg, zeebe, lookups, log, zapLog)
		handlerOpts = append(handlerOpts, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))
		zapLog.Info("Lookup workers registered", zap.Strings("taskTypes", started))
	}

	// --- Store, forms and API ---
	customers := store.New(lookups, log)
	forms := api.NewFormRegistry(cfg.Form.MaxOpenForms,
		api.WithIdleTimeout(config.GetDuration(cfg.Form.IdleTimeout)))
	handlerOpts = append(handlerOpts, api.WithFormOptions(
		form.WithMaxAddresses(cfg.Form.MaxAddresses),
		form.WithLookupContext(ctx),
	))

	handler := api.NewHandler(customers, forms, log, handlerOpts...)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}
	forms.CancelAll()
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Customer manager stopped")
}

func startWorkers(cfg *config.Config, client *camunda.Client, lookups gateway.Gateway, log logger.Logger, zapLog *zap.Logger) []string {
	var started []string

	// Verify PAN
	if wcfg := vp.ConfigFrom(cfg); wcfg.Enabled {
		handler, err := vp.NewHandler(wcfg, lookups, log)
		if err != nil {
			zapLog.Fatal("failed to create verify-pan handler", zap.Error(err))
		}
		w := client.StartWorker(vp.TaskType, wcfg.MaxJobsActive, handler)
		started = append(started, w.TaskType())
	}

	// Lookup Postcode
	if wcfg := lp.ConfigFrom(cfg); wcfg.Enabled {
		handler, err := lp.NewHandler(wcfg, lookups, log)
		if err != nil {
			zapLog.Fatal("failed to create lookup-postcode handler", zap.Error(err))
		}
		w := client.StartWorker(lp.TaskType, wcfg.MaxJobsActive, handler)
		started = append(started, w.TaskType())
	}

	return started
}
