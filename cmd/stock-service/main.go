package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/harvestline/harvestline-backend/internal/stock/app"
	"github.com/harvestline/harvestline-backend/internal/stock/consumers"
	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/internal/stock/handler"
	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/messaging"
	"github.com/harvestline/harvestline-backend/pkg/telemetry"
)

const serviceName = "stock-service"

var version = "dev"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Str("version", version).Msg("starting Stock Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, &cfg.Telemetry, version, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up telemetry")
	}

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}

	// RabbitMQ is optional; without it events are dropped and sweeps are
	// only triggered by the scheduler, HTTP or stockctl
	var (
		rmq       *messaging.RabbitMQ
		publisher *events.StockEventPublisher
	)
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}

		publisher, err = events.NewStockEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ disabled, stock events will not be published")
	}

	svc := app.NewServices(cfg, stores, publisher, log)

	if rmq != nil {
		sweepConsumer, err := consumers.NewSweepRequestConsumer(rmq, svc.Sweep, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create sweep request consumer")
		}
		if err := sweepConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start sweep request consumer")
		}

		go rmq.Watch(ctx, func() {
			if err := sweepConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("failed to restart sweep request consumer")
			}
		})
	}

	var scheduler *service.SweepScheduler
	if cfg.Sweep.Enabled {
		scheduler = service.NewSweepScheduler(svc.Sweep, cfg.Sweep.Interval, log)
		scheduler.Start(ctx)
	}

	handlers := &handler.Handlers{
		Materials:   handler.NewMaterialHandler(svc.Catalogue, svc.Corrections, log),
		Arrivals:    handler.NewArrivalHandler(svc.Arrivals, log),
		Production:  handler.NewProductionHandler(svc.Production, log),
		Alerts:      handler.NewAlertHandler(svc.Engine, log),
		Sweep:       handler.NewSweepHandler(svc.Sweep, log),
		Identifiers: handler.NewIdentifierHandler(svc.Issuer, log),
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.UserID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"stores":  stores.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	r.Route("/api/v1/stock", handlers.Mount)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop consumers and the scheduler once in-flight requests are done
	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}

	if rmq != nil {
		if err := rmq.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close RabbitMQ")
		}
	}
	if err := stores.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to close stores")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush telemetry")
	}

	log.Info().Msg("server stopped")
}
