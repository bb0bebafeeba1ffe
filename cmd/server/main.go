package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frame-relay/internal/platform/config"
	"frame-relay/internal/platform/logger"
	"frame-relay/internal/platform/metrics"
	"frame-relay/internal/relay"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	cfg := relay.Config{
		MaxFrameBytes:  config.GetEnvInt("MAX_FRAME_BYTES", relay.DefaultMaxFrameBytes),
		RecvTimeout:    config.GetEnvDuration("RECV_TIMEOUT", relay.DefaultRecvTimeout),
		StaleTimeout:   config.GetEnvDuration("STALE_TIMEOUT", relay.DefaultStaleTimeout),
		SendTimeout:    config.GetEnvDuration("SEND_TIMEOUT", relay.DefaultSendTimeout),
		ErrorThreshold: config.GetEnvInt("ERROR_THRESHOLD", relay.DefaultErrorThreshold),
	}

	log := logger.New(logLevel, logFormat)

	registry := relay.NewRegistry()
	met := metrics.New()
	rly := relay.NewRelay(cfg, registry, log, met)
	h := relay.NewHandler(rly, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActiveStreams(registry.ActiveCount())
			met.SetConnectedViewers(registry.ViewerCount())
		}).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("relay starting",
		"port", port,
		"max_frame_bytes", cfg.MaxFrameBytes,
		"recv_timeout", cfg.RecvTimeout.String(),
		"stale_timeout", cfg.StaleTimeout.String(),
		"send_timeout", cfg.SendTimeout.String(),
		"error_threshold", cfg.ErrorThreshold,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, ending active streams")

	rly.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("relay stopped")
}
