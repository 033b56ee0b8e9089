package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hybridmail/internal/bootstrap"
	"hybridmail/internal/config"
	"hybridmail/internal/obslog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	obslog.Init(obslog.Config{Level: obslog.ParseLevel(os.Getenv("LOG_LEVEL"))})

	cfg, err := config.Load()
	if err != nil {
		obslog.Fatal("failed to load config: %v", err)
	}

	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("worker_id", cfg.WorkerID).Logger()

	worker, cleanup, err := bootstrap.NewWorker(cfg, zlog)
	if err != nil {
		obslog.Fatal("failed to initialize worker: %v", err)
	}
	defer cleanup()

	if err := worker.Deps().HealthCheck(context.Background()); err != nil {
		obslog.Warn("startup health check failed, continuing in degraded mode: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		obslog.Info("shutdown signal received, stopping worker (timeout %v)", shutdownTimeout)
		worker.Stop(shutdownTimeout)
	}()

	obslog.Info("worker %s starting", cfg.WorkerID)
	if err := worker.Start(); err != nil {
		obslog.Fatal("worker exited with error: %v", err)
	}
	obslog.Info("worker stopped")
}
