package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/user/contact-enricher/internal/api"
	"github.com/user/contact-enricher/internal/app"
	"github.com/user/contact-enricher/internal/config"
	"github.com/user/contact-enricher/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env", nil)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(context.Background(), cfg, reg, log)
	if err != nil {
		log.Fatal("could not initialize pipeline", zap.Error(err))
	}
	defer a.Close()

	// Interface values stay nil for disabled backends.
	var pgStore, redisStore api.Pinger
	if a.Postgres != nil {
		pgStore = a.Postgres
	}
	if a.Redis != nil {
		redisStore = a.Redis
	}
	server := api.NewServer(cfg, a.Processor, pgStore, redisStore, reg, a.Metrics, log)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exiting")
}
