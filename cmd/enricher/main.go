package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/user/contact-enricher/internal/app"
	"github.com/user/contact-enricher/internal/batch"
	"github.com/user/contact-enricher/internal/config"
	"github.com/user/contact-enricher/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := config.Flags("enricher")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: enricher [flags] <input.csv|input.xlsx>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(".env", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		return 1
	}
	if cfg.InputPath == "" {
		fs.Usage()
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	// Cancel the run on SIGINT/SIGTERM; rows in flight finish with Status Error
	// and the output file is still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.New()
	reg := prometheus.NewRegistry()
	a, err := app.New(ctx, cfg, reg, log, batch.WithRunID(runID))
	if err != nil {
		log.Error("could not initialize pipeline", zap.Error(err))
		return 1
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	output := cfg.ResolvedOutputPath()
	log.Info("starting website scan",
		zap.String("run_id", runID.String()),
		zap.String("input", cfg.InputPath),
		zap.String("output", output),
		zap.Int("workers", cfg.Workers),
		zap.Int("max_pages", cfg.MaxPages),
		zap.Duration("timeout", cfg.Timeout()),
	)

	summary, err := a.Processor.ProcessFile(ctx, cfg.InputPath, output)
	if err != nil {
		log.Error("processing failed", zap.Error(err))
		return 1
	}
	if ctx.Err() != nil {
		log.Warn("run interrupted; unfinished rows were marked as errors", zap.Int("errors", summary.Errors))
		return 130
	}
	return 0
}
