// Package app assembles the enrichment pipeline from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/contact-enricher/internal/batch"
	"github.com/user/contact-enricher/internal/config"
	"github.com/user/contact-enricher/internal/crawler"
	"github.com/user/contact-enricher/internal/enricher"
	"github.com/user/contact-enricher/internal/fetch"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/internal/processor"
	"github.com/user/contact-enricher/internal/prober"
	"github.com/user/contact-enricher/internal/proxy"
	"github.com/user/contact-enricher/internal/storage"
	"go.uber.org/zap"
)

// App holds the wired pipeline and the optional backends it owns.
type App struct {
	Processor *processor.Processor
	Metrics   *monitoring.Metrics
	Redis     *storage.RedisStore    // nil when REDIS_ADDR is empty
	Postgres  *storage.PostgresStore // nil when POSTGRES_URL is empty
}

// New builds the pipeline. Metrics are registered on reg. Extra scheduler
// options, such as a fixed run ID, are appended to the defaults.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger, opts ...batch.Option) (*App, error) {
	a := &App{Metrics: monitoring.NewMetrics(reg)}

	proxyManager, err := proxy.NewManager(cfg.ProxyList())
	if err != nil {
		return nil, err
	}
	if proxyManager.Len() > 0 {
		logger.Info("rotating requests across proxies", zap.Int("proxies", proxyManager.Len()))
	}

	client, err := fetch.NewClient(fetch.Options{
		Timeout:      cfg.Timeout(),
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxBodyBytes,
		MaxRedirects: cfg.MaxRedirects,
		Proxy:        proxyManager.Proxy,
	})
	if err != nil {
		return nil, err
	}

	engineOpts := []enricher.Option{
		enricher.WithMetrics(a.Metrics),
		enricher.WithRowTimeout(cfg.RowDeadline()),
		enricher.WithPhoneRegion(cfg.PhoneRegion),
	}
	if cfg.RedisAddr != "" {
		a.Redis = storage.NewRedisStore(cfg.RedisAddr)
		if err := a.Redis.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		engineOpts = append(engineOpts, enricher.WithCache(a.Redis, cfg.CacheTTL()))
		logger.Info("result cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL()))
	}

	schedulerOpts := []batch.Option{batch.WithMetrics(a.Metrics)}
	if cfg.PostgresURL != "" {
		a.Postgres, err = storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Postgres.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare postgres: %w", err)
		}
		schedulerOpts = append(schedulerOpts, batch.WithSink(a.Postgres))
		logger.Info("result sink enabled")
	}
	schedulerOpts = append(schedulerOpts, opts...)

	engine := enricher.New(
		prober.New(client, cfg.MinContentLength, a.Metrics, logger),
		crawler.NewCrawler(client, a.Metrics, logger),
		cfg.MaxPages,
		logger,
		engineOpts...,
	)
	scheduler := batch.NewScheduler(engine, logger, schedulerOpts...)
	a.Processor = processor.New(scheduler, cfg.Workers, logger)
	return a, nil
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
