package enricher

import (
	"context"
	"fmt"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/fetch"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/internal/prober"
	"go.uber.org/zap"
)

// Prober checks whether a website is live.
type Prober interface {
	Probe(ctx context.Context, rawURL string) prober.Outcome
}

// SiteCrawler collects contacts from a live website.
type SiteCrawler interface {
	CrawlFrom(ctx context.Context, seed *fetch.Page, maxPages int) *domain.CrawlResult
}

// Cache remembers enrichments of websites seen in earlier runs.
type Cache interface {
	Get(ctx context.Context, website string) (domain.Enrichment, bool, error)
	Set(ctx context.Context, website string, e domain.Enrichment, ttl time.Duration) error
}

// Engine turns one input record into one output record.
type Engine struct {
	prober      Prober
	crawler     SiteCrawler
	cache       Cache
	cacheTTL    time.Duration
	maxPages    int
	rowTimeout  time.Duration
	phoneRegion string
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCache enables result caching with the given TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithRowTimeout bounds the time spent on a single row. Zero disables the bound.
func WithRowTimeout(d time.Duration) Option {
	return func(e *Engine) { e.rowTimeout = d }
}

// WithPhoneRegion rewrites valid phone numbers to E.164, parsing numbers
// without a country code as belonging to region (e.g. "US").
func WithPhoneRegion(region string) Option {
	return func(e *Engine) { e.phoneRegion = region }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(p Prober, c SiteCrawler, maxPages int, l *zap.Logger, opts ...Option) *Engine {
	e := &Engine{prober: p, crawler: c, maxPages: maxPages, logger: l}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich never fails: every problem is reported through the Status and Error
// fields of the returned record, including panics raised while probing or crawling.
func (e *Engine) Enrich(ctx context.Context, rec domain.Record) (out domain.OutputRecord) {
	start := time.Now()
	out.Record = rec
	e.metrics.RowStarted()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("error processing row",
				zap.Int("row", rec.Index),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			e.metrics.IncErrorsTotal("row_panic")
			out.Enrichment = domain.FailedEnrichment(domain.StatusError, fmt.Sprint(r))
			out.PagesVisited = 0
		}
		out.Duration = time.Since(start)
		e.metrics.RowFinished()
		e.metrics.ObserveRow(out.Duration.Seconds())
		e.metrics.IncRows(out.Status)
	}()

	website, ok := rec.WebsiteURL()
	if !ok {
		e.logger.Warn("no URL found in row", zap.Int("row", rec.Index))
		out.Enrichment = domain.FailedEnrichment(domain.StatusNoURL, domain.MissingURLError)
		return out
	}
	out.URL = website

	if err := ctx.Err(); err != nil {
		out.Enrichment = domain.FailedEnrichment(domain.StatusError, err.Error())
		return out
	}
	if e.rowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.rowTimeout)
		defer cancel()
	}

	if cached, hit := e.cached(ctx, website); hit {
		e.logger.Info("using cached result", zap.String("url", website), zap.String("status", cached.Status))
		out.Enrichment = cached
		return out
	}

	e.logger.Info("processing URL", zap.String("url", website))
	outcome := e.prober.Probe(ctx, website)
	if !outcome.Reachable {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("row aborted", zap.String("url", website), zap.Error(err))
			out.Enrichment = domain.FailedEnrichment(domain.StatusError, err.Error())
			return out
		}
		e.logger.Warn("website not accessible", zap.String("url", website), zap.String("reason", outcome.Reason))
		out.Enrichment = domain.FailedEnrichment(domain.StatusNotWorking, outcome.Reason)
		return out
	}

	e.logger.Info("website accessible", zap.String("url", website), zap.String("resolved", outcome.ResolvedURL))
	result := e.crawler.CrawlFrom(ctx, outcome.Page, e.maxPages)
	if e.phoneRegion != "" {
		result.Contacts.Phones = NormalizePhones(result.Contacts.Phones, e.phoneRegion)
	}

	out.Enrichment = domain.WorkingEnrichment(result.Contacts)
	out.PagesVisited = result.PagesVisited
	e.logger.Info("processed",
		zap.String("url", website),
		zap.String("email", out.Email),
		zap.String("phone", out.Phone),
		zap.String("linkedin", out.LinkedIn),
		zap.String("instagram", out.Instagram),
	)

	e.remember(ctx, website, out.Enrichment)
	return out
}

func (e *Engine) cached(ctx context.Context, website string) (domain.Enrichment, bool) {
	if e.cache == nil {
		return domain.Enrichment{}, false
	}
	cached, hit, err := e.cache.Get(ctx, website)
	if err != nil {
		e.metrics.IncErrorsTotal("cache_get")
		e.logger.Warn("cache lookup failed", zap.String("url", website), zap.Error(err))
		return domain.Enrichment{}, false
	}
	return cached, hit
}

// remember caches working results only; failures may be transient.
func (e *Engine) remember(ctx context.Context, website string, en domain.Enrichment) {
	if e.cache == nil || en.Status != domain.StatusWorking {
		return
	}
	if err := e.cache.Set(ctx, website, en, e.cacheTTL); err != nil {
		e.metrics.IncErrorsTotal("cache_set")
		e.logger.Warn("cache store failed", zap.String("url", website), zap.Error(err))
	}
}

// NormalizePhones formats every number that parses as valid for region in
// E.164. Anything else is kept exactly as found.
func NormalizePhones(phones domain.StringSet, region string) domain.StringSet {
	out := domain.StringSet{}
	for raw := range phones {
		num, err := phonenumbers.Parse(raw, region)
		if err == nil && phonenumbers.IsValidNumber(num) {
			out.Add(phonenumbers.Format(num, phonenumbers.E164))
			continue
		}
		out.Add(raw)
	}
	return out
}
