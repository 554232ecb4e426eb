package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/monitoring"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Enricher processes a single row. Implementations must not fail: problems are
// reported through the Status column of the output.
type Enricher interface {
	Enrich(ctx context.Context, rec domain.Record) domain.OutputRecord
}

// Sink receives every finished row, e.g. to persist it.
type Sink interface {
	Save(ctx context.Context, runID uuid.UUID, rec domain.OutputRecord) error
}

// Progress is called once per finished row with the number of rows done so far.
type Progress func(done, total int, rec domain.OutputRecord)

// Scheduler runs the enricher over a batch of rows with bounded concurrency.
type Scheduler struct {
	enricher Enricher
	sink     Sink
	progress Progress
	runID    uuid.UUID
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

type Option func(*Scheduler)

func WithSink(s Sink) Option {
	return func(sc *Scheduler) { sc.sink = s }
}

func WithProgress(p Progress) Option {
	return func(sc *Scheduler) { sc.progress = p }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(sc *Scheduler) { sc.metrics = m }
}

// WithRunID fixes the run identifier passed to the sink. Without it every
// ProcessAll call gets a fresh one.
func WithRunID(id uuid.UUID) Option {
	return func(sc *Scheduler) { sc.runID = id }
}

func NewScheduler(e Enricher, l *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{enricher: e, logger: l}
	for _, opt := range opts {
		opt(s)
	}
	if s.progress == nil {
		s.progress = LogProgress(l, 5*time.Second)
	}
	return s
}

// ProcessAll enriches every record using at most concurrency workers and
// returns exactly one output per input, in completion order. Cancelling ctx
// does not drop rows: the remaining ones finish quickly with Status Error.
func (s *Scheduler) ProcessAll(ctx context.Context, records []domain.Record, concurrency int) []domain.OutputRecord {
	runID := s.runID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(records) {
		concurrency = len(records)
	}

	taskQueue := make(chan domain.Record)
	results := make(chan domain.OutputRecord, concurrency)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range taskQueue {
				results <- s.enricher.Enrich(ctx, rec)
			}
		}()
	}

	go func() {
		for _, rec := range records {
			taskQueue <- rec
		}
		close(taskQueue)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	s.logger.Info("processing rows",
		zap.String("run_id", runID.String()),
		zap.Int("rows", len(records)),
		zap.Int("workers", concurrency),
	)

	out := make([]domain.OutputRecord, 0, len(records))
	for rec := range results {
		out = append(out, rec)
		s.save(runID, rec)
		s.progress(len(out), len(records), rec)
	}
	return out
}

// save runs detached from the run context so rows aborted by a shutdown are
// still recorded.
func (s *Scheduler) save(runID uuid.UUID, rec domain.OutputRecord) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.sink.Save(ctx, runID, rec); err != nil {
		s.metrics.IncErrorsTotal("sink_save_failed")
		s.logger.Error("error saving row", zap.Int("row", rec.Index), zap.String("url", rec.URL), zap.Error(err))
	}
}

// LogProgress returns a Progress that logs at most once per interval, plus
// the final row.
func LogProgress(l *zap.Logger, interval time.Duration) Progress {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	return func(done, total int, rec domain.OutputRecord) {
		if done != total && !limiter.Allow() {
			return
		}
		l.Info("progress",
			zap.Int("done", done),
			zap.Int("total", total),
			zap.String("last_url", rec.URL),
			zap.String("last_status", rec.Status),
		)
	}
}
