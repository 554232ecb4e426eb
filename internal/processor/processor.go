package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/tabular"
	"go.uber.org/zap"
)

var (
	ErrInputNotFound = errors.New("input file not found")
	ErrNoHeader      = errors.New("input has no header row")
	ErrNoRows        = errors.New("input has no data rows")
)

// Scheduler enriches a batch of rows concurrently.
type Scheduler interface {
	ProcessAll(ctx context.Context, records []domain.Record, concurrency int) []domain.OutputRecord
}

// Summary describes a finished run.
type Summary struct {
	Rows       int
	Working    int
	NotWorking int
	NoURL      int
	Errors     int
	Duration   time.Duration
	OutputPath string
}

func (s *Summary) count(rec domain.OutputRecord) {
	s.Rows++
	switch rec.Status {
	case domain.StatusWorking:
		s.Working++
	case domain.StatusNotWorking:
		s.NotWorking++
	case domain.StatusNoURL:
		s.NoURL++
	default:
		s.Errors++
	}
}

// Processor runs a whole input table through the scheduler.
type Processor struct {
	scheduler Scheduler
	workers   int
	logger    *zap.Logger
}

func New(s Scheduler, workers int, l *zap.Logger) *Processor {
	return &Processor{scheduler: s, workers: workers, logger: l}
}

// ProcessFile reads inputPath, enriches every row and writes the result to
// outputPath. Nothing is written when the input cannot be used.
func (p *Processor) ProcessFile(ctx context.Context, inputPath, outputPath string) (*Summary, error) {
	start := time.Now()
	p.logger.Info("reading input", zap.String("path", inputPath))

	in, err := tabular.Read(inputPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	case errors.Is(err, tabular.ErrEmpty):
		err = fmt.Errorf("%w: %s", ErrNoHeader, inputPath)
	case err != nil:
		err = fmt.Errorf("read %s: %w", inputPath, err)
	}
	if err != nil {
		p.logger.Error("cannot read input", zap.Error(err))
		return nil, err
	}

	out, summary, err := p.ProcessTable(ctx, in)
	if err != nil {
		p.logger.Error("cannot process input", zap.String("path", inputPath), zap.Error(err))
		return nil, err
	}

	if err := tabular.Write(outputPath, out); err != nil {
		p.logger.Error("error writing output", zap.String("path", outputPath), zap.Error(err))
		return nil, fmt.Errorf("write %s: %w", outputPath, err)
	}

	summary.OutputPath = outputPath
	summary.Duration = time.Since(start)
	p.logger.Info(fmt.Sprintf("completed in %.2f seconds", summary.Duration.Seconds()),
		zap.String("output", outputPath),
		zap.Int("rows", summary.Rows),
		zap.Int("working", summary.Working),
		zap.Int("not_working", summary.NotWorking),
		zap.Int("no_url", summary.NoURL),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// ProcessTable enriches the rows of in and returns the output table with the
// enrichment columns appended, rows in input order.
func (p *Processor) ProcessTable(ctx context.Context, in *tabular.Table) (*tabular.Table, *Summary, error) {
	if in == nil || len(in.Headers) == 0 {
		return nil, nil, ErrNoHeader
	}
	if len(in.Rows) == 0 {
		return nil, nil, ErrNoRows
	}
	if !domain.HasURLColumn(in.Headers) {
		p.logger.Warn("no 'website url' column found; every row will be marked as missing a URL",
			zap.Strings("headers", in.Headers))
	}

	records := make([]domain.Record, len(in.Rows))
	for i, row := range in.Rows {
		records[i] = domain.NewRecord(i, in.Headers, row)
	}

	results := p.ProcessRecords(ctx, records)

	headers := domain.OutputHeaders(in.Headers)
	out := &tabular.Table{Headers: headers, Rows: make([][]string, len(results))}
	summary := &Summary{}
	for i, rec := range results {
		out.Rows[i] = rec.Cells(headers)
		summary.count(rec)
	}
	return out, summary, nil
}

// ProcessRecords enriches records and returns them sorted by Index.
func (p *Processor) ProcessRecords(ctx context.Context, records []domain.Record) []domain.OutputRecord {
	p.logger.Info("processing websites", zap.Int("rows", len(records)), zap.Int("workers", p.workers))
	results := p.scheduler.ProcessAll(ctx, records, p.workers)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
