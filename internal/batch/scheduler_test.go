package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/contact-enricher/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeEnricher marks every row Working and tracks peak concurrency.
type fakeEnricher struct {
	active int32
	peak   int32
	delay  time.Duration
}

func (f *fakeEnricher) Enrich(ctx context.Context, rec domain.Record) domain.OutputRecord {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	out := domain.OutputRecord{Record: rec}
	select {
	case <-time.After(f.delay):
		out.Enrichment = domain.Enrichment{Status: domain.StatusWorking}
	case <-ctx.Done():
		out.Enrichment = domain.FailedEnrichment(domain.StatusError, ctx.Err().Error())
	}
	return out
}

type recordingSink struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]int
	fails bool
}

func (s *recordingSink) Save(_ context.Context, runID uuid.UUID, _ domain.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[uuid.UUID]int{}
	}
	s.runs[runID]++
	if s.fails {
		return errors.New("db down")
	}
	return nil
}

func records(n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.NewRecord(i, []string{"Website URL"}, []string{fmt.Sprintf("site%d.example.com", i)})
	}
	return out
}

func indexes(out []domain.OutputRecord) []int {
	idx := make([]int, len(out))
	for i, o := range out {
		idx[i] = o.Index
	}
	sort.Ints(idx)
	return idx
}

func TestProcessAllOneOutputPerInput(t *testing.T) {
	in := records(12)
	want := make([]int, len(in))
	for i := range want {
		want[i] = i
	}

	for workers := 1; workers <= 15; workers += 2 {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			e := &fakeEnricher{delay: time.Millisecond}
			s := NewScheduler(e, zaptest.NewLogger(t))

			out := s.ProcessAll(context.Background(), in, workers)

			require.Len(t, out, len(in))
			assert.Equal(t, want, indexes(out))
			assert.LessOrEqual(t, int(e.peak), workers)
		})
	}
}

func TestProcessAllEmpty(t *testing.T) {
	s := NewScheduler(&fakeEnricher{}, zaptest.NewLogger(t))
	assert.Empty(t, s.ProcessAll(context.Background(), nil, 4))
}

func TestProcessAllCancelledKeepsEveryRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &fakeEnricher{delay: time.Hour}
	s := NewScheduler(e, zaptest.NewLogger(t))

	time.AfterFunc(20*time.Millisecond, cancel)
	out := s.ProcessAll(ctx, records(6), 2)

	require.Len(t, out, 6)
	for _, o := range out {
		assert.Equal(t, domain.StatusError, o.Status)
	}
}

func TestProcessAllSavesToSink(t *testing.T) {
	sink := &recordingSink{}
	runID := uuid.New()
	s := NewScheduler(&fakeEnricher{}, zaptest.NewLogger(t), WithSink(sink), WithRunID(runID))

	s.ProcessAll(context.Background(), records(5), 3)

	assert.Equal(t, map[uuid.UUID]int{runID: 5}, sink.runs)
}

func TestProcessAllFreshRunIDPerCall(t *testing.T) {
	sink := &recordingSink{}
	s := NewScheduler(&fakeEnricher{}, zaptest.NewLogger(t), WithSink(sink))

	s.ProcessAll(context.Background(), records(2), 2)
	s.ProcessAll(context.Background(), records(2), 2)

	require.Len(t, sink.runs, 2)
	for id, n := range sink.runs {
		assert.NotEqual(t, uuid.Nil, id)
		assert.Equal(t, 2, n)
	}
}

func TestProcessAllSinkFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &recordingSink{fails: true}
	s := NewScheduler(&fakeEnricher{}, zap.New(core), WithSink(sink))

	out := s.ProcessAll(context.Background(), records(3), 2)

	assert.Len(t, out, 3)
	assert.Equal(t, 3, logs.FilterMessage("error saving row").Len())
}

func TestProcessAllReportsProgress(t *testing.T) {
	var calls []int
	s := NewScheduler(&fakeEnricher{}, zaptest.NewLogger(t), WithProgress(func(done, total int, _ domain.OutputRecord) {
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	}))

	s.ProcessAll(context.Background(), records(4), 2)

	assert.Equal(t, []int{1, 2, 3, 4}, calls)
}

func TestLogProgressThrottles(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := LogProgress(zap.New(core), time.Hour)

	for i := 1; i <= 10; i++ {
		p(i, 10, domain.OutputRecord{})
	}

	entries := logs.FilterMessage("progress").All()
	require.Len(t, entries, 2)
	assert.EqualValues(t, 1, entries[0].ContextMap()["done"])
	assert.EqualValues(t, 10, entries[1].ContextMap()["done"])
}
