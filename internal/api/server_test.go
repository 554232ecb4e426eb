package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/contact-enricher/internal/config"
	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/monitoring"
	"github.com/user/contact-enricher/internal/processor"
	"go.uber.org/zap/zaptest"
)

// echoScheduler marks rows with a URL as Working, in reverse order.
type echoScheduler struct{}

func (echoScheduler) ProcessAll(_ context.Context, records []domain.Record, _ int) []domain.OutputRecord {
	out := make([]domain.OutputRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := domain.OutputRecord{Record: records[i]}
		if u, ok := records[i].WebsiteURL(); ok {
			rec.URL = u
			rec.Enrichment = domain.Enrichment{Status: domain.StatusWorking, Email: "info@" + u}
		} else {
			rec.Enrichment = domain.FailedEnrichment(domain.StatusNoURL, domain.MissingURLError)
		}
		out = append(out, rec)
	}
	return out
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, pg, rds Pinger) (*Server, *monitoring.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	logger := zaptest.NewLogger(t)
	p := processor.New(echoScheduler{}, 2, logger)
	return NewServer(&config.Config{ServerPort: "0"}, p, pg, rds, reg, m, logger), m
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestEnrichRecords(t *testing.T) {
	s, m := newTestServer(t, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/enrich",
		`{"records":[{"Name":"A","Website URL":"a.com"},{"Name":"B"},{"Name":"C","website url":"c.com"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EnrichResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "A", resp.Results[0]["Name"])
	assert.Equal(t, domain.StatusWorking, resp.Results[0]["Status"])
	assert.Equal(t, "info@a.com", resp.Results[0]["Email"])
	assert.Equal(t, domain.StatusNoURL, resp.Results[1]["Status"])
	assert.Equal(t, domain.MissingURLError, resp.Results[1]["Error"])
	assert.Equal(t, "info@c.com", resp.Results[2]["Email"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/enrich", "200")))
}

func TestEnrichSingleURL(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/enrich", `{"url":"example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EnrichResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "example.com", resp.Results[0]["Website URL"])
	assert.Equal(t, domain.StatusWorking, resp.Results[0]["Status"])
}

func TestEnrichBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	for _, body := range []string{`not json`, `{}`, `{"records":[]}`, `{"url":"  "}`} {
		rec := do(t, s, http.MethodPost, "/api/enrich", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestEnrichCSV(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/enrich/csv", "Name,Website URL\nA,a.com\nB,\n")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"\ufeffName,Website URL,Status,Error,Email,Phone,LinkedIn,Instagram\n"+
			"A,a.com,Working,,info@a.com,,,\n"+
			"B,,No URL provided,Missing URL in input,,,,\n",
		rec.Body.String())
}

func TestEnrichCSVWithoutRows(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/enrich/csv", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/enrich/csv", "Website URL\n").Code)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		pg, rds  Pinger
		code     int
		postgres string
		redis    string
	}{
		{"disabled", nil, nil, http.StatusOK, "disabled", "disabled"},
		{"healthy", pinger{}, pinger{}, http.StatusOK, "healthy", "healthy"},
		{"redis down", pinger{}, pinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "healthy", "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.pg, tt.rds)

			rec := do(t, s, http.MethodGet, "/api/health", "")

			assert.Equal(t, tt.code, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.postgres, body["postgres"])
			assert.Equal(t, tt.redis, body["redis"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t, nil, nil)
	m.IncRows(domain.StatusWorking)

	rec := do(t, s, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `enricher_rows_processed_total{status="Working"} 1`)
}
