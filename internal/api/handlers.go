package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/internal/processor"
	"github.com/user/contact-enricher/internal/tabular"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20

// EnrichRequest carries either a list of rows or a single URL.
type EnrichRequest struct {
	Records []map[string]string `json:"records"`
	URL     string              `json:"url"`
}

type EnrichResponse struct {
	Results []map[string]string `json:"results"`
}

func (req EnrichRequest) toRecords() []domain.Record {
	if len(req.Records) == 0 && strings.TrimSpace(req.URL) != "" {
		return []domain.Record{domain.NewRecord(0, []string{"Website URL"}, []string{req.URL})}
	}
	records := make([]domain.Record, len(req.Records))
	for i, fields := range req.Records {
		headers := make([]string, 0, len(fields))
		for k := range fields {
			headers = append(headers, k)
		}
		sort.Strings(headers)
		cells := make([]string, len(headers))
		for j, h := range headers {
			cells[j] = fields[h]
		}
		records[i] = domain.NewRecord(i, headers, cells)
	}
	return records
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	records := req.toRecords()
	if len(records) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "records list or url is required")
		return
	}

	results := s.processor.ProcessRecords(r.Context(), records)
	resp := EnrichResponse{Results: make([]map[string]string, len(results))}
	for i, rec := range results {
		resp.Results[i] = rec.Fields()
	}
	s.respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnrichCSV(w http.ResponseWriter, r *http.Request) {
	in, err := tabular.ReadCSV(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return
	}

	out, _, err := s.processor.ProcessTable(r.Context(), in)
	if errors.Is(err, processor.ErrNoHeader) || errors.Is(err, processor.ErrNoRows) {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to process csv", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not process file")
		return
	}

	var buf bytes.Buffer
	if err := tabular.WriteCSV(&buf, out); err != nil {
		s.logger.Error("failed to encode csv", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not encode result")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="processed.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	healthy := true
	check := func(name string, p Pinger) {
		if p == nil {
			healthStatus[name] = "disabled"
			return
		}
		if err := p.Ping(ctx); err != nil {
			healthy = false
			healthStatus[name] = "unhealthy"
			s.logger.Error("health check failed", zap.String("backend", name), zap.Error(err))
			return
		}
		healthStatus[name] = "healthy"
	}
	check("postgres", s.pgStore)
	check("redis", s.redisStore)

	if !healthy {
		healthStatus["status"] = "degraded"
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
