package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tiercache/pkg/cache"
	"github.com/Sternrassler/tiercache/pkg/metrics"
	"github.com/Sternrassler/tiercache/pkg/source"
)

// maxBodyBytes caps PUT payloads.
const maxBodyBytes = 8 << 20

// producerSource supplies values for cache misses.
type producerSource interface {
	Producer(key string) cache.Producer
}

type server struct {
	cache    *cache.Cache
	source   producerSource // nil disables read-through
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
	timeout  time.Duration
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache/{key}", s.handleGet)
	mux.HandleFunc("PUT /cache/{key}", s.handlePut)
	mux.HandleFunc("DELETE /cache/{key}", s.handleDelete)
	mux.HandleFunc("POST /invalidate", s.handleInvalidate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /metrics/prometheus", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

type valueResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if s.source == nil {
		v, ok := s.cache.Get(key)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: v})
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	v, err := s.cache.Query(ctx, key, s.source.Producer(key), cache.QueryOptions{
		TTL:                 durationParam(r, "ttl"),
		Tags:                listParam(r, "tags"),
		RefreshInBackground: true,
	})
	switch {
	case errors.Is(err, source.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Warn().Err(err).Str("key", key).Msg("Read-through failed")
		http.Error(w, fmt.Sprintf("source request failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: v})
}

func (s *server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusRequestEntityTooLarge)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be valid JSON", http.StatusBadRequest)
		return
	}

	opts := cache.SetOptions{
		TTL:                durationParam(r, "ttl"),
		Tags:               listParam(r, "tags"),
		DisableCompression: r.URL.Query().Get("compress") == "false",
	}
	if r.URL.Query().Get("priority") == "high" {
		opts.Priority = cache.PriorityHigh
	}

	if err := s.cache.Set(key, json.RawMessage(body), opts); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cache.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.cache.Delete(r.PathValue("key")) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	Tags []string `json:"tags"`
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Tags) == 0 {
		http.Error(w, "tags required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.cache.InvalidateByTags(req.Tags)})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.cache.Health()
	status := http.StatusOK
	if report.Status == cache.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := metrics.WriteText(w, s.gatherer); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render metrics")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func durationParam(r *http.Request, name string) time.Duration {
	d, err := time.ParseDuration(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return d
}

func listParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
