// Package api exposes the query service over HTTP and the store health over
// gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"NetSankey/internal/model"
	"NetSankey/internal/query"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Options configures the HTTP routes.
type Options struct {
	// QueryTimeout bounds every store query made for a request.
	QueryTimeout time.Duration
	// StreamInterval is the push period of /api/traffic_stream.
	StreamInterval time.Duration
	// Gatherer serves /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	querier        *query.Querier
	timeout        time.Duration
	streamInterval time.Duration
}

// NewRouter builds the HTTP routes.
func NewRouter(q *query.Querier, opts Options) *mux.Router {
	h := &Handler{querier: q, timeout: opts.QueryTimeout, streamInterval: opts.StreamInterval}
	if h.streamInterval <= 0 {
		h.streamInterval = 5 * time.Second
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/hosts", h.hostsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/traffic_data", h.trafficHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/overview", h.overviewHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/traffic_stream", h.streamHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthHandler).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	return h.withTimeout(r.Context())
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

// parseTrafficRequest reads the graph parameters. Servers may be given as
// servers[] or servers, repeated.
func parseTrafficRequest(r *http.Request) (query.TrafficRequest, error) {
	params := r.URL.Query()

	mode, err := model.ParseMode(params.Get("mode"))
	if err != nil {
		return query.TrafficRequest{}, err
	}
	detail, err := model.ParseDetail(params.Get("detail"))
	if err != nil {
		return query.TrafficRequest{}, err
	}

	var servers []string
	for _, key := range []string{"servers[]", "servers"} {
		for _, s := range params[key] {
			if s != "" {
				servers = append(servers, s)
			}
		}
	}

	return query.TrafficRequest{
		Servers: servers,
		Focus:   params.Get("focus_ip"),
		Mode:    mode,
		Detail:  detail,
	}, nil
}

func (h *Handler) hostsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	hosts, err := h.querier.Hosts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (h *Handler) trafficHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTrafficRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	g, err := h.querier.Traffic(ctx, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) overviewHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTrafficRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	ov, err := h.querier.Overview(ctx, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	if err := h.querier.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("Failed to marshal response")
		http.Error(w, `{"error":"failed to marshal response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "query timed out: " + msg
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
