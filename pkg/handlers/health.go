package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
)

// readyTimeout bounds the datasource ping behind /ready.
const readyTimeout = 3 * time.Second

// Pinger is the part of the datasource the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Dialect() string
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Dialect     string `json:"dialect"`
	Model       string `json:"model"`
}

// ReadyResponse reports whether the database is reachable.
type ReadyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler handles the liveness, version and readiness endpoints.
type HealthHandler struct {
	cfg    *config.Config
	ds     Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. ds may be nil, in which
// case /ready always reports unavailable.
func NewHealthHandler(cfg *config.Config, ds Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, ds: ds, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /ready", h.Ready)
}

// Health handles GET /health. It never touches the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-dbagent",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Dialect:     h.cfg.Datasource.Type,
		Model:       h.cfg.LLM.Model,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Ready handles GET /ready by pinging the datasource.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ds == nil {
		_ = WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "unavailable", Database: "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.ds.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed",
			zap.String("dialect", h.ds.Dialect()),
			zap.String("error", logging.SanitizeError(err)))
		_ = WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "unavailable", Database: "unreachable"})
		return
	}

	if err := WriteJSON(w, http.StatusOK, ReadyResponse{Status: "ok", Database: h.ds.Dialect()}); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}
