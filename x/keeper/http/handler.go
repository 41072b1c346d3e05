package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/wormhole-keeper/server/api"
	"github.com/compose-network/wormhole-keeper/x/keeper"
)

// StatusProvider is satisfied by *keeper.Keeper.
type StatusProvider interface {
	Status(ctx context.Context) (keeper.StatusReport, error)
}

type cycleRecord struct {
	Result     keeper.CycleResult `json:"result"`
	Error      string             `json:"error,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
}

type Handler struct {
	status  StatusProvider
	domain  string
	timeout time.Duration
	started time.Time
	log     zerolog.Logger

	mu   sync.RWMutex
	last *cycleRecord
}

// NewHandler serves status for one domain. timeout bounds each status query.
func NewHandler(status StatusProvider, domain string, timeout time.Duration, log zerolog.Logger) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		status:  status,
		domain:  domain,
		timeout: timeout,
		started: time.Now(),
		log:     log.With().Str("component", "keeper-http").Logger(),
	}
}

// RecordCycle stores the outcome of the latest cycle for /v1/cycles/last.
func (h *Handler) RecordCycle(res keeper.CycleResult, err error) {
	rec := &cycleRecord{Result: res, FinishedAt: time.Now().UTC()}
	if err != nil {
		rec.Error = err.Error()
	}
	h.mu.Lock()
	h.last = rec
	h.mu.Unlock()
}

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeHealth, h.handleHealth).Methods(http.MethodGet).Name(routeNameHealth)
	r.HandleFunc(routeStatus, h.handleStatus).Methods(http.MethodGet).Name(routeNameStatus)
	r.HandleFunc(routeLastCycle, h.handleLastCycle).Methods(http.MethodGet).Name(routeNameLastCycle)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"domain": h.domain,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.status.Status(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Status query failed")
		apicommon.WriteError(w, r, http.StatusBadGateway, "status_unavailable", err.Error(), nil)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	if last == nil {
		apicommon.WriteError(w, r, http.StatusNotFound, "no_cycle", "no cycle has completed yet", nil)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, last)
}
