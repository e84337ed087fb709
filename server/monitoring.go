package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shrtyk/rsm/pkg/logger"
)

// status is what the /status endpoint reports.
type status struct {
	LastApplied    int64 `json:"lastApplied"`
	SessionCount   int   `json:"sessionCount"`
	PendingQueries int   `json:"pendingQueries"`
}

type statusHandler struct {
	e *Executor
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s := h.getStatus()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.e.logger.Warn("failed to encode status for monitoring", logger.ErrAttr(err))
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
	}
}

func (h *statusHandler) getStatus() status {
	result := make(chan status, 1)
	h.e.submitTask(func() {
		result <- status{
			LastApplied:    h.e.lastApplied,
			SessionCount:   h.e.registry.count(),
			PendingQueries: h.e.queries.count(),
		}
	})
	return <-result
}

// startMonitoringServer starts the status HTTP server, if configured. Safe
// to call at most once.
func (e *Executor) startMonitoringServer() {
	if e.cfg.MonitoringAddr == "" {
		return
	}

	e.logger.Info("starting monitoring server", "addr", e.cfg.MonitoringAddr)

	mux := http.NewServeMux()
	mux.Handle("/status", &statusHandler{e: e})

	e.monitoringServer = &http.Server{
		Addr:    e.cfg.MonitoringAddr,
		Handler: mux,
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("monitoring server failed", logger.ErrAttr(err))
		}
	}()
}

func (e *Executor) stopMonitoringServer() {
	if e.monitoringServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), monitoringShutdownTimeout)
	defer cancel()
	if err := e.monitoringServer.Shutdown(ctx); err != nil {
		e.logger.Warn("monitoring server shutdown failed", logger.ErrAttr(err))
	}
}
