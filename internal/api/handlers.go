// internal/api/handlers.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/scheduler"
	"github.com/xkilldash9x/sendlater/internal/store"
)

// ScheduleRequest is the body of POST /api/v1/schedules.
type ScheduleRequest struct {
	Recipient string `json:"recipient"`
	Payload   string `json:"payload"`
	// ScheduledTime is epoch milliseconds.
	ScheduledTime int64 `json:"scheduledTime"`
}

// Response is the envelope of every JSON response.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handlers serves the schedule routes.
type Handlers struct {
	sched Scheduler
	log   *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sched Scheduler, logger *zap.Logger) *Handlers {
	return &Handlers{sched: sched, log: logger.Named("handlers")}
}

// RegisterRoutes mounts the health check and the versioned API. auth guards
// everything except the health check.
func (h *Handlers) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)
		r.Post("/schedules", h.HandleCreate)
		r.Get("/schedules", h.HandleList)
		r.Delete("/schedules/{id}", h.HandleCancel)
		r.Post("/schedules/{id}/dispatch", h.HandleDispatch)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleCreate registers a scheduled message.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ScheduledTime <= 0 {
		writeError(w, http.StatusBadRequest, "scheduledTime is required")
		return
	}

	rec, err := h.sched.Register(r.Context(), req.Recipient, req.Payload, time.UnixMilli(req.ScheduledTime))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Status: "success", Data: rec})
}

// HandleList returns every scheduled message.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.sched.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: records})
}

// HandleCancel removes a scheduled message.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDispatch dispatches a pending message now. The outcome is recorded on the
// record; the response only acknowledges the attempt.
func (h *Handlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sched.Trigger(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Response{Status: "accepted", Data: map[string]string{"id": id}})
}

// fail maps scheduler errors onto status codes.
func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrStorage):
		h.log.Error("Storage failure while serving request.", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("Request failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Response{Status: "error", Error: message})
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
