package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"matsched/internal/jobs"
	"matsched/internal/realtime"
	"matsched/internal/repositories"
	"matsched/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// JobRunner is the slice of the job scheduler the API exposes.
type JobRunner interface {
	Stats() []jobs.Stats
	RunNow(ctx context.Context, name string) (int, error)
}

// Handlers binds the HTTP surface to the services.
type Handlers struct {
	Store     repositories.Store
	Auth      services.AuthService
	Routes    services.RouteService
	Vehicles  services.VehicleService
	Schedules services.ScheduleService
	Bookings  services.BookingService
	Payments  services.PaymentService
	Dispatch  services.DispatchService
	Docs      services.DocsService
	Jobs      JobRunner
	Hub       *realtime.Hub
	Upgrader  websocket.Upgrader

	// CallbackToken guards the gateway callback; empty disables it.
	CallbackToken string
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "matsched is running"})
}

func (h *Handlers) DBCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		respondError(c, http.StatusServiceUnavailable, "db_unavailable", "database unreachable: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "database connection OK"})
}

// GET /api/jobs
func (h *Handlers) JobStats(c *gin.Context) {
	if h.Jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []jobs.Stats{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.Jobs.Stats()})
}

// POST /api/jobs/:name/run
func (h *Handlers) RunJob(c *gin.Context) {
	if h.Jobs == nil {
		respondError(c, http.StatusNotFound, "not_found", "no jobs registered")
		return
	}
	n, err := h.Jobs.RunNow(c.Request.Context(), c.Param("name"))
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, jobs.ErrRunning):
		respondError(c, http.StatusConflict, "job_running", err.Error())
		return
	case errors.Is(err, jobs.ErrStopped):
		respondError(c, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "job_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": c.Param("name"), "items": n})
}

// GET /ws
func (h *Handlers) ServeWS(c *gin.Context) {
	h.Hub.ServeWS(h.Upgrader, c.Writer, c.Request)
}
