package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/services"

	"github.com/gin-gonic/gin"
)

// POST /api/admin/schedules
func (h *Handlers) CreateSchedule(c *gin.Context) {
	var in services.CreateScheduleInput
	if !BindJSONOrError(c, &in) {
		return
	}
	s, err := h.Schedules.CreateSchedule(c.Request.Context(), identity(c), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// GET /api/schedules/:id
func (h *Handlers) GetSchedule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	s, err := h.Schedules.GetSchedule(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GET /api/schedules/search?from=CBD&to=Juja&at=2026-03-02T08:00:00Z&window=90
func (h *Handlers) SearchSchedules(c *gin.Context) {
	q := services.TripSearch{From: c.Query("from"), To: c.Query("to")}
	if raw := strings.TrimSpace(c.Query("at")); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_at", "at must be an RFC 3339 time")
			return
		}
		q.At = at
	}
	window, ok := intQuery(c, "window")
	if !ok {
		return
	}
	q.WindowMinutes = window
	trips, err := h.Schedules.Search(c.Request.Context(), q)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

// GET /api/admin/schedules
func (h *Handlers) TodaySchedules(c *gin.Context) {
	ss, err := h.Schedules.TodaySchedules(c.Request.Context(), identity(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": ss})
}

// GET /api/admin/schedules/past?page=2
func (h *Handlers) PastSchedules(c *gin.Context) {
	page, ok := intQuery(c, "page")
	if !ok {
		return
	}
	res, err := h.Schedules.PastSchedules(c.Request.Context(), identity(c), page)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/driver/schedule
func (h *Handlers) DriverSchedule(c *gin.Context) {
	trips, err := h.Schedules.DriverSchedules(c.Request.Context(), identity(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

// POST /api/admin/schedules/:id/cancel
func (h *Handlers) CancelSchedule(c *gin.Context) {
	h.lifecycle(c, h.Schedules.CancelSchedule)
}

// POST /api/driver/trips/:id/start
func (h *Handlers) StartTrip(c *gin.Context) {
	h.lifecycle(c, h.Schedules.StartTrip)
}

// POST /api/driver/trips/:id/complete
func (h *Handlers) CompleteTrip(c *gin.Context) {
	h.lifecycle(c, h.Schedules.CompleteTrip)
}

type lifecycleFunc = func(ctx context.Context, rc domain.RequestContext, id int64) (models.Schedule, error)

func (h *Handlers) lifecycle(c *gin.Context, fn lifecycleFunc) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	s, err := fn(c.Request.Context(), identity(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
