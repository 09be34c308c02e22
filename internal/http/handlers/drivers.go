package handlers

import (
	"net/http"

	"matsched/internal/domain"
	"matsched/internal/queue"
	"matsched/internal/services"

	"github.com/gin-gonic/gin"
)

type joinQueueRequest struct {
	RouteID int64 `json:"routeId" binding:"required"`
}

// POST /api/driver/queue
func (h *Handlers) JoinQueue(c *gin.Context) {
	var req joinQueueRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	rc := identity(c)
	status, err := h.Dispatch.DriverAvailable(c.Request.Context(), services.DriverJoin{
		DriverID:   rc.UserID,
		OperatorID: rc.OperatorID,
		RouteID:    req.RouteID,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/driver/queue?routeId=
func (h *Handlers) QueueStatus(c *gin.Context) {
	routeID, ok := idQuery(c, "routeId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key, route, err := h.Dispatch.RouteKeyFor(ctx, routeID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	rc := identity(c)
	if route.OperatorID != rc.OperatorID {
		respondError(c, http.StatusForbidden, "forbidden", "route belongs to another operator")
		return
	}
	status, err := h.Dispatch.Status(ctx, key, rc.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/admin/queue?routeId=
func (h *Handlers) ListQueue(c *gin.Context) {
	routeID, ok := idQuery(c, "routeId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key, route, err := h.Dispatch.RouteKeyFor(ctx, routeID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if !identity(c).IsAdminOf(route.OperatorID) {
		respondError(c, http.StatusForbidden, "forbidden", "route belongs to another operator")
		return
	}
	entries, active, err := h.Dispatch.Entries(ctx, key)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"routeKey":  key,
		"active":    active,
		"entries":   entries,
		"positions": queue.WaitingPositions(entries),
	})
}

// GET /api/driver/bookings/:id/verify?scheduleId=
func (h *Handlers) VerifyBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	scheduleID, ok := idQuery(c, "scheduleId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sched, err := h.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	rc := identity(c)
	if rc.OperatorID != sched.OperatorID {
		RespondDomainError(c, domain.DomainError{Code: "forbidden", Err: domain.ErrForbidden})
		return
	}
	b, err := h.Bookings.Verify(ctx, id, scheduleID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "booking": b})
}
