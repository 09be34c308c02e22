package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/http/middleware"
	"matsched/internal/services"
	"matsched/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthUser is the user payload returned by login and register.
type AuthUser struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	OperatorID *int64 `json:"operatorId,omitempty"`
}

func toAuthUser(u models.User) AuthUser {
	return AuthUser{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role, OperatorID: u.OperatorID}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	// RouteID lets a driver join the route's queue as part of logging in.
	RouteID int64 `json:"route_id"`
}

// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	ctx := c.Request.Context()
	token, u, err := h.Auth.Login(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	resp := gin.H{"token": token, "user": toAuthUser(u)}
	if u.Role == domain.RoleDriver && req.RouteID > 0 && u.OperatorID != nil {
		status, err := h.Dispatch.DriverAvailable(ctx, services.DriverJoin{DriverID: u.ID, OperatorID: *u.OperatorID, RouteID: req.RouteID})
		if err != nil {
			// login still succeeds; the driver can rejoin via /api/driver/queue
			utils.LogEvent(middleware.GetRequestID(c), "auth", "queue_join_failed", fmt.Sprintf("driver_id=%d route_id=%d err=%v", u.ID, req.RouteID, err))
			resp["queueError"] = domain.ReasonCode(err)
		} else {
			resp["queue"] = status
		}
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var in services.RegisterInput
	if !BindJSONOrError(c, &in) {
		return
	}
	u, err := h.Auth.Register(c.Request.Context(), identity(c), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": toAuthUser(u)})
}
