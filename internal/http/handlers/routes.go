package handlers

import (
	"net/http"

	"matsched/internal/services"

	"github.com/gin-gonic/gin"
)

// POST /api/admin/routes
func (h *Handlers) CreateRoute(c *gin.Context) {
	var in services.RouteInput
	if !BindJSONOrError(c, &in) {
		return
	}
	r, err := h.Routes.CreateRoute(c.Request.Context(), identity(c), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// PUT /api/admin/routes/:id
func (h *Handlers) UpdateRoute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.RouteInput
	if !BindJSONOrError(c, &in) {
		return
	}
	r, err := h.Routes.UpdateRoute(c.Request.Context(), identity(c), id, in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GET /api/routes/:id
func (h *Handlers) GetRoute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.Routes.GetRoute(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GET /api/routes/:id/quote?pickup=Thika%20Rd&dropoff=Juja
func (h *Handlers) QuoteFare(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	q, err := h.Routes.Quote(c.Request.Context(), id, c.Query("pickup"), c.Query("dropoff"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// POST /api/admin/vehicles
func (h *Handlers) CreateVehicle(c *gin.Context) {
	var in services.VehicleInput
	if !BindJSONOrError(c, &in) {
		return
	}
	v, err := h.Vehicles.CreateVehicle(c.Request.Context(), identity(c), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// GET /api/admin/vehicles/:id
func (h *Handlers) GetVehicle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	v, err := h.Vehicles.GetVehicle(c.Request.Context(), identity(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// GET /api/admin/routes
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes, err := h.Routes.ListRoutes(c.Request.Context(), identity(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// DELETE /api/admin/routes/:id
func (h *Handlers) DeleteRoute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Routes.DeleteRoute(c.Request.Context(), identity(c), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/admin/vehicles
func (h *Handlers) ListVehicles(c *gin.Context) {
	vs, err := h.Vehicles.ListVehicles(c.Request.Context(), identity(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": vs})
}

// PUT /api/admin/vehicles/:id
func (h *Handlers) UpdateVehicle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.VehicleUpdate
	if !BindJSONOrError(c, &in) {
		return
	}
	v, err := h.Vehicles.UpdateVehicle(c.Request.Context(), identity(c), id, in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
