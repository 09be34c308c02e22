package handlers

import (
	"net/http"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/services"

	"github.com/gin-gonic/gin"
)

// POST /api/bookings
// Anonymous callers may book with just a phone number; a logged-in
// passenger gets the booking linked to their account.
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req services.BookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	if rc := identity(c); rc.Role == domain.RolePassenger && rc.UserID > 0 {
		uid := rc.UserID
		req.PassengerID = &uid
	}
	res, err := h.Bookings.Initiate(c.Request.Context(), req)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /api/bookings/:id
func (h *Handlers) GetBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Get(c.Request.Context(), identity(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type confirmRequest struct {
	ResultCode int    `json:"resultCode"`
	ResultDesc string `json:"resultDesc"`
	Amount     int64  `json:"amount"`
	Receipt    string `json:"receipt"`
	PayerPhone string `json:"payerPhone"`
}

// POST /api/bookings/:id/confirm
// Records a payment settled outside M-Pesa. Only an admin of the booking's
// operator may call it.
func (h *Handlers) ConfirmBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	ctx := c.Request.Context()
	rc := identity(c)
	b, err := h.Bookings.Get(ctx, rc, id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if !rc.IsAdminOf(b.OperatorID) {
		respondError(c, http.StatusForbidden, "forbidden", "only the operator's admin may confirm payments")
		return
	}
	res, err := h.Payments.HandleNotification(ctx, models.PaymentNotification{
		BookingID:  id,
		ResultCode: req.ResultCode,
		ResultDesc: req.ResultDesc,
		Amount:     req.Amount,
		Receipt:    req.Receipt,
		PayerPhone: req.PayerPhone,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/bookings/:id/ticket
func (h *Handlers) GetTicketPDF(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	b, err := h.Bookings.Get(ctx, identity(c), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if b.Status != models.BookingConfirmed {
		respondError(c, http.StatusConflict, "payment_pending", "ticket is available once payment is confirmed")
		return
	}
	pdf, filename, err := h.Docs.ETicket(ctx, b)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
