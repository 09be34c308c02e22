package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"matsched/internal/http/middleware"
	"matsched/internal/payments"
	"matsched/internal/utils"

	"github.com/gin-gonic/gin"
)

// POST /api/payments/mpesa/callback?token=...
// The gateway is always answered 200; failures are only logged. Requests
// without the configured token are answered as an unknown route.
func (h *Handlers) MpesaCallback(c *gin.Context) {
	reqID := middleware.GetRequestID(c)
	if !h.callbackAllowed(c.Query("token")) {
		utils.LogEvent(reqID, "payment", "callback_rejected", "bad or missing token from "+c.ClientIP())
		respondError(c, http.StatusNotFound, "not_found", "route not found")
		return
	}
	ack := gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

	raw, err := c.GetRawData()
	if err != nil {
		utils.LogEvent(reqID, "payment", "callback_read_failed", err.Error())
		c.JSON(http.StatusOK, ack)
		return
	}
	cb, err := payments.ParseCallback(raw)
	if err != nil {
		utils.LogEvent(reqID, "payment", "callback_invalid", err.Error())
		c.JSON(http.StatusOK, ack)
		return
	}
	res, err := h.Payments.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		utils.LogEvent(reqID, "payment", "callback_failed", fmt.Sprintf("checkout=%s err=%v", cb.CheckoutRequestID, err))
		c.JSON(http.StatusOK, ack)
		return
	}
	utils.LogEvent(reqID, "payment", "callback_handled", fmt.Sprintf("checkout=%s outcome=%s booking_id=%d", cb.CheckoutRequestID, res.Outcome, res.BookingID))
	c.JSON(http.StatusOK, ack)
}

func (h *Handlers) callbackAllowed(token string) bool {
	if h.CallbackToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.CallbackToken)) == 1
}
