package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"matsched/internal/domain/models"
)

// Callback is the decoded result of one STK push.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	Receipt           string
	PhoneNumber       string
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes the gateway's result body.
func ParseCallback(raw []byte) (Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Callback{}, fmt.Errorf("decode callback: %w", err)
	}
	stk := env.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return Callback{}, fmt.Errorf("decode callback: missing CheckoutRequestID")
	}

	cb := Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
	}
	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, ok := number(item.Value); ok {
				cb.Amount = int64(math.Round(f))
			}
		case "MpesaReceiptNumber":
			cb.Receipt = text(item.Value)
		case "PhoneNumber":
			cb.PhoneNumber = text(item.Value)
		}
	}
	return cb, nil
}

// Validate rejects a success that carries no paid amount or receipt. The
// gateway always sends both, so a bare success did not come from it.
func (c Callback) Validate() error {
	if c.ResultCode != 0 {
		return nil
	}
	if c.Amount <= 0 {
		return fmt.Errorf("callback %s: success without Amount", c.CheckoutRequestID)
	}
	if c.Receipt == "" {
		return fmt.Errorf("callback %s: success without MpesaReceiptNumber", c.CheckoutRequestID)
	}
	return nil
}

// Notification converts the callback for the booking it settles.
func (c Callback) Notification(bookingID int64) models.PaymentNotification {
	return models.PaymentNotification{
		BookingID:  bookingID,
		ResultCode: c.ResultCode,
		ResultDesc: c.ResultDesc,
		Amount:     c.Amount,
		Receipt:    c.Receipt,
		PayerPhone: c.PhoneNumber,
	}
}

func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func text(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}
