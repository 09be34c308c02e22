package models

// PaymentNotification is the gateway-neutral outcome of a payment attempt.
type PaymentNotification struct {
	BookingID  int64  `json:"bookingId"`
	ResultCode int    `json:"resultCode"`
	ResultDesc string `json:"resultDesc,omitempty"`
	Amount     int64  `json:"amount"`
	Receipt    string `json:"receipt,omitempty"`
	PayerPhone string `json:"payerPhone,omitempty"`
}

// Succeeded reports whether the gateway accepted the payment.
func (n PaymentNotification) Succeeded() bool {
	return n.ResultCode == 0
}
