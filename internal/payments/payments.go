// Package payments talks to the mobile-money gateway: it starts STK push
// prompts and decodes the gateway's asynchronous result callbacks.
package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Request asks the gateway to prompt Phone for Amount.
type Request struct {
	Phone       string
	Amount      int64
	Reference   string
	Description string
}

// Checkout is the gateway's acknowledgement of a started prompt. The request
// ids identify the payment to the callback endpoint and never leave the
// server.
type Checkout struct {
	CheckoutRequestID string `json:"-"`
	MerchantRequestID string `json:"-"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

// Loopback accepts every request without contacting a gateway. Results must
// be posted to the operator's manual confirmation endpoint.
type Loopback struct{}

func (Loopback) Initiate(_ context.Context, req Request) (Checkout, error) {
	return Checkout{
		CheckoutRequestID: "loop_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		CustomerMessage:   "payment prompt simulated",
	}, nil
}
