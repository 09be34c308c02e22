package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDaraja(t *testing.T, stkStatus int, stkBody string) (*httptest.Server, *int32, *stkPushRequest) {
	t.Helper()
	var tokenCalls int32
	var got stkPushRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(stkStatus)
		_, _ = w.Write([]byte(stkBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls, &got
}

func TestMpesaInitiate(t *testing.T) {
	srv, tokenCalls, got := newDaraja(t, http.StatusOK,
		`{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success","CustomerMessage":"ok"}`)

	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	c := &MpesaClient{
		BaseURL: srv.URL, ConsumerKey: "key", ConsumerSecret: "secret",
		ShortCode: "174379", Passkey: "pass", CallbackURL: "https://example.test/cb",
		Location: time.FixedZone("EAT", 3*3600),
		Now:      func() time.Time { return fixed },
	}

	out, err := c.Initiate(context.Background(), Request{Phone: "254712345678", Amount: 122, Reference: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", out.CheckoutRequestID)

	assert.Equal(t, "20260301123000", got.Timestamp)
	pw, _ := base64.StdEncoding.DecodeString(got.Password)
	assert.Equal(t, "174379pass20260301123000", string(pw))
	assert.Equal(t, int64(122), got.Amount)
	assert.Equal(t, "ref-1", got.AccountReference)
	assert.Equal(t, "254712345678", got.PartyA)

	_, err = c.Initiate(context.Background(), Request{Phone: "254712345678", Amount: 50, Reference: "ref-2"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "token should be cached")
}

func TestMpesaInitiateGatewayError(t *testing.T) {
	srv, _, _ := newDaraja(t, http.StatusBadRequest,
		`{"requestId":"r","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`)
	c := &MpesaClient{BaseURL: srv.URL, ConsumerKey: "key", ConsumerSecret: "secret", ShortCode: "174379"}

	_, err := c.Initiate(context.Background(), Request{Phone: "254700000000", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestMpesaTokenRejected(t *testing.T) {
	srv, _, _ := newDaraja(t, http.StatusOK, `{}`)
	c := &MpesaClient{BaseURL: srv.URL, ConsumerKey: "wrong", ConsumerSecret: "secret"}

	_, err := c.Initiate(context.Background(), Request{})
	assert.Error(t, err)
}

func TestParseCallbackSuccess(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,
		"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":122.00},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
		{"Name":"TransactionDate","Value":20191219102115},{"Name":"PhoneNumber","Value":254712345678}]}}}}`)

	cb, err := ParseCallback(raw)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", cb.CheckoutRequestID)
	assert.Equal(t, int64(122), cb.Amount)
	assert.Equal(t, "NLJ7RT61SV", cb.Receipt)
	assert.Equal(t, "254712345678", cb.PhoneNumber)

	require.NoError(t, cb.Validate())
	n := cb.Notification(9)
	assert.True(t, n.Succeeded())
	assert.Equal(t, int64(9), n.BookingID)
}

func TestParseCallbackCancelled(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`)
	cb, err := ParseCallback(raw)
	require.NoError(t, err)
	assert.Equal(t, 1032, cb.ResultCode)
	assert.False(t, cb.Notification(1).Succeeded())
	assert.NoError(t, cb.Validate(), "failures carry no metadata")
}

func TestValidateRejectsBareSuccess(t *testing.T) {
	bare, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_3","ResultCode":0}}}`))
	require.NoError(t, err)
	assert.ErrorContains(t, bare.Validate(), "Amount")

	noReceipt := Callback{CheckoutRequestID: "ws_CO_3", Amount: 122}
	assert.ErrorContains(t, noReceipt.Validate(), "MpesaReceiptNumber")

	assert.NoError(t, Callback{CheckoutRequestID: "ws_CO_3", Amount: 122, Receipt: "NLJ7RT61SV"}.Validate())
}

func TestParseCallbackRejectsGarbage(t *testing.T) {
	_, err := ParseCallback([]byte(`{"Body":{}}`))
	assert.Error(t, err)
	_, err = ParseCallback([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoopback(t *testing.T) {
	out, err := Loopback{}.Initiate(context.Background(), Request{Amount: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, out.CheckoutRequestID)
}
