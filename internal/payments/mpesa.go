package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const mpesaTimestampLayout = "20060102150405"

// MpesaClient starts Lipa na M-Pesa Online (STK push) payments.
type MpesaClient struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Location       *time.Location
	HTTP           *http.Client
	Now            func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (c *MpesaClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *MpesaClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.BaseURL, "/")+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("mpesa token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("mpesa token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("mpesa token: empty access token")
	}
	ttl, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttl <= 60 {
		ttl = 3599
	}
	c.token = tr.AccessToken
	c.tokenExp = c.now().Add(time.Duration(ttl-60) * time.Second)
	return c.token, nil
}

// Password is base64(shortcode + passkey + timestamp).
func (c *MpesaClient) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.ShortCode + c.Passkey + timestamp))
}

// Initiate sends the STK push prompt to req.Phone.
func (c *MpesaClient) Initiate(ctx context.Context, req Request) (Checkout, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Checkout{}, err
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	ts := c.now().In(loc).Format(mpesaTimestampLayout)
	desc := req.Description
	if desc == "" {
		desc = "Seat booking"
	}
	payload, err := json.Marshal(stkPushRequest{
		BusinessShortCode: c.ShortCode,
		Password:          c.Password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   desc,
	})
	if err != nil {
		return Checkout{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return Checkout{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return Checkout{}, fmt.Errorf("mpesa stk push: %w", err)
	}
	defer resp.Body.Close()

	var out stkPushResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return Checkout{}, fmt.Errorf("mpesa stk push: status %d: decode: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.ResponseCode != "0" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		return Checkout{}, fmt.Errorf("mpesa stk push: status %d: %s", resp.StatusCode, msg)
	}
	return Checkout{
		CheckoutRequestID: out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}
