// Package paypal implements the redirect checkout flow against the PayPal
// Orders v2 REST API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/metrics"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

func BaseURLForMode(mode string) string {
	if strings.EqualFold(mode, "live") {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

var _ infra.PaymentGateway = (*Client)(nil)

func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: oauth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal: oauth returned status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	c.accessToken = out.AccessToken
	// refresh a minute early
	c.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Description string `json:"description,omitempty"`
	Amount      amount `json:"amount"`
}

type applicationContext struct {
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	UserAction string `json:"user_action"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

func (c *Client) CreateOrder(ctx context.Context, in infra.GatewayOrderRequest) (*infra.GatewayOrder, error) {
	defer metrics.ObserveExternalCall("paypal", time.Now())

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: strconv.FormatUint(in.OrderID, 10),
			Description: in.Description,
			Amount:      amount{CurrencyCode: currency, Value: in.Amount.StringFixed(2)},
		}},
		ApplicationContext: applicationContext{
			ReturnURL:  in.ReturnURL,
			CancelURL:  in.CancelURL,
			UserAction: "PAY_NOW",
		},
	}

	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return nil, err
	}

	order := &infra.GatewayOrder{ID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			order.ApprovalURL = l.Href
			break
		}
	}
	if order.ApprovalURL == "" {
		return nil, fmt.Errorf("paypal: order %s has no approval link", out.ID)
	}
	return order, nil
}

func (c *Client) CaptureOrder(ctx context.Context, gatewayOrderID string) (*infra.CaptureResult, error) {
	defer metrics.ObserveExternalCall("paypal", time.Now())

	var out orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(gatewayOrderID) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &infra.CaptureResult{ID: out.ID, Status: out.Status}, nil
}

func (c *Client) GetOrder(ctx context.Context, gatewayOrderID string) (*infra.GatewayOrder, error) {
	defer metrics.ObserveExternalCall("paypal", time.Now())

	var out orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(gatewayOrderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &infra.GatewayOrder{ID: out.ID, Status: out.Status}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("paypal: %s %s returned status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
