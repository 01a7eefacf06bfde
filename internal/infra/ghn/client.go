// Package ghn talks to the Giao Hang Nhanh shipping API.
package ghn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/metrics"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://dev-online-gateway.ghn.vn/shiip/public-api"

	// Standard service with a fixed 1kg parcel insured at 500k VND.
	StandardServiceType = 2
	DefaultWeightGrams  = 1000
	DefaultInsurance    = 500000
)

type Client struct {
	baseURL    string
	token      string
	shopID     string
	httpClient *http.Client
}

var _ infra.ShippingFeeResolver = (*Client)(nil)

func NewClient(baseURL, token, shopID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		shopID:     shopID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type feeRequest struct {
	ServiceTypeID  int    `json:"service_type_id"`
	FromDistrictID int    `json:"from_district_id"`
	ToDistrictID   int    `json:"to_district_id"`
	ToWardCode     string `json:"to_ward_code"`
	Weight         int    `json:"weight"`
	InsuranceValue int64  `json:"insurance_value"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) CalculateFee(ctx context.Context, req infra.FeeRequest) (decimal.Decimal, error) {
	defer metrics.ObserveExternalCall("ghn", time.Now())

	body := feeRequest{
		ServiceTypeID:  req.ServiceTypeID,
		FromDistrictID: req.FromDistrictID,
		ToDistrictID:   req.ToDistrictID,
		ToWardCode:     req.ToWardCode,
		Weight:         req.WeightGrams,
		InsuranceValue: req.InsuranceValue,
	}
	if body.ServiceTypeID == 0 {
		body.ServiceTypeID = StandardServiceType
	}
	if body.Weight == 0 {
		body.Weight = DefaultWeightGrams
	}
	if body.InsuranceValue == 0 {
		body.InsuranceValue = DefaultInsurance
	}

	var data struct {
		Total json.Number `json:"total"`
	}
	if err := c.post(ctx, "/v2/shipping-order/fee", body, &data); err != nil {
		return decimal.Zero, err
	}
	fee, err := decimal.NewFromString(data.Total.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("ghn: parse fee %q: %w", data.Total, err)
	}
	return fee, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.token)
	if c.shopID != "" {
		req.Header.Set("ShopId", c.shopID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("ghn: %s returned status %d", path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || env.Code != http.StatusOK {
		return fmt.Errorf("ghn: %s failed (status %d, code %d): %s", path, resp.StatusCode, env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
