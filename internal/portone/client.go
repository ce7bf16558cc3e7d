// Package portone is a stateless HTTP client for the PortOne v2 payment API.
// Every call is a single round-trip; retries and business interpretation are
// the caller's responsibility.
package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fitsync/billing/internal/config"
	"go.uber.org/zap"
)

type Client struct {
	cfg  config.PortOneConfig
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg.PortOne,
		http: &http.Client{Timeout: cfg.PortOne.Timeout},
		log:  log.Named("portone.client"),
	}
}

// ChannelKeyFor maps an easy-pay provider name to the configured channel key.
// Card payments and unknown providers use the default channel.
func (c *Client) ChannelKeyFor(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "kakaopay":
		if c.cfg.KakaopayChannelKey != "" {
			return c.cfg.KakaopayChannelKey
		}
	case "tosspayments":
		if c.cfg.TosspaymentsChannelKey != "" {
			return c.cfg.TosspaymentsChannelKey
		}
	}
	return c.cfg.ChannelKey
}

// StoreID exposes the configured store for request bodies and query params.
func (c *Client) StoreID() string {
	return c.cfg.StoreID
}

// ChargeByKey executes an immediate charge against a stored billing key,
// keyed by the caller-generated payment id.
func (c *Client) ChargeByKey(ctx context.Context, paymentID string, req ChargeRequest) (*ChargeResponse, error) {
	var out ChargeResponse
	path := "/payments/" + url.PathEscape(paymentID) + "/billing-key"
	raw, err := c.do(ctx, "charge", http.MethodPost, path, nil, req, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// CreateSchedule registers a deferred charge under the given payment id.
func (c *Client) CreateSchedule(ctx context.Context, paymentID string, req CreateScheduleRequest) (*CreateScheduleResponse, error) {
	var out CreateScheduleResponse
	path := "/payments/" + url.PathEscape(paymentID) + "/schedule"
	if _, err := c.do(ctx, "create_schedule", http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSchedules revokes schedules by id or by billing key.
func (c *Client) CancelSchedules(ctx context.Context, req CancelSchedulesRequest) (*CancelSchedulesResponse, error) {
	if req.StoreID == "" {
		req.StoreID = c.cfg.StoreID
	}
	var out CancelSchedulesResponse
	if _, err := c.do(ctx, "cancel_schedules", http.MethodDelete, "/payment-schedules", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSchedule polls the provider-side state of one schedule.
func (c *Client) GetSchedule(ctx context.Context, scheduleID string) (*GetScheduleResponse, error) {
	var out GetScheduleResponse
	path := "/payment-schedules/" + url.PathEscape(scheduleID)
	raw, err := c.do(ctx, "get_schedule", http.MethodGet, path, c.storeQuery(), nil, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// GetBillingKey fetches the payment-instrument metadata behind a billing key.
func (c *Client) GetBillingKey(ctx context.Context, billingKey string) (*BillingKeyInfo, error) {
	var out BillingKeyInfo
	path := "/billing-keys/" + url.PathEscape(billingKey)
	if _, err := c.do(ctx, "get_billing_key", http.MethodGet, path, c.storeQuery(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBillingKey irrevocably deletes a billing key on the provider side.
func (c *Client) DeleteBillingKey(ctx context.Context, billingKey string) error {
	path := "/billing-keys/" + url.PathEscape(billingKey)
	var out DeleteBillingKeyResponse
	_, err := c.do(ctx, "delete_billing_key", http.MethodDelete, path, c.storeQuery(), nil, &out)
	return err
}

func (c *Client) storeQuery() url.Values {
	if c.cfg.StoreID == "" {
		return nil
	}
	return url.Values{"storeId": []string{c.cfg.StoreID}}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("portone %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("portone %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "PortOne "+c.cfg.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &GatewayError{Op: op, StatusCode: resp.StatusCode, Raw: raw}
		var parsed struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			gerr.Type = parsed.Type
			gerr.Message = parsed.Message
		}
		c.log.Warn("gateway call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", gerr.Type),
		)
		return nil, gerr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("portone %s: decode response: %w", op, err)
		}
	}
	return raw, nil
}
