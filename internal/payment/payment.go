// Package payment is a thin client for the Zibal payment gateway, used to
// sell the premium subscription. Amounts are in Rials.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://gateway.zibal.ir"

	// result code Zibal returns for a successful request or a paid
	// transaction
	resultOK = 100
	// verify result for a transaction that was already verified once
	resultAlreadyVerified = 201
)

type Client struct {
	merchant   string
	callback   string
	baseURL    string
	httpClient *http.Client
}

func NewClient(merchant, callbackURL string) *Client {
	return &Client{
		merchant:   merchant,
		callback:   callbackURL,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL points the client at a different gateway host, for tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type requestPayload struct {
	Merchant    string `json:"merchant"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callbackUrl"`
	Description string `json:"description"`
	OrderID     string `json:"orderId"`
}

type requestResponse struct {
	Result  int    `json:"result"`
	TrackID int64  `json:"trackId"`
	Message string `json:"message"`
}

// CreateCheckout registers a payment with the gateway and returns the URL
// the user opens to pay, plus the gateway's track id for later verification.
func (c *Client) CreateCheckout(ctx context.Context, ownerID, amountIRR int64, description string) (string, int64, error) {
	payload := requestPayload{
		Merchant:    c.merchant,
		Amount:      amountIRR,
		CallbackURL: c.callback,
		Description: description,
		OrderID:     fmt.Sprintf("user-%d-%d", ownerID, time.Now().Unix()),
	}

	var resp requestResponse
	if err := c.post(ctx, "/v1/request", payload, &resp); err != nil {
		return "", 0, err
	}
	if resp.Result != resultOK {
		return "", 0, fmt.Errorf("payment: gateway refused request: %d %s", resp.Result, resp.Message)
	}
	return fmt.Sprintf("%s/start/%d", c.baseURL, resp.TrackID), resp.TrackID, nil
}

type verifyPayload struct {
	Merchant string `json:"merchant"`
	TrackID  int64  `json:"trackId"`
}

type verifyResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
}

// Verify asks the gateway whether the transaction was paid. A declined or
// still-pending transaction reports false with no error.
func (c *Client) Verify(ctx context.Context, trackID int64) (bool, error) {
	var resp verifyResponse
	if err := c.post(ctx, "/v1/verify", verifyPayload{Merchant: c.merchant, TrackID: trackID}, &resp); err != nil {
		return false, err
	}
	switch resp.Result {
	case resultOK, resultAlreadyVerified:
		return true, nil
	}
	return false, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payment: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payment: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment: call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment: gateway returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payment: decode response: %w", err)
	}
	return nil
}
