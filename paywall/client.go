package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnknownEnvironment indicates the environment selector does not name a
// known payments deployment.
var ErrUnknownEnvironment = errors.New("unknown payments environment")

// environmentURLs maps the environment selector to the payments backend
// base URL. "custom" requires an explicit WithBaseURL option.
var environmentURLs = map[string]string{
	"live":    "https://api.nevermined.app",
	"sandbox": "https://api.sandbox.nevermined.app",
}

// ClientOption configures a payments Client.
type ClientOption func(*Client)

// WithBaseURL overrides the environment-derived base URL.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithClientHTTP sets the underlying HTTP client.
func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client is the HTTP implementation of PaymentsService against the remote
// payments backend. The builder credential authenticates the gateway
// itself; caller credentials travel in request bodies.
type Client struct {
	http       *http.Client
	baseURL    string
	builderKey string
}

var _ PaymentsService = (*Client)(nil)

// NewClient builds a payments client for the named environment using the
// gateway's builder credential.
func NewClient(environment, builderKey string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		builderKey: builderKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		base, ok := environmentURLs[environment]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, environment)
		}
		c.baseURL = base
	}
	return c, nil
}

type startRequestBody struct {
	AgentID      string `json:"agentId"`
	AccessToken  string `json:"accessToken"`
	URLRequested string `json:"urlRequested"`
	HTTPVerb     string `json:"httpVerb"`
}

type redeemRequestBody struct {
	AgentRequestID string `json:"agentRequestId"`
	AccessToken    string `json:"accessToken"`
	Amount         string `json:"amount"`
}

// StartProcessingRequest implements PaymentsService.
func (c *Client) StartProcessingRequest(ctx context.Context, ownerID, credential, logicalURL, verb string) (*RequestAccess, error) {
	body := startRequestBody{
		AgentID:      ownerID,
		AccessToken:  credential,
		URLRequested: logicalURL,
		HTTPVerb:     verb,
	}

	var access RequestAccess
	if err := c.post(ctx, "/api/v1/payments/requests/start", body, &access); err != nil {
		return nil, err
	}
	return &access, nil
}

// RedeemCredits implements PaymentsService. Amounts travel as decimal
// strings because the backend accounts in bignum credits.
func (c *Client) RedeemCredits(ctx context.Context, agentRequestID, credential string, amount int64) error {
	body := redeemRequestBody{
		AgentRequestID: agentRequestID,
		AccessToken:    credential,
		Amount:         fmt.Sprintf("%d", amount),
	}
	return c.post(ctx, "/api/v1/payments/requests/redeem", body, nil)
}

type backendError struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payments request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build payments request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.builderKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payments backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		var be backendError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&be); err != nil || be.Message == "" {
			be.Message = fmt.Sprintf("payments backend rejected request (status %d)", resp.StatusCode)
		}
		return &SubscriptionError{Message: be.Message, Data: be.Data}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payments backend: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode payments response: %w", err)
		}
	}
	return nil
}
