package alby

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zapvoice/internal/config"
	"zapvoice/internal/services"
)

// HTTPDoer describes the HTTP client used by the Alby service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client checks invoice settlement with a bearer token.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewConfiguredClient builds a client from the alby section of cfg.
func NewConfiguredClient(cfg *config.Config) *Client {
	if cfg == nil {
		return NewClient("", "", nil)
	}
	timeout := time.Duration(cfg.Alby.TimeoutSeconds) * time.Second
	return NewClient(cfg.Alby.BaseURL, cfg.Alby.Token, &http.Client{Timeout: timeout})
}

// NewClient constructs an Alby client. A nil doer uses http.DefaultClient.
func NewClient(baseURL, token string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  client,
	}
}

// Configured reports whether a token is available.
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// InvoiceSettled reports whether the invoice identified by paymentHash has
// been paid.
func (c *Client) InvoiceSettled(ctx context.Context, paymentHash string) (bool, error) {
	paymentHash = strings.TrimSpace(paymentHash)
	if paymentHash == "" {
		return false, services.Wrap(services.ErrValidation, "alby", "invoice", "payment hash required", nil)
	}
	if !c.Configured() {
		return false, services.Wrap(services.ErrConfiguration, "alby", "invoice", "alby token not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/invoices/%s", c.baseURL, url.PathEscape(paymentHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build alby invoice request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, services.Wrap(services.ErrSettlementCheck, "alby", "invoice", "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, services.Wrap(services.ErrSettlementCheck, "alby", "invoice", "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, services.Wrap(services.ErrNotFound, "alby", "invoice", paymentHash, nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return false, services.Wrap(services.ErrSettlementCheck, "alby", "invoice",
			fmt.Sprintf("alby returned %d", resp.StatusCode), nil)
	}
	var invoice struct {
		Settled bool   `json:"settled"`
		State   string `json:"state"`
	}
	if err := json.Unmarshal(body, &invoice); err != nil {
		return false, services.Wrap(services.ErrSettlementCheck, "alby", "invoice", "decode response", err)
	}
	return invoice.Settled || strings.EqualFold(invoice.State, "SETTLED"), nil
}
