package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zapvoice/internal/services"
	"zapvoice/internal/textutil"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPDoer describes the HTTP client used by the gateway.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PayParams are the LNURL-pay parameters of a lightning address.
type PayParams struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	CommentAllowed int    `json:"commentAllowed"`
	AllowsNostr    bool   `json:"allowsNostr"`
	NostrPubkey    string `json:"nostrPubkey"`
	Tag            string `json:"tag"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

// Invoice is a BOLT-11 payment request plus the URL used to verify it.
// Settled only ever moves from false to true.
type Invoice struct {
	PaymentRequest string `json:"pr"`
	VerifyURL      string `json:"verify"`
	Settled        bool   `json:"settled"`
}

// Client talks to LNURL-pay providers.
type Client struct {
	http   HTTPDoer
	scheme string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithDiscoveryScheme changes the scheme used for /.well-known/lnurlp lookups.
// Lightning addresses are resolved over https unless overridden.
func WithDiscoveryScheme(scheme string) Option {
	return func(c *Client) {
		if scheme = strings.TrimSpace(scheme); scheme != "" {
			c.scheme = scheme
		}
	}
}

// NewClient constructs an LNURL client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: defaultHTTPTimeout},
		scheme: "https",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveAddress looks up the LNURL-pay parameters for a lightning address.
// Any failure means the recipient cannot be paid.
func (c *Client) ResolveAddress(ctx context.Context, lud16 string) (PayParams, error) {
	user, domain, ok := strings.Cut(strings.TrimSpace(lud16), "@")
	if !ok || user == "" || domain == "" || strings.ContainsAny(domain, "/?#") {
		return PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "lnurl", "resolve", fmt.Sprintf("invalid lightning address %q", lud16), nil)
	}
	endpoint := fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", c.scheme, domain, url.PathEscape(strings.ToLower(user)))

	var params PayParams
	if err := c.getJSON(ctx, endpoint, &params); err != nil {
		return PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "lnurl", "resolve", lud16, err)
	}
	if strings.EqualFold(params.Status, "ERROR") {
		return PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "lnurl", "resolve", params.Reason, nil)
	}
	if _, err := url.ParseRequestURI(params.Callback); err != nil || params.Callback == "" {
		return PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "lnurl", "resolve", "provider returned no callback", err)
	}
	return params, nil
}

// RequestInvoice asks the pay callback for an invoice of amountMsat. The
// comment is trimmed to the provider's commentAllowed and only sent when the
// provider accepts comments; zapRequest is only sent when the provider
// supports zaps.
func (c *Client) RequestInvoice(ctx context.Context, params PayParams, amountMsat int64, comment, zapRequest string) (Invoice, error) {
	if params.MinSendable > 0 && amountMsat < params.MinSendable {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback",
			fmt.Sprintf("amount %d msat below provider minimum %d", amountMsat, params.MinSendable), nil)
	}
	if params.MaxSendable > 0 && amountMsat > params.MaxSendable {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback",
			fmt.Sprintf("amount %d msat above provider maximum %d", amountMsat, params.MaxSendable), nil)
	}
	callback, err := url.Parse(params.Callback)
	if err != nil {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback", "invalid callback url", err)
	}
	query := callback.Query()
	query.Set("amount", strconv.FormatInt(amountMsat, 10))
	if params.CommentAllowed > 0 && strings.TrimSpace(comment) != "" {
		query.Set("comment", textutil.Truncate(comment, params.CommentAllowed))
	}
	if params.AllowsNostr && zapRequest != "" {
		query.Set("nostr", zapRequest)
	}
	callback.RawQuery = query.Encode()

	var response struct {
		Invoice
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.getJSON(ctx, callback.String(), &response); err != nil {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback", "", err)
	}
	if strings.EqualFold(response.Status, "ERROR") {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback", response.Reason, nil)
	}
	if response.PaymentRequest == "" {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback", "provider returned no invoice", nil)
	}
	if response.VerifyURL == "" {
		return Invoice{}, services.Wrap(services.ErrInvoiceCreation, "lnurl", "callback", "provider does not support settlement verification", nil)
	}
	return Invoice{PaymentRequest: response.PaymentRequest, VerifyURL: response.VerifyURL}, nil
}

// CheckSettlement queries the verify URL. It has no side effects and may be
// called any number of times.
func (c *Client) CheckSettlement(ctx context.Context, verifyURL string) (bool, error) {
	var response struct {
		Status   string `json:"status"`
		Reason   string `json:"reason"`
		Settled  bool   `json:"settled"`
		Preimage string `json:"preimage"`
	}
	if err := c.getJSON(ctx, verifyURL, &response); err != nil {
		return false, services.Wrap(services.ErrSettlementCheck, "lnurl", "verify", "", err)
	}
	if strings.EqualFold(response.Status, "ERROR") {
		return false, services.Wrap(services.ErrSettlementCheck, "lnurl", "verify", response.Reason, nil)
	}
	return response.Settled, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
