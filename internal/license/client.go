package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is the Gumroad API root.
	DefaultBaseURL = "https://api.gumroad.com"
	verifyPath     = "/v2/licenses/verify"

	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client talks to a Gumroad-compatible license verification endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds every call.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout on the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBreakerSettings overrides the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) ClientOption {
	return func(c *Client) { c.breaker = gobreaker.NewCircuitBreaker(st) }
}

// NewClient creates a Client for the authority rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "license-authority",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verifyResponse struct {
	Success  *bool  `json:"success"`
	Message  string `json:"message"`
	Uses     int    `json:"uses"`
	Purchase *struct {
		SaleID       string `json:"sale_id"`
		ProductID    string `json:"product_id"`
		Email        string `json:"email"`
		Refunded     bool   `json:"refunded"`
		Disputed     bool   `json:"disputed"`
		Chargebacked bool   `json:"chargebacked"`
	} `json:"purchase"`
}

// Verify asks the authority about licenseKey without incrementing its use
// count. Only a definite answer from the authority yields a Result; anything
// else is ErrAuthorityUnavailable.
func (c *Client) Verify(ctx context.Context, productID, licenseKey string) (*Result, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.verify(ctx, productID, strings.TrimSpace(licenseKey))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) verify(ctx context.Context, productID, licenseKey string) (*Result, error) {
	form := url.Values{
		"product_id":           {productID},
		"license_key":          {licenseKey},
		"increment_uses_count": {"false"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrAuthorityUnavailable, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrAuthorityUnavailable, err)
	}
	if body.Success == nil {
		return nil, fmt.Errorf("%w: response without success field (status %d)", ErrAuthorityUnavailable, resp.StatusCode)
	}

	if !*body.Success {
		return &Result{Verdict: VerdictInvalid}, nil
	}
	if body.Purchase == nil {
		return nil, fmt.Errorf("%w: successful response without purchase", ErrAuthorityUnavailable)
	}

	sale := &Sale{
		SaleID:       body.Purchase.SaleID,
		ProductID:    body.Purchase.ProductID,
		Email:        body.Purchase.Email,
		Refunded:     body.Purchase.Refunded,
		Disputed:     body.Purchase.Disputed,
		Chargebacked: body.Purchase.Chargebacked,
		Uses:         body.Uses,
	}
	if sale.Refunded || sale.Disputed || sale.Chargebacked {
		return &Result{Verdict: VerdictRevoked, Sale: sale}, nil
	}
	return &Result{Verdict: VerdictValid, Sale: sale}, nil
}
