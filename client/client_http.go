// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/fingerprint"
	"github.com/toeirei/gatekeeper/internal/httpapi"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/security"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Status     string
	Reason     string
	Retryable  bool
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("gatekeeper: %d %s", e.StatusCode, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// HTTPClient talks to a gatekeeper server over its HTTP API.
type HTTPClient struct {
	cfg  Config
	base *url.URL
	http *http.Client
	host fingerprint.Provider
}

// *HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg.BaseURL. host supplies the machine
// attributes sent with every login.
func NewHTTPClient(cfg Config, host fingerprint.Provider) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: want http(s)://host", cfg.BaseURL)
	}
	if host == nil {
		return nil, errors.New("host provider is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = NewDefaultConfig().UserAgent
	}
	return &HTTPClient{cfg: cfg, base: base, http: hc, host: host}, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close(ctx context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/healthz", nil, nil)
}

func (c *HTTPClient) Login(ctx context.Context, username string, password security.Secret) (Session, error) {
	h := c.host.Host()
	req := httpapi.LoginRequest{
		Username:   username,
		Password:   string(password),
		MachineID:  h.Fingerprint.MachineID,
		CPUID:      h.Fingerprint.CPUID,
		MACAddress: h.Fingerprint.MACAddress,
		OSVersion:  h.OSVersion,
		Auxiliary:  h.Auxiliary,
	}
	var resp httpapi.LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/v1/login", req, &resp); err != nil {
		return Session{}, err
	}
	s := Session{
		AccountID: resp.AccountID,
		Username:  resp.Username,
		Expired:   resp.Expired,
		Message:   resp.Message,
	}
	if resp.ExpiresAt != nil {
		s.Subscription = &Subscription{ProductID: resp.ProductID, ExpiresAt: *resp.ExpiresAt}
	}
	return s, nil
}

func (c *HTTPClient) Register(ctx context.Context, r Registration) (int64, error) {
	req := httpapi.RegisterRequest{
		Username: r.Username,
		Password: string(r.Password),
		Confirm:  string(r.Confirm),
		Key:      r.Key,
	}
	var resp httpapi.AccountResponse
	if err := c.do(ctx, "register", http.MethodPost, "/v1/register", req, &resp); err != nil {
		return 0, err
	}
	return resp.AccountID, nil
}

func (c *HTTPClient) Redeem(ctx context.Context, accountID int64, key string) (Subscription, error) {
	var resp httpapi.SubscriptionResponse
	path := "/v1/accounts/" + strconv.FormatInt(accountID, 10) + "/redeem"
	if err := c.do(ctx, "redeem", http.MethodPost, path, httpapi.RedeemRequest{Key: key}, &resp); err != nil {
		return Subscription{}, err
	}
	return Subscription(resp), nil
}

func (c *HTTPClient) Subscriptions(ctx context.Context, accountID int64) ([]Subscription, error) {
	var resp []httpapi.SubscriptionResponse
	path := "/v1/accounts/" + strconv.FormatInt(accountID, 10) + "/subscriptions"
	if err := c.do(ctx, "subscriptions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Subscription, 0, len(resp))
	for _, s := range resp {
		out = append(out, Subscription(s))
	}
	return out, nil
}

// do sends one JSON request and decodes the answer into out.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.TransientError{Op: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	logging.Debugf("client: %s %s -> %d", method, path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// decodeError turns an error response into the core error it stands for.
func decodeError(op string, resp *http.Response) error {
	var body httpapi.ErrResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     body.StatusText,
		Reason:     body.Reason,
		Retryable:  body.Retryable,
	}
	if apiErr.Status == "" {
		apiErr.Status = http.StatusText(resp.StatusCode)
	}
	if apiErr.Retryable || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout {
		return &core.TransientError{Op: op, Cause: apiErr}
	}
	if reason := rejection(apiErr); reason != nil {
		return &core.RejectedError{Reason: reason}
	}
	return apiErr
}

func rejection(e *APIError) error {
	switch e.Status {
	case httpapi.StatusInvalidCredentials:
		return core.ErrInvalidCredentials
	case httpapi.StatusHardwareMismatch:
		return core.ErrHardwareMismatch
	case httpapi.StatusAccountNotFound:
		return core.ErrAccountNotFound
	case httpapi.StatusAlreadyRedeemed:
		return core.ErrAlreadyRedeemed
	case httpapi.StatusInvalidKey:
		return core.ErrInvalidKey
	case httpapi.StatusUsernameTaken:
		return core.ErrUsernameTaken
	case httpapi.StatusInvalidInput, httpapi.StatusInvalidRequest:
		if e.Reason == "" {
			return core.ErrInvalidInput
		}
		return fmt.Errorf("%w: %s", core.ErrInvalidInput, e.Reason)
	default:
		return nil
	}
}
