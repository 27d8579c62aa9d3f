// Package mautic is a thin Basic-Auth client for the Mautic contact API.
// It owns upstream timeout policy and reports failures as TransportError,
// HTTPStatusError or DecodeError so callers can decide what to absorb.
package mautic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ignite/mautic-dnc-proxy/internal/config"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httpretry"
)

const maxErrorBody = 200

// Client is the Mautic API client
type Client struct {
	baseURL      string
	username     string
	password     string
	timeout      time.Duration
	probeTimeout time.Duration
	httpClient   httpretry.HTTPDoer
}

// NewClient creates a new Mautic API client. Per-call deadlines come from
// cfg; the underlying http.Client has no global timeout of its own.
func NewClient(cfg config.MauticConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout()
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		timeout:      timeout,
		probeTimeout: probeTimeout,
		httpClient:   &http.Client{},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// BaseURL returns the configured Mautic base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// doRequest performs an authenticated request and returns the status and
// body of a 2xx response. Anything else is a typed error.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("mautic %s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("mautic %s: build request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, respBody, &HTTPStatusError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   truncate(string(respBody), maxErrorBody),
		}
	}
	return resp.StatusCode, respBody, nil
}

// SearchByEmail runs an equality-filtered contact search. The filter is a
// hint only: callers must re-verify every candidate's email.
func (c *Client) SearchByEmail(ctx context.Context, email string) ([]ContactCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("where[0][col]", "email")
	params.Set("where[0][expr]", "eq")
	params.Set("where[0][val]", email)
	params.Set("minimal", "true")

	_, body, err := c.doRequest(ctx, "search", http.MethodGet, "/api/contacts", params, nil)
	if err != nil {
		return nil, err
	}

	var response SearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &DecodeError{Op: "search", Err: err}
	}
	return response.Candidates, nil
}

// GetContact fetches one contact with its doNotContact entries.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, body, err := c.doRequest(ctx, "fetch", http.MethodGet, "/api/contacts/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var response contactResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &DecodeError{Op: "fetch", Err: err}
	}
	if response.Contact == nil {
		return nil, &DecodeError{Op: "fetch", Err: fmt.Errorf("response has no contact")}
	}

	rec := response.Contact
	contactID := rec.ID.String()
	if contactID == "" {
		contactID = id
	}
	return &Contact{ID: contactID, Email: rec.email(), DoNotContact: rec.DoNotContact}, nil
}

// AddEmailDNC adds the contact's email channel to Do Not Contact. Only 200
// and 201 are accepted; Mautic treats a repeated add as a no-op.
func (c *Client) AddEmailDNC(ctx context.Context, id string, req DNCRequest) (*DNCResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path := "/api/contacts/" + url.PathEscape(id) + "/dnc/email/add"
	status, body, err := c.doRequest(ctx, "dnc_add", http.MethodPost, path, nil, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, &HTTPStatusError{Op: "dnc_add", Status: status, Body: truncate(string(body), maxErrorBody)}
	}
	return &DNCResponse{Status: status, BodyErrors: bodyErrors(body)}, nil
}

// Ping issues the cheapest authenticated call (a one-row contact list) with
// the probe timeout. Only HTTP 200 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("limit", "1")
	status, _, err := c.doRequest(ctx, "probe", http.MethodGet, "/api/contacts", params, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &HTTPStatusError{Op: "probe", Status: status}
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
