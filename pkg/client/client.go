// Package client is a small Go client for the annai HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Sentinel errors mapped from API error codes.
var (
	// ErrInvalidQuestion is returned for an empty or malformed question.
	ErrInvalidQuestion = errors.New("annai: invalid question")
	// ErrRateLimited is returned when the server denied the request.
	ErrRateLimited = errors.New("annai: rate limited")
	// ErrBackendUnavailable is returned when the server's model provider is down.
	ErrBackendUnavailable = errors.New("annai: backend unavailable")
)

// Answer is the outcome of one question.
type Answer struct {
	Text     string
	Fallback bool
}

// Readiness is the per-component readiness report.
type Readiness struct {
	Ready  bool
	Status string
	Checks map[string]string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client is the annai API entry point.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ask submits a question and returns the answer or fallback guidance.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return Answer{}, fmt.Errorf("annai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("annai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("annai: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Answer{}, apiError(resp)
	}

	var ar struct {
		Answer   string `json:"answer"`
		Fallback bool   `json:"fallback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Answer{}, fmt.Errorf("annai: decode response: %w", err)
	}
	return Answer{Text: ar.Answer, Fallback: ar.Fallback}, nil
}

// Ready reports server readiness with per-component checks.
func (c *Client) Ready(ctx context.Context) (Readiness, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return Readiness{}, fmt.Errorf("annai: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Readiness{}, fmt.Errorf("annai: do request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Readiness{}, fmt.Errorf("annai: decode response: %w", err)
	}

	return Readiness{
		Ready:  resp.StatusCode == http.StatusOK,
		Status: body.Status,
		Checks: body.Checks,
	}, nil
}

func apiError(resp *http.Response) error {
	var er struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&er)

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = ErrInvalidQuestion
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case http.StatusBadGateway:
		sentinel = ErrBackendUnavailable
	default:
		return fmt.Errorf("annai: unexpected status %d: %s", resp.StatusCode, er.Message)
	}
	if er.Message != "" {
		return fmt.Errorf("%w: %s", sentinel, er.Message)
	}
	return sentinel
}
