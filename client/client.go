// Package client polls the verification API until a job settles.
package client

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

	"credify/models"
	"credify/retry"
)

// ErrPollTimeout is returned when a job is still pending after every
// attempt.
var ErrPollTimeout = errors.New("verification did not finish in time")

const (
	DefaultMaxAttempts = 120
	DefaultInterval    = 5 * time.Second
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	BaseURL     string
	Token       string
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	Sleep       retry.SleepFunc
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
	}
}

// WaitForVerification polls the analyze endpoint for contentID until the
// job is terminal.
func (c *Client) WaitForVerification(ctx context.Context, contentID string) (models.VerificationJob, error) {
	return poll(ctx, c, "/api/content/analyze/"+url.PathEscape(contentID), func(j models.VerificationJob) bool {
		return j.Status.Terminal()
	})
}

// WaitForForgery polls the forgery endpoint for contentID until the
// detection is terminal.
func (c *Client) WaitForForgery(ctx context.Context, contentID string) (models.ForgeryDetectionResult, error) {
	return poll(ctx, c, "/api/content/detect-forgery/"+url.PathEscape(contentID), func(r models.ForgeryDetectionResult) bool {
		return r.Status.Terminal()
	})
}

func poll[T any](ctx context.Context, c *Client, path string, done func(T) bool) (T, error) {
	var zero T
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		var v T
		if err := c.get(ctx, path, &v); err != nil {
			return zero, err
		}
		if done(v) {
			return v, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, c.Interval); err != nil {
			return zero, err
		}
	}
	return zero, ErrPollTimeout
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
