// Package apiclient talks to the appointment backend and the auth provider.
//
// Every failure is mapped onto the sentinel errors of package appointment so
// callers can branch with errors.Is without looking at HTTP status codes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
)

const maxErrorBody = 64 << 10

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	AppointmentsURL string
	AuthURL         string
	Timeout         time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	appointmentsURL string
	authURL         string
	http            *http.Client
	maxRetries      int
	retryBase       time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		appointmentsURL: strings.TrimRight(opts.AppointmentsURL, "/"),
		authURL:         strings.TrimRight(opts.AuthURL, "/"),
		http:            hc,
		maxRetries:      opts.MaxRetries,
		retryBase:       opts.RetryBase,
		sleep:           sleepContext,
	}
}

// FromConfig builds a Client from the client section of the configuration.
func FromConfig(cfg config.ClientConfig) *Client {
	return New(Options{
		AppointmentsURL: cfg.AppointmentsURL,
		AuthURL:         cfg.AuthURL,
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
		RetryBase:       cfg.RetryBase,
	})
}

// APIError is a non-2xx answer. It unwraps to the matching sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.kind, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error { return e.kind }

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

type request struct {
	method         string
	url            string
	token          string
	body           []byte
	idempotencyKey string
	out            any
	// emptyOK accepts a 2xx answer without a body.
	emptyOK bool
}

func (c *Client) do(ctx context.Context, req request) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.once(ctx, req)
		if !c.shouldRetry(ctx, err, attempt) {
			return err
		}
		delay := c.retryBase << attempt
		logger.WarnContext(ctx, "Retrying backend call",
			"method", req.method,
			"url", req.url,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

// shouldRetry allows another attempt for transport failures and 5xx answers.
// A 429 maps to ErrNetwork for callers but is not hammered again.
func (c *Client) shouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || attempt >= c.maxRetries || ctx.Err() != nil {
		return false
	}
	if !appointment.Retryable(err) {
		return false
	}
	if apiErr, ok := IsAPIError(err); ok && apiErr.Status < 500 {
		return false
	}
	return true
}

func (c *Client) once(ctx context.Context, req request) error {
	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.idempotencyKey)
	}
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	logger.DebugContext(ctx, "Calling backend", "method", req.method, "url", req.url)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", req.method, req.url, appointment.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w: %v", req.url, appointment.ErrNetwork, err)
	}
	if req.out == nil {
		return nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		if req.emptyOK {
			return nil
		}
		return fmt.Errorf("%s %s: empty body: %w", req.method, req.url, appointment.ErrMalformedResponse)
	}
	if err := json.Unmarshal(payload, req.out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", req.method, req.url, appointment.ErrMalformedResponse, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, kind: kindFor(resp.StatusCode)}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func kindFor(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return appointment.ErrUnauthenticated
	case status == http.StatusForbidden:
		return appointment.ErrPermissionDenied
	case status == http.StatusConflict:
		return appointment.ErrConflict
	case status == http.StatusNotFound:
		return appointment.ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return appointment.ErrValidation
	case status == http.StatusTooManyRequests, status >= 500:
		return appointment.ErrNetwork
	default:
		return appointment.ErrMalformedResponse
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func join(base string, path string, q url.Values) string {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// IsAPIError reports the HTTP status of err when it came from the backend.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
