// Package apiclient is the portal's only way to the backend REST API. Every
// call carries the stored access token; a 401 triggers one refresh and one
// resend, and a failed refresh signs the session out.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httpclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/logger"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/middleware"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/tracing"
)

// Backend auth endpoints, relative to the API base URL.
const (
	ProfilePath        = "/auth/profile/"
	LoginPath          = "/auth/login/"
	RegisterPath       = "/auth/register/"
	LogoutPath         = "/auth/logout/"
	RefreshPath        = "/auth/token/refresh/"
	ChangePasswordPath = "/auth/change-password/"
)

const tracerName = "github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"

const maxResponseBody = 10 << 20 // 10 MB

// Credentials is the part of the credential store the pipeline uses.
type Credentials interface {
	Get(ctx context.Context, kind credential.Kind) (string, bool, error)
	SetAccess(ctx context.Context, access string) error
}

// SessionClearer signs the session out after a failed refresh.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// Navigator exposes the user's location and moves them.
type Navigator interface {
	CurrentPath(ctx context.Context) string
	Navigate(ctx context.Context, path string)
}

// Config holds pipeline configuration.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api.
	BaseURL string

	// SingleFlightRefresh makes concurrent 401s share one refresh call.
	SingleFlightRefresh bool
}

// Request describes one backend call. Body is JSON-encoded unless it is
// already a json.RawMessage or []byte.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a successful (2xx) backend response with its body read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Raw returns the body as a json.RawMessage, or JSON null when empty.
func (r *Response) Raw() json.RawMessage {
	if len(r.Body) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Body)
}

// Client implements the authenticated request pipeline.
type Client struct {
	http    httpclient.Doer
	baseURL string
	creds   Credentials
	session SessionClearer
	nav     Navigator
	logger  *slog.Logger
	tracer  trace.Tracer
	flight  *singleflight.Group
}

// New creates a pipeline that sends requests through doer.
func New(doer httpclient.Doer, cfg Config, creds Credentials, session SessionClearer, nav Navigator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:    doer,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		creds:   creds,
		session: session,
		nav:     nav,
		logger:  logger,
		tracer:  tracing.Tracer(tracerName),
	}
	if cfg.SingleFlightRefresh {
		c.flight = &singleflight.Group{}
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type pipelineState int

const (
	stateSend pipelineState = iota
	stateRefresh
)

// attempt is the per-call retry record.
type attempt struct {
	retried bool
}

// Do runs req through the pipeline. Non-2xx responses come back as
// *apperrors.HTTPError. A failed refresh returns *apperrors.RefreshError
// wrapping both the refresh failure and the original 401.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "backend "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	var att attempt
	var rejected error
	state := stateSend
	for {
		switch state {
		case stateSend:
			resp, err := c.send(ctx, req, body)
			if shouldRefresh(req.Path, err, att) {
				rejected = err
				state = stateRefresh
				continue
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.SetAttributes(attribute.Bool("auth.retried", att.retried))
			return resp, err

		case stateRefresh:
			att.retried = true
			if refreshErr := c.refresh(ctx); refreshErr != nil {
				c.forceLogout(ctx, refreshErr)
				err := &apperrors.RefreshError{Cause: refreshErr, Original: rejected}
				span.RecordError(err)
				span.SetStatus(codes.Error, "token refresh failed")
				return nil, err
			}
			state = stateSend
		}
	}
}

// DoJSON runs req and decodes a successful response into out. A nil out
// discards the body.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Raw runs req and returns the body untouched.
func (c *Client) Raw(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Raw(), nil
}

// shouldRefresh reports whether a send result is a 401 the pipeline may
// recover from: not yet retried and not the refresh endpoint itself.
func shouldRefresh(path string, err error, att attempt) bool {
	if err == nil || att.retried || isRefreshPath(path) {
		return false
	}
	var httpErr *apperrors.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized
}

func isRefreshPath(path string) bool {
	return strings.Contains(path, RefreshPath)
}

// send performs one HTTP exchange with the current access token attached.
func (c *Client) send(ctx context.Context, req Request, body []byte) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req.Method, req.Path, req.Query, body)
	if err != nil {
		return nil, err
	}

	token, ok, err := c.creds.Get(ctx, credential.Access)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, httpReq)
	backendDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		status := 0
		var httpErr *apperrors.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Status
		}
		backendRequests.WithLabelValues(req.Method, statusClass(status)).Inc()
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	backendRequests.WithLabelValues(req.Method, statusClass(resp.StatusCode)).Inc()

	if !httpclient.IsSuccess(resp.StatusCode) {
		httpErr := httpclient.ParseResponseError(resp)
		logger.WithContext(ctx, c.logger).DebugContext(ctx, "backend rejected request",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, httpErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s response: %v", apperrors.ErrNetwork, req.Method, req.Path, err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// newRequest builds a backend request with JSON headers, the correlation ID
// and the trace context. It never attaches credentials.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		httpReq.Header.Set(middleware.CorrelationHeader, id)
	}
	tracing.InjectHTTP(ctx, httpReq.Header)
	return httpReq, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}
