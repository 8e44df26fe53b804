package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultBaseURL is the production REST endpoint.
const DefaultBaseURL = "https://code-commando.com/api/v1"

const maxBodySize = 4 << 20

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. WithTimeout is
// ignored when a client is supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Default: 15 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenSource supplies the access token for authenticated requests.
// The source is consulted on every request; an empty token sends no
// Authorization header.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithAuthScheme prefixes the token in the Authorization header, e.g.
// "Bearer". The default sends the raw token.
func WithAuthScheme(scheme string) Option {
	return func(c *Client) { c.scheme = strings.TrimSpace(scheme) }
}

// WithUnauthorizedHandler is called when a request that carried a token is
// rejected with 401. It runs before the error is returned.
func WithUnauthorizedHandler(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSanitizer sets the policy applied to product descriptions.
// Default: bluemonday.UGCPolicy.
func WithSanitizer(p *bluemonday.Policy) Option {
	return func(c *Client) {
		if p != nil {
			c.policy = p
		}
	}
}

// Client talks to the storefront REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	token          func() string
	scheme         string
	onUnauthorized func(context.Context)
	logger         *slog.Logger
	policy         *bluemonday.Policy
	validate       *validator.Validate
}

// New creates a Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  15 * time.Second,
		token:    func() string { return "" },
		logger:   slog.New(slog.DiscardHandler),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.policy == nil {
		c.policy = bluemonday.UGCPolicy()
	}

	return c
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

type envelope struct {
	Success      *bool           `json:"success"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	ErrorSources []fieldIssue    `json:"errorSources"`
	Errors       json.RawMessage `json:"errors"`
}

type fieldIssue struct {
	Path    string `json:"path"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type request struct {
	method string
	path   string
	body   any
	auth   bool // attach the access token when one is available
}

// do sends req and decodes the envelope's data into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return &Error{Kind: ErrValidation, Message: "request body is not encodable", Err: err}
		}
		body = bytes.NewReader(data)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return &Error{Kind: ErrNetwork, Err: err}
	}
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}

	carried := false
	if req.auth {
		if tok := c.token(); tok != "" {
			hr.Header.Set("Authorization", c.authorization(tok))
			carried = true
		}
	}

	start := time.Now()
	resp, err := c.http.Do(hr)
	if err != nil {
		c.logger.WarnContext(ctx, "api request failed",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Any("error", err),
		)
		return &Error{Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Kind: ErrNetwork, Status: resp.StatusCode, Err: err}
	}

	c.logger.DebugContext(ctx, "api request",
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		apiErr := statusError(resp.StatusCode, env)
		if resp.StatusCode == http.StatusUnauthorized && carried && c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return apiErr
	}

	if decodeErr != nil {
		return &Error{Kind: ErrServer, Status: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if env.Success != nil && !*env.Success {
		return &Error{Kind: ErrServer, Status: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: ErrServer, Status: resp.StatusCode, Message: "unexpected response data", Err: err}
	}
	return nil
}

func (c *Client) authorization(token string) string {
	if c.scheme == "" {
		return token
	}
	return c.scheme + " " + token
}

func statusError(status int, env envelope) *Error {
	e := &Error{Status: status, Message: env.Message}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind = ErrUnauthorized
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		e.Kind = ErrValidation
		e.Fields = fieldErrors(env)
	default:
		e.Kind = ErrServer
	}
	return e
}

// fieldErrors collects per-field messages from either an errorSources list
// or an errors payload (list of issues or field→message object).
func fieldErrors(env envelope) map[string]string {
	fields := make(map[string]string)
	add := func(issues []fieldIssue) {
		for _, is := range issues {
			name := is.Path
			if name == "" {
				name = is.Field
			}
			if name != "" && is.Message != "" {
				fields[name] = is.Message
			}
		}
	}

	add(env.ErrorSources)

	if len(env.Errors) > 0 {
		var list []fieldIssue
		var obj map[string]string
		switch {
		case json.Unmarshal(env.Errors, &list) == nil:
			add(list)
		case json.Unmarshal(env.Errors, &obj) == nil:
			for k, v := range obj {
				fields[k] = v
			}
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
