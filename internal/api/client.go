package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20

	// RequestIDHeader carries a fresh correlation id on every request.
	RequestIDHeader = "X-Request-ID"
)

// Client talks to the shopping-list API gateway. It holds no session state;
// callers pass the bearer token on each authenticated call.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     pslog.Base
	observer   Observer
	newID      func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for exchange debug lines.
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRequestIDs overrides the correlation id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New builds a Client for baseURL, which must be an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{baseURL: u}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = pslog.New(os.Stderr)
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c, nil
}

// ParseBaseURL validates and normalizes a service base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// WithObserver returns a shallow copy of c that reports exchanges to obs.
// The copy shares the underlying HTTP client.
func (c *Client) WithObserver(obs Observer) *Client {
	cp := *c
	cp.observer = obs
	return &cp
}

// Health calls GET /health and returns the raw body.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{method: http.MethodGet, route: "/health", path: "/health"}, &out)
	return out, err
}

// Registry calls GET /registry and returns the raw body.
func (c *Client) Registry(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{method: http.MethodGet, route: "/registry", path: "/registry"}, &out)
	return out, err
}

// Register creates a user account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthPayload, error) {
	return data[AuthPayload](ctx, c, call{method: http.MethodPost, route: "/api/auth/register", path: "/api/auth/register", body: req})
}

// Login authenticates with an email/username and password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthPayload, error) {
	return data[AuthPayload](ctx, c, call{method: http.MethodPost, route: "/api/auth/login", path: "/api/auth/login", body: req})
}

// Categories lists catalogue categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return data[[]Category](ctx, c, call{method: http.MethodGet, route: "/api/items/categories", path: "/api/items/categories"})
}

// Items lists catalogue items.
func (c *Client) Items(ctx context.Context, q ItemQuery) ([]Item, error) {
	vals := url.Values{}
	if q.Category != "" {
		vals.Set("category", q.Category)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	return data[[]Item](ctx, c, call{method: http.MethodGet, route: "/api/items", path: "/api/items", query: vals})
}

// SearchItems runs a catalogue search.
func (c *Client) SearchItems(ctx context.Context, term string) ([]Item, error) {
	vals := url.Values{"q": []string{term}}
	return data[[]Item](ctx, c, call{method: http.MethodGet, route: "/api/items/search", path: "/api/items/search", query: vals})
}

// CreateList creates a shopping list owned by the token's user.
func (c *Client) CreateList(ctx context.Context, token string, list NewList) (List, error) {
	return data[List](ctx, c, call{method: http.MethodPost, route: "/api/lists", path: "/api/lists", token: token, body: list})
}

// AddListItem adds an item to a list and returns the raw payload.
func (c *Client) AddListItem(ctx context.Context, token, listID string, item AddItem) (json.RawMessage, error) {
	return data[json.RawMessage](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/lists/{id}/items",
		path:   "/api/lists/" + url.PathEscape(listID) + "/items",
		token:  token,
		body:   item,
	})
}

// GetList fetches a list with its items and summary.
func (c *Client) GetList(ctx context.Context, token, listID string) (List, error) {
	return data[List](ctx, c, call{
		method: http.MethodGet,
		route:  "/api/lists/{id}",
		path:   "/api/lists/" + url.PathEscape(listID),
		token:  token,
	})
}

// Dashboard fetches the user dashboard.
func (c *Client) Dashboard(ctx context.Context, token string) (Dashboard, error) {
	return data[Dashboard](ctx, c, call{method: http.MethodGet, route: "/api/dashboard", path: "/api/dashboard", token: token})
}

// Search runs the authenticated global search across items and lists.
func (c *Client) Search(ctx context.Context, token, term string) (SearchResults, error) {
	vals := url.Values{"q": []string{term}}
	return data[SearchResults](ctx, c, call{method: http.MethodGet, route: "/api/search", path: "/api/search", token: token, query: vals})
}

type call struct {
	method string
	route  string
	path   string
	query  url.Values
	token  string
	body   any
}

func data[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var env envelope[T]
	if err := c.do(ctx, cl, &env); err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	req, err := c.buildRequest(ctx, cl)
	if err != nil {
		return err
	}
	ex := Exchange{
		Method:         cl.method,
		Route:          cl.route,
		Path:           cl.path,
		URL:            req.URL.String(),
		RequestID:      req.Header.Get(RequestIDHeader),
		RequestHeaders: headerMap(req.Header),
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctxTimeout))
	if err != nil {
		ex.Duration = time.Since(start)
		terr := &TransportError{Method: cl.method, Path: cl.path, Err: err}
		ex.ErrorText = terr.Error()
		c.record(ctx, ex)
		return terr
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	ex.Duration = time.Since(start)
	ex.Status = resp.StatusCode
	ex.ResponseHeaders = headerMap(resp.Header)
	ex.Body = body
	if err != nil {
		terr := &TransportError{Method: cl.method, Path: cl.path, Err: fmt.Errorf("read body: %w", err)}
		ex.ErrorText = terr.Error()
		c.record(ctx, ex)
		return terr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{
			Method:  cl.method,
			Path:    cl.path,
			Status:  resp.StatusCode,
			Message: serverMessage(body),
			Body:    body,
		}
		ex.ErrorText = serr.Error()
		c.record(ctx, ex)
		return serr
	}

	// An empty 2xx body (e.g. 204) decodes as the zero value.
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], body...)
		} else if err := json.Unmarshal(body, out); err != nil {
			derr := &DecodeError{Method: cl.method, Path: cl.path, Err: err}
			ex.ErrorText = derr.Error()
			c.record(ctx, ex)
			return derr
		}
	}
	c.record(ctx, ex)
	return nil
}

func (c *Client) buildRequest(ctx context.Context, cl call) (*http.Request, error) {
	u := c.baseURL.JoinPath(cl.path)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var bodyReader io.Reader = http.NoBody
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", cl.method, cl.path, err)
		}
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	req.Header.Set(RequestIDHeader, c.newID())
	return req, nil
}

func (c *Client) record(ctx context.Context, ex Exchange) {
	if ex.ErrorText != "" && ex.Status == 0 {
		c.logger.Debug("http", "method", ex.Method, "path", ex.Path, "request_id", ex.RequestID, "dur", ex.Duration.String(), "err", ex.ErrorText)
	} else {
		c.logger.Debug("http", "method", ex.Method, "path", ex.Path, "request_id", ex.RequestID, "status", ex.Status, "dur", ex.Duration.String())
	}
	if c.observer != nil {
		c.observer(ctx, ex)
	}
}

// IsStatus reports whether err is a StatusError with the given status code.
func IsStatus(err error, status int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Status == status
}
