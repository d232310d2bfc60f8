// Package requester wraps the outbound HTTP client handed to destination
// actions. Destinations declare request extensions (base URL, auth headers,
// timeouts) once; every action request then goes out pre-configured.
package requester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Extension applies one destination-level default to the underlying client.
type Extension func(c *resty.Client)

// BaseURL sets the base URL relative request paths resolve against.
func BaseURL(u string) Extension {
	return func(c *resty.Client) { c.SetBaseURL(u) }
}

// Header sets a default header on every request.
func Header(key, value string) Extension {
	return func(c *resty.Client) { c.SetHeader(key, value) }
}

// BearerAuth sets an Authorization bearer token on every request.
func BearerAuth(token string) Extension {
	return func(c *resty.Client) { c.SetAuthToken(token) }
}

// Timeout bounds each outbound request.
func Timeout(d time.Duration) Extension {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// Client is the HTTP client handed to action request functions.
type Client struct {
	r *resty.Client
}

// New composes extensions into a configured client. Later extensions win on
// conflict, mirroring how subscription settings override destination
// settings.
func New(extensions ...Extension) *Client {
	r := resty.New()
	r.SetHeader("Content-Type", "application/json")
	for _, ext := range extensions {
		ext(r)
	}
	return &Client{r: r}
}

// Extend returns a new client with additional extensions layered on top.
func (c *Client) Extend(extensions ...Extension) *Client {
	r := c.r.Clone()
	for _, ext := range extensions {
		ext(r)
	}
	return &Client{r: r}
}

// RequestOptions carries the per-request knobs an action can set.
type RequestOptions struct {
	// JSON is marshaled as the request body.
	JSON any

	// SearchParams become URL query parameters.
	SearchParams map[string]string

	// Headers are request-scoped header overrides.
	Headers map[string]string
}

// Response is the settled result of one outbound request.
type Response struct {
	StatusCode int         `json:"status_code"`
	Body       []byte      `json:"-"`
	Headers    http.Header `json:"-"`
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// RequestError reports a non-2xx partner response. It is scoped to the branch
// that issued the request and never aborts sibling branches.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: partner responded %d", e.Method, e.URL, e.StatusCode)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, opts)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPost, url, opts)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPut, url, opts)
}

func (c *Client) do(ctx context.Context, method, url string, opts *RequestOptions) (*Response, error) {
	req := c.r.R().SetContext(ctx)
	if opts != nil {
		if opts.JSON != nil {
			req.SetBody(opts.JSON)
		}
		if len(opts.SearchParams) > 0 {
			req.SetQueryParams(opts.SearchParams)
		}
		if len(opts.Headers) > 0 {
			req.SetHeaders(opts.Headers)
		}
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Headers:    resp.Header(),
	}
	if resp.IsError() {
		return out, &RequestError{
			Method:     method,
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Body:       resp.Body(),
		}
	}
	return out, nil
}
