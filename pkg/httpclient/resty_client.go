package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// UserAgent is sent on every outbound request unless overridden.
	UserAgent = "PubSubHubbub-Subscriber-Go/1.0"

	contentTypeForm = "application/x-www-form-urlencoded"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// Option tunes the underlying resty client.
type Option func(*resty.Client)

// WithResponseBodyLimit makes requests fail with resty.ErrResponseBodyTooLarge
// once a response body exceeds n bytes. The limit applies while reading.
func WithResponseBodyLimit(n int) Option {
	return func(c *resty.Client) { c.SetResponseBodyLimit(n) }
}

// NewRestyClient creates a new RestyClient with the specified timeout.
func NewRestyClient(timeout time.Duration, opts ...Option) *RestyClient {
	c := newRestyBaseClient(timeout)
	for _, opt := range opts {
		opt(c)
	}
	return &RestyClient{client: c}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
// A zero timeout leaves the transport default in place.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	c.SetHeader("User-Agent", UserAgent)
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// PostForm posts an already encoded form body. The body is sent as-is so callers
// control field order.
func (r *RestyClient) PostForm(ctx context.Context, url, body string, opts RequestOptions) (Response, error) {
	req := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentTypeForm).
		SetBody(body)
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}
	if opts.BasicAuthUser != "" || opts.BasicAuthPass != "" {
		req.SetBasicAuth(opts.BasicAuthUser, opts.BasicAuthPass)
	}
	resp, err := req.Post(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte    { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Header(key string) []string {
	return r.resp.Header().Values(key)
}
