package subscriber

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samvad-hq/hubbub/pkg/httpclient"
)

// Result is the outcome of a single outbound hub or lookup call.
type Result struct {
	StatusCode int
	Body       string
	Err        error
}

// OK reports the boolean-like outcome: a 2xx status with a non-empty body.
// An empty 2xx body (e.g. 204 No Content) counts as a failure.
func (r Result) OK() bool {
	return r.Accepted() && r.Body != ""
}

// Accepted reports whether the call completed with any 2xx status.
func (r Result) Accepted() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

// Transport performs the hub POST. credentials is empty or of the form user:pass.
type Transport interface {
	Post(ctx context.Context, endpoint, body, credentials string) Result
}

// TransportFunc substitutes for the configured Transport on a single call.
// It receives the hub endpoint and the encoded body; its Result is returned unchanged.
type TransportFunc func(ctx context.Context, endpoint, body string) Result

// GetFunc substitutes for the default GET used by feed lookups.
type GetFunc func(ctx context.Context, url string) Result

const defaultTimeout = 30 * time.Second

// HTTPTransport is the default Transport backed by an httpclient.Client.
type HTTPTransport struct {
	client httpclient.Client
}

// NewHTTPTransport wraps client, falling back to a resty client.
func NewHTTPTransport(client httpclient.Client) *HTTPTransport {
	if client == nil {
		client = httpclient.NewRestyClient(defaultTimeout)
	}
	return &HTTPTransport{client: client}
}

// Post sends the form body to endpoint, attaching basic auth when credentials are set.
func (t *HTTPTransport) Post(ctx context.Context, endpoint, body, credentials string) Result {
	opts := httpclient.RequestOptions{}
	if credentials != "" {
		user, pass, _ := strings.Cut(credentials, ":")
		opts.BasicAuthUser = user
		opts.BasicAuthPass = pass
	}

	resp, err := t.client.PostForm(ctx, endpoint, body, opts)
	if err != nil {
		return Result{Err: fmt.Errorf("post to hub: %w", err)}
	}
	return Result{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
}

// Get fetches url and returns the body with its status.
func (t *HTTPTransport) Get(ctx context.Context, url string) Result {
	resp, err := t.client.Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return Result{Err: fmt.Errorf("get %s: %w", url, err)}
	}
	return Result{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
}

func statusText(code int) string {
	if txt := http.StatusText(code); txt != "" {
		return txt
	}
	return "unknown"
}
