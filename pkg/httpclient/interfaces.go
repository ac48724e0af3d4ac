package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
	Header(key string) []string
}

// RequestOptions carries optional per-request settings.
type RequestOptions struct {
	Headers       map[string]string
	BasicAuthUser string
	BasicAuthPass string
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	PostForm(ctx context.Context, url, body string, opts RequestOptions) (Response, error)
}
