// Package subscriber builds and sends PubSubHubbub subscription requests to a hub.
package subscriber

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Mode is the hub.mode value of a subscription change.
type Mode string

const (
	ModeSubscribe   Mode = "subscribe"
	ModeUnsubscribe Mode = "unsubscribe"
)

// Accepted hub.verify values.
const (
	VerifyAsync = "async"
	VerifySync  = "sync"
)

var httpURLPattern = regexp.MustCompile(`(?i)^https?://`)

// Subscriber holds the configuration used to subscribe a callback to topics on a hub.
//
// Subscribe and Unsubscribe only read the configuration, so they may run
// concurrently. Setters must not race with in-flight calls.
type Subscriber struct {
	hubURL       string
	callbackURL  string
	credentials  string
	secret       string
	verify       string
	verifyToken  string
	leaseSeconds int

	transport Transport
	lookup    feedLookup
	log       Logger
}

// Option customizes a Subscriber at construction.
type Option func(*Subscriber)

// WithCredentials sets user:pass credentials sent as basic auth to the hub.
func WithCredentials(credentials string) Option {
	return func(s *Subscriber) { s.credentials = credentials }
}

// WithSecret sets hub.secret, used by the hub to sign content distribution.
func WithSecret(secret string) Option {
	return func(s *Subscriber) { s.secret = secret }
}

// WithVerify sets hub.verify. An empty value omits the field.
func WithVerify(verify string) Option {
	return func(s *Subscriber) { s.verify = verify }
}

// WithVerifyToken sets hub.verify_token.
func WithVerifyToken(token string) Option {
	return func(s *Subscriber) { s.verifyToken = token }
}

// WithLeaseSeconds sets hub.lease_seconds. Non-positive values omit the field.
func WithLeaseSeconds(seconds int) Option {
	return func(s *Subscriber) { s.leaseSeconds = seconds }
}

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transport) Option {
	return func(s *Subscriber) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log Logger) Option {
	return func(s *Subscriber) { s.log = ensureLogger(log) }
}

// New validates hubURL and callbackURL and returns a configured Subscriber.
func New(hubURL, callbackURL string, opts ...Option) (*Subscriber, error) {
	if hubURL == "" {
		return nil, fmt.Errorf("%w: please specify a hub url", ErrInvalidConfiguration)
	}
	if !httpURLPattern.MatchString(hubURL) {
		return nil, fmt.Errorf("%w: the specified hub url does not appear to be valid: %s", ErrInvalidConfiguration, hubURL)
	}
	if callbackURL == "" {
		return nil, fmt.Errorf("%w: please specify a callback", ErrInvalidConfiguration)
	}

	s := &Subscriber{
		hubURL:      hubURL,
		callbackURL: callbackURL,
		verify:      VerifyAsync,
		log:         noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = NewHTTPTransport(nil)
	}
	if s.lookup.endpoint == "" {
		s.lookup.endpoint = DefaultFeedLookupURL
	}
	if s.lookup.getter == nil {
		if g, ok := s.transport.(getter); ok {
			s.lookup.getter = g
		} else {
			s.lookup.getter = NewHTTPTransport(nil)
		}
	}
	return s, nil
}

// Subscribe asks the hub to subscribe the callback to topicURL.
func (s *Subscriber) Subscribe(ctx context.Context, topicURL string) (Result, error) {
	return s.changeSubscription(ctx, ModeSubscribe, topicURL, nil)
}

// Unsubscribe asks the hub to unsubscribe the callback from topicURL.
func (s *Subscriber) Unsubscribe(ctx context.Context, topicURL string) (Result, error) {
	return s.changeSubscription(ctx, ModeUnsubscribe, topicURL, nil)
}

// SubscribeWith is Subscribe using fn instead of the configured transport.
func (s *Subscriber) SubscribeWith(ctx context.Context, topicURL string, fn TransportFunc) (Result, error) {
	return s.changeSubscription(ctx, ModeSubscribe, topicURL, fn)
}

// UnsubscribeWith is Unsubscribe using fn instead of the configured transport.
func (s *Subscriber) UnsubscribeWith(ctx context.Context, topicURL string, fn TransportFunc) (Result, error) {
	return s.changeSubscription(ctx, ModeUnsubscribe, topicURL, fn)
}

// Change applies mode to topicURL. It is the entry point for callers that
// carry the mode as data, such as topic files.
func (s *Subscriber) Change(ctx context.Context, mode Mode, topicURL string) (Result, error) {
	switch mode {
	case ModeSubscribe, ModeUnsubscribe:
	default:
		return Result{}, fmt.Errorf("%w: unsupported mode %q", ErrInvalidArgument, mode)
	}
	return s.changeSubscription(ctx, mode, topicURL, nil)
}

// changeSubscription validates topicURL, encodes the request and hands it to
// the transport. The returned error only reports validation failures; transport
// failures are carried in the Result.
func (s *Subscriber) changeSubscription(ctx context.Context, mode Mode, topicURL string, fn TransportFunc) (Result, error) {
	if topicURL == "" {
		return Result{}, fmt.Errorf("%w: please specify a topic url", ErrInvalidArgument)
	}
	if !httpURLPattern.MatchString(topicURL) {
		return Result{}, fmt.Errorf("%w: the specified topic url does not appear to be valid: %s", ErrInvalidArgument, topicURL)
	}

	body := s.encodeRequest(mode, topicURL)
	s.log.DebugObj("hub request prepared", "hub_request", map[string]any{
		"hub_url": s.hubURL,
		"mode":    string(mode),
		"topic":   topicURL,
	})

	var res Result
	if fn != nil {
		res = fn(ctx, s.hubURL, body)
	} else {
		res = s.transport.Post(ctx, s.hubURL, body, s.credentials)
	}

	switch {
	case res.Err != nil:
		s.log.WarnObj("hub request failed", "hub_error", map[string]any{
			"hub_url": s.hubURL,
			"mode":    string(mode),
			"topic":   topicURL,
			"error":   res.Err.Error(),
		})
	case !res.Accepted():
		s.log.WarnObj("hub rejected request", "hub_error", map[string]any{
			"hub_url": s.hubURL,
			"mode":    string(mode),
			"topic":   topicURL,
			"status":  fmt.Sprintf("%d %s", res.StatusCode, statusText(res.StatusCode)),
		})
	}
	return res, nil
}

// encodeRequest builds the form body. Field order is fixed; hub.mode and
// hub.verify are written raw.
func (s *Subscriber) encodeRequest(mode Mode, topicURL string) string {
	var b strings.Builder
	b.WriteString("hub.mode=")
	b.WriteString(string(mode))
	b.WriteString("&hub.callback=")
	b.WriteString(url.QueryEscape(s.callbackURL))
	b.WriteString("&hub.topic=")
	b.WriteString(url.QueryEscape(topicURL))

	if s.verify != "" {
		b.WriteString("&hub.verify=")
		b.WriteString(s.verify)
	}
	if s.verifyToken != "" {
		b.WriteString("&hub.verify_token=")
		b.WriteString(url.QueryEscape(s.verifyToken))
	}
	if s.leaseSeconds > 0 {
		b.WriteString("&hub.lease_seconds=")
		b.WriteString(url.QueryEscape(strconv.Itoa(s.leaseSeconds)))
	}
	if s.secret != "" {
		b.WriteString("&hub.secret=")
		b.WriteString(url.QueryEscape(s.secret))
	}
	return b.String()
}

// SetHubURL replaces the hub endpoint. On error the previous value is kept.
func (s *Subscriber) SetHubURL(hubURL string) (*Subscriber, error) {
	if hubURL == "" || !httpURLPattern.MatchString(hubURL) {
		return s, fmt.Errorf("%w: %w: the specified hub url does not appear to be valid: %s", ErrInvalidArgument, ErrInvalidConfiguration, hubURL)
	}
	s.hubURL = hubURL
	return s, nil
}

// SetCallbackURL replaces the callback URL. On error the previous value is kept.
func (s *Subscriber) SetCallbackURL(callbackURL string) (*Subscriber, error) {
	if callbackURL == "" {
		return s, fmt.Errorf("%w: %w: please specify a callback", ErrInvalidArgument, ErrInvalidConfiguration)
	}
	s.callbackURL = callbackURL
	return s, nil
}

// SetCredentials sets the "user:password" pair sent as basic auth to the hub.
func (s *Subscriber) SetCredentials(credentials string) *Subscriber {
	s.credentials = credentials
	return s
}

// SetVerify sets hub.verify; an empty value omits the parameter.
func (s *Subscriber) SetVerify(verify string) *Subscriber {
	s.verify = verify
	return s
}

// SetVerifyToken sets hub.verify_token; an empty value omits the parameter.
func (s *Subscriber) SetVerifyToken(token string) *Subscriber {
	s.verifyToken = token
	return s
}

// SetLeaseSeconds sets hub.lease_seconds; zero or less omits the parameter.
func (s *Subscriber) SetLeaseSeconds(seconds int) *Subscriber {
	s.leaseSeconds = seconds
	return s
}

// SetSecret sets hub.secret. The last call wins.
func (s *Subscriber) SetSecret(secret string) *Subscriber {
	s.secret = secret
	return s
}

// HubURL returns the hub endpoint requests are posted to.
func (s *Subscriber) HubURL() string      { return s.hubURL }
// CallbackURL returns the callback sent as hub.callback.
func (s *Subscriber) CallbackURL() string { return s.callbackURL }
// Verify returns the configured hub.verify value.
func (s *Subscriber) Verify() string      { return s.verify }
// LeaseSeconds returns the requested lease in seconds.
func (s *Subscriber) LeaseSeconds() int   { return s.leaseSeconds }
// Secret returns the configured hub.secret value.
func (s *Subscriber) Secret() string      { return s.secret }
