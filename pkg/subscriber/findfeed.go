package subscriber

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
)

// DefaultFeedLookupURL is the feed-lookup API queried by FindFeed.
const DefaultFeedLookupURL = "http://ajax.googleapis.com/ajax/services/feed/lookup"

const feedURLPath = "responseData.url"

// FeedCache remembers site to feed resolutions between lookups.
type FeedCache interface {
	LookupFeed(siteURL string) (string, bool, error)
	StoreFeed(siteURL, feedURL string) error
}

type getter interface {
	Get(ctx context.Context, url string) Result
}

type feedLookup struct {
	endpoint string
	key      string
	cache    FeedCache
	getter   getter
}

// WithFeedLookup configures the feed-lookup endpoint and API key.
func WithFeedLookup(endpoint, key string) Option {
	return func(s *Subscriber) {
		s.lookup.endpoint = endpoint
		s.lookup.key = key
	}
}

// WithFeedCache sets a cache consulted by FindFeed.
func WithFeedCache(cache FeedCache) Option {
	return func(s *Subscriber) { s.lookup.cache = cache }
}

// FindFeed resolves the feed URL of siteURL through the feed-lookup API.
func (s *Subscriber) FindFeed(ctx context.Context, siteURL string) (string, error) {
	return s.FindFeedWith(ctx, siteURL, nil)
}

// FindFeedWith is FindFeed using fn for the GET request.
func (s *Subscriber) FindFeedWith(ctx context.Context, siteURL string, fn GetFunc) (string, error) {
	if s.lookup.cache != nil {
		feed, ok, err := s.lookup.cache.LookupFeed(siteURL)
		if err != nil {
			s.log.WarnObj("feed cache lookup failed", "feed_cache_error", map[string]any{
				"site_url": siteURL,
				"error":    err.Error(),
			})
		} else if ok {
			return feed, nil
		}
	}

	lookupURL, err := s.lookupURL(siteURL)
	if err != nil {
		return "", err
	}
	var res Result
	if fn != nil {
		res = fn(ctx, lookupURL)
	} else {
		res = s.lookup.getter.Get(ctx, lookupURL)
	}
	if res.Err != nil {
		return "", fmt.Errorf("feed lookup: %w", res.Err)
	}
	if !res.Accepted() {
		return "", fmt.Errorf("feed lookup returned status %d", res.StatusCode)
	}

	feed, err := parseFeedLookup(res.Body)
	if err != nil {
		return "", err
	}

	if s.lookup.cache != nil {
		if err := s.lookup.cache.StoreFeed(siteURL, feed); err != nil {
			s.log.WarnObj("feed cache store failed", "feed_cache_error", map[string]any{
				"site_url": siteURL,
				"error":    err.Error(),
			})
		}
	}
	return feed, nil
}

// lookupURL adds key, v and q to the endpoint, keeping any query it already has.
func (s *Subscriber) lookupURL(siteURL string) (string, error) {
	u, err := url.Parse(s.lookup.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: feed lookup endpoint: %w", ErrInvalidConfiguration, err)
	}
	q := u.Query()
	q.Set("key", s.lookup.key)
	q.Set("v", "1.0")
	q.Set("q", siteURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseFeedLookup(body string) (string, error) {
	if !gjson.Valid(body) {
		return "", fmt.Errorf("feed lookup: malformed json response")
	}
	res := gjson.Get(body, feedURLPath)
	if res.Type != gjson.String || res.String() == "" {
		return "", fmt.Errorf("%w: %s missing from response", ErrFeedNotFound, feedURLPath)
	}
	return res.String(), nil
}
