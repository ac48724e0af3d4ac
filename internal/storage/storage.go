// Package storage caches feed-lookup resolutions. It never records subscription state.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Store remembers which feed URL a site resolved to.
type Store interface {
	Close() error
	LookupFeed(siteURL string) (string, bool, error)
	StoreFeed(siteURL, feedURL string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	FeedTTL         time.Duration
	CleanupInterval time.Duration
}

const (
	defaultFeedTTL         = 24 * time.Hour
	defaultCleanupInterval = 6 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.FeedTTL <= 0 {
		opts.FeedTTL = defaultFeedTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                            { return nil }
func (noopStore) LookupFeed(string) (string, bool, error) { return "", false, nil }
func (noopStore) StoreFeed(string, string) error          { return nil }
