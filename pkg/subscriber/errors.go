package subscriber

import "errors"

var (
	// ErrInvalidConfiguration reports a hub or callback URL that fails format checks.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidArgument reports a per-call argument (topic URL) that fails format checks.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFeedNotFound is returned when a feed lookup response carries no feed URL.
	ErrFeedNotFound = errors.New("feed not found")
)
