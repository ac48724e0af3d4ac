package domain

// Change is one subscription change the runner applies against a hub.
type Change struct {
	TopicID  string
	TopicURL string
	HubURL   string
	Mode     string
	Discover bool
}

// Outcome records what happened to a Change.
type Outcome struct {
	Change     Change
	Accepted   bool
	StatusCode int
	Body       string
	Err        error
}
