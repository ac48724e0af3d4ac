package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event describes the outcome of one subscription change sent to a hub.
type Event struct {
	ID          string    `json:"id"`
	TopicID     string    `json:"topic_id"`
	TopicURL    string    `json:"topic_url"`
	HubURL      string    `json:"hub_url"`
	CallbackURL string    `json:"callback_url"`
	Mode        string    `json:"mode"`
	Accepted    bool      `json:"accepted"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Outcome is the hub response summary carried by an Event.
type Outcome struct {
	Accepted   bool
	StatusCode int
	Err        error
}

// NewEvent constructs an Event for a topic change and its outcome.
func NewEvent(topicID, topicURL, hubURL, callbackURL, mode string, out Outcome) Event {
	evt := Event{
		ID:          uuid.NewString(),
		TopicID:     topicID,
		TopicURL:    topicURL,
		HubURL:      hubURL,
		CallbackURL: callbackURL,
		Mode:        mode,
		Accepted:    out.Accepted,
		StatusCode:  out.StatusCode,
		RequestedAt: time.Now().UTC(),
	}
	if out.Err != nil {
		evt.Error = out.Err.Error()
	}
	return evt
}

// payload is the JSON message body shared by every sink.
func (e Event) payload() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// groupKey orders events of the same topic on sinks that support it.
func (e Event) groupKey() string {
	if e.TopicID != "" {
		return e.TopicID
	}
	return e.TopicURL
}

// attributes returns the message attributes shared by queue-style sinks.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"topic_id": e.TopicID,
		"mode":     e.Mode,
	}
}
