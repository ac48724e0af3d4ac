package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/hubbub/pkg/httpclient"
)

// Webhook headers set on every delivery.
const (
	headerEventID = "X-Hubbub-Event-Id"
	headerMode    = "X-Hubbub-Mode"
)

type httpPublisher struct {
	id     string
	cfg    HTTPConfig
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg Config, log Logger) (Publisher, error) {
	return &httpPublisher{
		id:     cfg.ID,
		cfg:    *cfg.HTTP,
		client: httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:    orDiscard(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

// Publish sends evt as JSON. Any non-2xx response is an error.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.payload()
	if err != nil {
		return err
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.cfg.Headers).
		SetHeader("Content-Type", "application/json").
		SetHeader(headerEventID, evt.ID).
		SetHeader(headerMode, evt.Mode).
		SetBody(body).
		Execute(h.cfg.Method, h.cfg.URL)
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.cfg.Method, h.cfg.URL, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s %s: status %d: %s", h.cfg.Method, h.cfg.URL, resp.StatusCode(), snippet(resp.Body()))
	}

	h.log.DebugObj("event delivered", "webhook_delivery", map[string]any{
		"publisher_id": h.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}

func snippet(body []byte) string {
	const limit = 512
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}
