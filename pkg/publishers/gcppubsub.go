package publishers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type gcpPubSubPublisher struct {
	id      string
	ordered bool
	client  *pubsub.Client
	topic   *pubsub.Topic
	log     Logger
}

// newGCPPubSubPublisher binds the configured topic. PUBSUB_EMULATOR_HOST is
// honoured by the client library.
func newGCPPubSubPublisher(ctx context.Context, cfg Config, log Logger) (Publisher, error) {
	c := cfg.GCPPubSub

	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	client, err := pubsub.NewClient(ctx, c.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client for %s: %w", c.ProjectID, err)
	}
	topic := client.Topic(c.Topic)
	topic.EnableMessageOrdering = c.Ordered

	return &gcpPubSubPublisher{
		id:      cfg.ID,
		ordered: c.Ordered,
		client:  client,
		topic:   topic,
		log:     orDiscard(log),
	}, nil
}

func (g *gcpPubSubPublisher) ID() string   { return g.id }
func (g *gcpPubSubPublisher) Type() string { return TypeGCPPubSub }

// Publish blocks until the server acknowledges evt.
func (g *gcpPubSubPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := evt.payload()
	if err != nil {
		return err
	}

	msg := &pubsub.Message{Data: data, Attributes: evt.attributes()}
	if g.ordered {
		msg.OrderingKey = evt.groupKey()
	}

	msgID, err := g.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if g.ordered {
			g.topic.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("pubsub publish to %s: %w", g.topic.ID(), err)
	}
	g.log.DebugObj("event published", "pubsub_delivery", map[string]any{
		"publisher_id": g.id,
		"event_id":     evt.ID,
		"message_id":   msgID,
	})
	return nil
}

// Close flushes pending messages and releases the client.
func (g *gcpPubSubPublisher) Close() error {
	g.topic.Stop()
	return g.client.Close()
}
