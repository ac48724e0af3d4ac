package publishers

import (
	"context"
	"fmt"
)

// Builder constructs the Publisher for a prepared Config.
type Builder func(ctx context.Context, cfg Config, log Logger) (Publisher, error)

var builders = map[string]Builder{
	TypeHTTP:      newHTTPPublisher,
	TypeSQS:       newSQSPublisher,
	TypeSNS:       newSNSPublisher,
	TypeGCPPubSub: newGCPPubSubPublisher,
}

// Build validates and constructs a publisher per config. On failure,
// publishers already built are closed.
func Build(ctx context.Context, cfgs []Config, log Logger) ([]Publisher, error) {
	return buildWith(ctx, builders, cfgs, log)
}

func buildWith(ctx context.Context, table map[string]Builder, cfgs []Config, log Logger) ([]Publisher, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := cfg.prepare(); err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		build, ok := table[cfg.Type]
		if !ok {
			_ = NewFanout(pubs).Close()
			return nil, fmt.Errorf("publisher %q: no builder for type %q", cfg.ID, cfg.Type)
		}
		pub, err := build(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, fmt.Errorf("build publisher %q: %w", cfg.ID, err)
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}
