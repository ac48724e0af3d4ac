package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samvad-hq/hubbub/internal/config"
	"github.com/samvad-hq/hubbub/internal/discovery"
	"github.com/samvad-hq/hubbub/internal/domain"
	"github.com/samvad-hq/hubbub/internal/logger"
	"github.com/samvad-hq/hubbub/internal/storage"
	"github.com/samvad-hq/hubbub/pkg/httpclient"
	"github.com/samvad-hq/hubbub/pkg/publishers"
	"github.com/samvad-hq/hubbub/pkg/subscriber"
	"github.com/samvad-hq/hubbub/pkg/topics"
)

// Supported commands.
const (
	CommandApply       = "apply"
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
	CommandFindFeed    = "find-feed"
	CommandDiscover    = "discover"
)

// Runner wires configuration, the hub subscriber, discovery and outcome publishers.
type Runner struct {
	cfg         *config.Config
	client      httpclient.Client
	transport   subscriber.Transport
	discoverer  *discovery.Discoverer
	fanout      *publishers.Fanout
	store       storage.Store
	subscribers map[string]*subscriber.Subscriber
	out         io.Writer
	log         logger.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithOutput redirects command output (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithHTTPClient replaces the shared HTTP client, including the one used
// for discovery.
func WithHTTPClient(c httpclient.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithTransport replaces the hub transport used by every subscriber.
func WithTransport(t subscriber.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// NewRunner builds a runner from config.
func NewRunner(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := &Runner{
		cfg:         cfg,
		subscribers: make(map[string]*subscriber.Subscriber),
		out:         os.Stdout,
		log:         log,
	}
	for _, opt := range opts {
		opt(r)
	}
	var pageClient httpclient.Client = discovery.NewClient(cfg.HTTPTimeout)
	if r.client != nil {
		pageClient = r.client
	} else {
		r.client = httpclient.NewRestyClient(cfg.HTTPTimeout)
	}
	if r.transport == nil {
		r.transport = subscriber.NewHTTPTransport(r.client)
	}
	r.discoverer = discovery.NewDiscoverer(pageClient, log)

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}
	r.fanout = fanout

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		FeedTTL:         cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	r.store = store
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"feed_ttl_seconds":         int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return r, nil
}

// buildFanout loads publishers; an empty path disables outcome publishing.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return publishers.NewFanout(nil), nil
	}

	set, err := publishers.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers: %w", err)
	}
	enabled := set.Enabled()
	sinks, err := publishers.Build(ctx, enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(sinks), nil
}

// Run executes a command. With no arguments the topics file is applied.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if r == nil || r.cfg == nil {
		return fmt.Errorf("runner is not initialized")
	}

	cmd := CommandApply
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	switch cmd {
	case CommandApply:
		return r.apply(ctx)
	case CommandSubscribe, CommandUnsubscribe:
		if len(args) != 1 {
			return fmt.Errorf("%s requires exactly one topic url", cmd)
		}
		out := r.applyChange(ctx, domain.Change{TopicID: args[0], TopicURL: args[0], Mode: cmd})
		r.printOutcome(out)
		return out.Err
	case CommandFindFeed:
		if len(args) != 1 {
			return fmt.Errorf("%s requires exactly one site url", cmd)
		}
		return r.findFeed(ctx, args[0])
	case CommandDiscover:
		if len(args) != 1 {
			return fmt.Errorf("%s requires exactly one url", cmd)
		}
		return r.discover(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// Close releases publishers and storage.
func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) apply(ctx context.Context) error {
	reg, err := topics.LoadRegistry(r.cfg.TopicsFile)
	if err != nil {
		return fmt.Errorf("load topics registry: %w", err)
	}

	enabled := reg.Enabled()
	if len(enabled) == 0 {
		r.log.WarnObj("no enabled topics; nothing to apply", "topics_file", r.cfg.TopicsFile)
		return nil
	}

	start := time.Now()
	r.log.InfoObj("apply started", "apply_meta", map[string]any{
		"topics_count":     len(enabled),
		"publishers_count": r.fanout.Size(),
	})

	var errs []error
	accepted := 0
	for _, t := range enabled {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out := r.applyChange(ctx, domain.Change{
			TopicID:  t.ID,
			TopicURL: t.URL,
			HubURL:   t.HubURL,
			Mode:     t.Mode,
			Discover: t.Discover,
		})
		r.printOutcome(out)
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", t.ID, out.Err))
			continue
		}
		accepted++
	}

	r.log.InfoObj("apply completed", "apply_meta", map[string]any{
		"topics_count": len(enabled),
		"accepted":     accepted,
		"elapsed_ms":   time.Since(start).Milliseconds(),
	})
	return errors.Join(errs...)
}

// applyChange sends one change and publishes its outcome. It never retries.
func (r *Runner) applyChange(ctx context.Context, change domain.Change) domain.Outcome {
	out := domain.Outcome{Change: change}

	if change.Discover {
		links, err := r.discoverer.Discover(ctx, change.TopicURL)
		if err != nil {
			out.Err = fmt.Errorf("discover %s: %w", change.TopicURL, err)
			r.finish(ctx, &out)
			return out
		}
		change.TopicURL = links.Topic(change.TopicURL)
		if change.HubURL == "" && len(links.Hubs) > 0 {
			change.HubURL = links.Hubs[0]
		}
		out.Change = change
	}
	if change.HubURL == "" {
		change.HubURL = r.cfg.HubURL
		out.Change = change
	}

	sub, err := r.subscriberFor(change.HubURL)
	if err != nil {
		out.Err = err
		r.finish(ctx, &out)
		return out
	}

	res, err := sub.Change(ctx, subscriber.Mode(change.Mode), change.TopicURL)
	switch {
	case err != nil:
		out.Err = err
	case res.Err != nil:
		out.Err = res.Err
	case !res.Accepted():
		out.StatusCode = res.StatusCode
		out.Body = res.Body
		out.Err = fmt.Errorf("hub rejected %s with status %d", change.Mode, res.StatusCode)
	default:
		out.Accepted = true
		out.StatusCode = res.StatusCode
		out.Body = res.Body
	}
	r.finish(ctx, &out)
	return out
}

// finish logs the outcome and publishes it. Publish failures are logged only.
func (r *Runner) finish(ctx context.Context, out *domain.Outcome) {
	meta := map[string]any{
		"topic_id":  out.Change.TopicID,
		"topic_url": out.Change.TopicURL,
		"hub_url":   out.Change.HubURL,
		"mode":      out.Change.Mode,
		"status":    out.StatusCode,
	}
	if out.Err != nil {
		meta["error"] = out.Err.Error()
		r.log.ErrorObj("subscription change failed", "change_result", meta)
	} else {
		r.log.InfoObj("subscription change accepted", "change_result", meta)
	}

	if r.fanout.Size() == 0 {
		return
	}
	evt := publishers.NewEvent(out.Change.TopicID, out.Change.TopicURL, out.Change.HubURL, r.cfg.CallbackURL, out.Change.Mode,
		publishers.Outcome{Accepted: out.Accepted, StatusCode: out.StatusCode, Err: out.Err})
	if _, err := r.fanout.Publish(ctx, evt); err != nil {
		r.log.ErrorObj("outcome publish failed", "publish_error", map[string]any{
			"event_id": evt.ID,
			"error":    err.Error(),
		})
	}
}

// subscriberFor returns a subscriber bound to hubURL, built on first use.
func (r *Runner) subscriberFor(hubURL string) (*subscriber.Subscriber, error) {
	if sub, ok := r.subscribers[hubURL]; ok {
		return sub, nil
	}
	sub, err := subscriber.New(hubURL, r.cfg.CallbackURL,
		subscriber.WithCredentials(r.cfg.Credentials),
		subscriber.WithSecret(r.cfg.Secret),
		subscriber.WithVerify(r.cfg.Verify),
		subscriber.WithVerifyToken(r.cfg.VerifyToken),
		subscriber.WithLeaseSeconds(r.cfg.LeaseSeconds),
		subscriber.WithTransport(r.transport),
		subscriber.WithFeedLookup(r.cfg.FeedLookupURL, r.cfg.FeedLookupKey),
		subscriber.WithFeedCache(r.store),
		subscriber.WithLogger(r.log),
	)
	if err != nil {
		return nil, fmt.Errorf("build subscriber: %w", err)
	}
	r.subscribers[hubURL] = sub
	return sub, nil
}

func (r *Runner) findFeed(ctx context.Context, siteURL string) error {
	sub, err := r.subscriberFor(r.cfg.HubURL)
	if err != nil {
		return err
	}
	feed, err := sub.FindFeed(ctx, siteURL)
	if err != nil {
		return fmt.Errorf("find feed for %s: %w", siteURL, err)
	}
	fmt.Fprintln(r.out, feed)
	return nil
}

func (r *Runner) discover(ctx context.Context, pageURL string) error {
	links, err := r.discoverer.Discover(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("discover %s: %w", pageURL, err)
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}

func (r *Runner) printOutcome(out domain.Outcome) {
	status := "accepted"
	if out.Err != nil {
		status = "failed: " + out.Err.Error()
	}
	fmt.Fprintf(r.out, "%s %s via %s: %s\n", out.Change.Mode, out.Change.TopicURL, out.Change.HubURL, status)
}
