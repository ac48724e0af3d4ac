package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/hubbub/internal/config"
	"github.com/samvad-hq/hubbub/pkg/publishers"
	"github.com/samvad-hq/hubbub/pkg/subscriber"
)

// stubTransport answers hub POSTs from a table keyed by topic URL fragment.
type stubTransport struct {
	mu     sync.Mutex
	bodies []string
	hubs   []string
	reject string
}

func (s *stubTransport) Post(_ context.Context, endpoint, body, _ string) subscriber.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	s.hubs = append(s.hubs, endpoint)
	if s.reject != "" && strings.Contains(body, s.reject) {
		return subscriber.Result{StatusCode: http.StatusBadRequest, Body: "topic not allowed"}
	}
	return subscriber.Result{StatusCode: http.StatusAccepted}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		HubURL:                 "https://hub.example/",
		CallbackURL:            "https://me.example/cb",
		Secret:                 "s3cr3t",
		Verify:                 subscriber.VerifyAsync,
		HTTPTimeout:            2 * time.Second,
		TopicsFile:             filepath.Join(dir, "topics.yaml"),
		FeedLookupURL:          subscriber.DefaultFeedLookupURL,
		StorageType:            "none",
		StorageTTL:             time.Hour,
		StorageCleanupInterval: time.Hour,
	}
}

func TestRunnerApplyTopicsAndPublishesOutcomes(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var events []publishers.Event
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt publishers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode event: %v", err)
		}
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	writeFile(t, dir, "topics.yaml", `
topics:
  - id: good
    url: https://feed.example/rss
  - id: gone
    url: https://old.example/rss
    mode: unsubscribe
    hub_url: https://other-hub.example/
  - id: denied
    url: https://denied.example/rss
  - id: paused
    url: https://paused.example/rss
    enabled: false
`)
	cfg := testConfig(dir)
	cfg.PublishersFile = writeFile(t, dir, "publishers.yaml", `
publishers:
  - id: sink
    type: http
    http:
      url: `+sink.URL+`
`)

	transport := &stubTransport{reject: "denied.example"}
	var out bytes.Buffer
	runner, err := NewRunner(context.Background(), cfg, nil, WithTransport(transport), WithOutput(&out))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	err = runner.Run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "topic denied") {
		t.Fatalf("expected aggregated error for denied topic, got %v", err)
	}

	if len(transport.bodies) != 3 {
		t.Fatalf("expected 3 hub calls, got %d", len(transport.bodies))
	}
	if !strings.HasPrefix(transport.bodies[1], "hub.mode=unsubscribe&") {
		t.Fatalf("second call should unsubscribe: %s", transport.bodies[1])
	}
	if transport.hubs[1] != "https://other-hub.example/" || transport.hubs[0] != "https://hub.example/" {
		t.Fatalf("unexpected hubs %v", transport.hubs)
	}
	if !strings.HasSuffix(transport.bodies[0], "&hub.verify=async&hub.secret=s3cr3t") {
		t.Fatalf("config not applied to body: %s", transport.bodies[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(events))
	}
	if !events[0].Accepted || events[0].TopicID != "good" || events[0].CallbackURL != "https://me.example/cb" {
		t.Fatalf("unexpected first event %#v", events[0])
	}
	if events[2].Accepted || events[2].StatusCode != http.StatusBadRequest || events[2].Error == "" {
		t.Fatalf("denied event should carry failure, got %#v", events[2])
	}
	if !strings.Contains(out.String(), "subscribe https://feed.example/rss via https://hub.example/: accepted") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunnerSubscribeCommandValidatesTopic(t *testing.T) {
	dir := t.TempDir()
	transport := &stubTransport{}
	runner, err := NewRunner(context.Background(), testConfig(dir), nil, WithTransport(transport), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	if err := runner.Run(context.Background(), []string{"subscribe", "ftp://feed.example"}); err == nil {
		t.Fatalf("expected invalid topic error")
	}
	if len(transport.bodies) != 0 {
		t.Fatalf("transport must not be called for invalid topics")
	}

	if err := runner.Run(context.Background(), []string{"unsubscribe", "https://feed.example/rss"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if len(transport.bodies) != 1 || !strings.HasPrefix(transport.bodies[0], "hub.mode=unsubscribe&") {
		t.Fatalf("unexpected hub calls %v", transport.bodies)
	}
}

func TestRunnerDiscoverResolvesTopicAndHub(t *testing.T) {
	var srvURL string
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Link", `<https://discovered-hub.example/>; rel="hub"`)
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/atom+xml" href="` + srvURL + `/atom"></head></html>`))
	}))
	defer site.Close()
	srvURL = site.URL

	dir := t.TempDir()
	writeFile(t, dir, "topics.yaml", `
topics:
  - id: blog
    url: `+site.URL+`
    discover: true
`)
	transport := &stubTransport{}
	runner, err := NewRunner(context.Background(), testConfig(dir), nil, WithTransport(transport), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	if err := runner.Run(context.Background(), []string{"apply"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(transport.hubs) != 1 || transport.hubs[0] != "https://discovered-hub.example/" {
		t.Fatalf("expected discovered hub, got %v", transport.hubs)
	}
	if !strings.Contains(transport.bodies[0], "hub.topic="+strings.ReplaceAll(strings.ReplaceAll(site.URL+"/atom", ":", "%3A"), "/", "%2F")) {
		t.Fatalf("expected discovered feed as topic, got %s", transport.bodies[0])
	}
}

func TestRunnerFindFeedPrintsResult(t *testing.T) {
	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k3y" {
			t.Errorf("missing api key")
		}
		_, _ = w.Write([]byte(`{"responseData":{"url":"https://blog.example/feed"}}`))
	}))
	defer lookup.Close()

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.FeedLookupURL = lookup.URL
	cfg.FeedLookupKey = "k3y"
	cfg.StorageType = "bbolt"
	cfg.BBoltPath = filepath.Join(dir, "feeds.db")

	var out bytes.Buffer
	runner, err := NewRunner(context.Background(), cfg, nil, WithOutput(&out))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	if err := runner.Run(context.Background(), []string{"find-feed", "https://blog.example/"}); err != nil {
		t.Fatalf("find-feed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "https://blog.example/feed" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunnerRejectsUnknownCommand(t *testing.T) {
	runner, err := NewRunner(context.Background(), testConfig(t.TempDir()), nil, WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer runner.Close()

	if err := runner.Run(context.Background(), []string{"publish"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if err := runner.Run(context.Background(), []string{"subscribe"}); err == nil {
		t.Fatalf("expected missing argument error")
	}
}
