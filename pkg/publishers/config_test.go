package publishers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadYAMLEnabledFilter(t *testing.T) {
	path := writeConfig(t, "publishers.yaml", `
publishers:
  - id: hook
    type: http
    enabled: false
    http:
      url: https://example.com
      headers:
        X-Token: " abc "
        " ": dropped
  - id: events
    type: SNS
    sns:
      topic_arn: arn:aws:sns:eu-west-1:123456789012:subscriptions.fifo
      region: eu-west-1
      credentials:
        access_key_id: AKIA
        secret_access_key: secret
  - id: pubsub
    type: gcp_pubsub
    gcp_pubsub:
      project_id: demo
      topic: subscription-events
      ordered: true
`)

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	enabled := set.Enabled()
	if len(enabled) != 2 || enabled[0].ID != "events" || enabled[1].ID != "pubsub" {
		t.Fatalf("expected events and pubsub enabled, got %#v", enabled)
	}
	events, ok := set.Lookup("events")
	if !ok || events.Type != TypeSNS || !events.SNS.Credentials.static() || !isFIFO(events.SNS.TopicARN) {
		t.Fatalf("unexpected sns config %#v", events)
	}
	hook, _ := set.Lookup("hook")
	if hook.HTTP.Method != "POST" || hook.HTTP.TimeoutSeconds != httpDefaultTimeout {
		t.Fatalf("http defaults not applied: %#v", hook.HTTP)
	}
	if len(hook.HTTP.Headers) != 1 || hook.HTTP.Headers["X-Token"] != "abc" {
		t.Fatalf("headers not normalized: %#v", hook.HTTP.Headers)
	}
	if pubsub, _ := set.Lookup("pubsub"); !pubsub.GCPPubSub.Ordered {
		t.Fatalf("ordered flag lost")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "publishers.json", `{"publishers":[{"id":"q","type":"sqs","sqs":{"uri":"https://sqs.example/q","region":"us-east-1"}}]}`)
	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q, ok := set.Lookup("q"); !ok || q.SQS.Region != "us-east-1" || !q.IsEnabled() {
		t.Fatalf("unexpected sqs config %#v", q)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]struct {
		name string
		raw  string
		want string
	}{
		"unknown key": {
			name: "p.yaml",
			raw:  "publishers:\n  - id: h\n    type: http\n    http:\n      url: https://x\n      retries: 3\n",
			want: "retries",
		},
		"unknown json key": {
			name: "p.json",
			raw:  `{"publishers":[{"id":"h","type":"http","webhook":{}}]}`,
			want: "webhook",
		},
		"duplicate id": {
			name: "p.yaml",
			raw:  "publishers:\n  - {id: h, type: http, http: {url: https://x}}\n  - {id: h, type: http, http: {url: https://y}}\n",
			want: "duplicate",
		},
		"empty": {
			name: "p.yaml",
			raw:  "publishers: []\n",
			want: "no publishers",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.name, tc.raw))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigPrepareValidation(t *testing.T) {
	cases := map[string]Config{
		"missing http":     {ID: "h1", Type: TypeHTTP},
		"missing sqs uri":  {ID: "q1", Type: TypeSQS, SQS: &SQSConfig{Region: "eu-west-1"}},
		"missing sns arn":  {ID: "s1", Type: TypeSNS, SNS: &SNSConfig{Region: "eu-west-1"}},
		"missing project":  {ID: "g1", Type: TypeGCPPubSub, GCPPubSub: &GCPPubSubConfig{Topic: "t"}},
		"unsupported type": {ID: "k1", Type: "kafka"},
		"missing type":     {ID: "k2"},
		"missing id":       {Type: TypeHTTP, HTTP: &HTTPConfig{URL: "https://example.com"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if err := cfg.prepare(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
