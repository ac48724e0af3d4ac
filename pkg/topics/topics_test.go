package topics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write topics file: %v", err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writeFile(t, "topics.yaml", `
topics:
  - id: onlineaspect
    url: http://feeds.feedburner.com/onlineaspect
  - id: old
    url: https://old.example/rss
    mode: Unsubscribe
  - url: https://paused.example/rss
    enabled: false
    discover: true
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg.All()) != 3 {
		t.Fatalf("expected 3 topics, got %d", len(reg.All()))
	}

	first, ok := reg.ByID("onlineaspect")
	if !ok || first.Mode != ModeSubscribe {
		t.Fatalf("expected default subscribe mode, got %#v", first)
	}
	old, _ := reg.ByID("old")
	if old.Mode != ModeUnsubscribe {
		t.Fatalf("mode should be normalized, got %q", old.Mode)
	}
	paused, ok := reg.ByID("https://paused.example/rss")
	if !ok || !paused.Discover {
		t.Fatalf("id should default to url, got %#v", paused)
	}

	enabled := reg.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled topics, got %d", len(enabled))
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	path := writeFile(t, "topics.json", `{"topics":[{"id":"a","url":"https://a.example/feed","hub_url":"https://hub.example/"}]}`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	a, ok := reg.ByID("a")
	if !ok || a.HubURL != "https://hub.example/" {
		t.Fatalf("unexpected topic %#v", a)
	}
}

func TestLoadRegistryRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"duplicate": `
topics:
  - id: dup
    url: https://a.example
  - id: dup
    url: https://b.example
`,
		"missing url": `
topics:
  - id: nourl
`,
		"bad mode": `
topics:
  - url: https://a.example
    mode: publish
`,
		"empty": `topics: []`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRegistry(writeFile(t, "topics.yaml", content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadRegistryReportsDecoderErrors(t *testing.T) {
	_, err := LoadRegistry(writeFile(t, "topics.json", `{"topics": [`))
	if err == nil || !strings.Contains(err.Error(), "as json") {
		t.Fatalf("expected json decode error, got %v", err)
	}

	_, err = LoadRegistry(writeFile(t, "topics.yml", "topics: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "as yaml") {
		t.Fatalf("expected yaml decode error, got %v", err)
	}

	_, err = LoadRegistry(writeFile(t, "topics.toml", "topics = []"))
	if err == nil || !strings.Contains(err.Error(), `".toml" not recognized`) {
		t.Fatalf("expected unknown extension error, got %v", err)
	}
}

func TestLoadRegistryWithoutExtensionTriesAllFormats(t *testing.T) {
	reg, err := LoadRegistry(writeFile(t, "topics", `{"topics":[{"url":"https://a.example/rss"}]}`))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := reg.All(); len(got) != 1 || got[0].ID != "https://a.example/rss" {
		t.Fatalf("topics = %#v", got)
	}
}
