// Package topics loads the list of subscription changes to apply from YAML or JSON files.
package topics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeSubscribe   = "subscribe"
	ModeUnsubscribe = "unsubscribe"
)

// Topic is one subscription change declared in a topics file.
type Topic struct {
	ID       string `json:"id" yaml:"id"`
	URL      string `json:"url" yaml:"url"`
	Mode     string `json:"mode" yaml:"mode"`
	Enabled  *bool  `json:"enabled" yaml:"enabled"`
	Discover bool   `json:"discover" yaml:"discover"`
	HubURL   string `json:"hub_url" yaml:"hub_url"`
}

type configFile struct {
	Topics []Topic `json:"topics" yaml:"topics"`
}

// Registry holds the topics loaded from a file.
// It is read-only once loaded.
type Registry struct {
	topics []Topic
	idx    map[string]Topic
}

// LoadRegistry loads topics from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("topics file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topics file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	parsed, err := parseTopics(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Topics) == 0 {
		return nil, errors.New("topics file contains no topics entries")
	}

	reg := &Registry{
		topics: make([]Topic, len(parsed.Topics)),
		idx:    make(map[string]Topic, len(parsed.Topics)),
	}
	for i := range parsed.Topics {
		t := sanitizeTopic(parsed.Topics[i])
		if err := validateTopic(t); err != nil {
			return nil, fmt.Errorf("topics[%d]: %w", i, err)
		}
		if _, exists := reg.idx[t.ID]; exists {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		reg.topics[i] = t
		reg.idx[t.ID] = t
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseTopics(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var errs []error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var cf configFile
		err := d.fn(data, &cf)
		if err == nil {
			return cf, nil
		}
		errs = append(errs, fmt.Errorf("as %s: %w", d.name, err))
	}
	if len(errs) == 0 {
		return configFile{}, fmt.Errorf("topics file extension %q not recognized (expected .yaml, .yml or .json)", ext)
	}
	return configFile{}, fmt.Errorf("parse topics file: %w", errors.Join(errs...))
}

func sanitizeTopic(t Topic) Topic {
	t.ID = strings.TrimSpace(t.ID)
	t.URL = strings.TrimSpace(t.URL)
	t.HubURL = strings.TrimSpace(t.HubURL)
	t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))
	if t.Mode == "" {
		t.Mode = ModeSubscribe
	}
	if t.ID == "" {
		t.ID = t.URL
	}
	if t.Enabled == nil {
		def := true
		t.Enabled = &def
	}
	return t
}

// validateTopic checks presence only; URL format is enforced by the subscriber.
func validateTopic(t Topic) error {
	if t.URL == "" {
		return errors.New("url is required")
	}
	switch t.Mode {
	case ModeSubscribe, ModeUnsubscribe:
	default:
		return fmt.Errorf("mode %q is invalid for topic %q", t.Mode, t.ID)
	}
	return nil
}

// ByID returns the topic with the given id.
func (r *Registry) ByID(id string) (Topic, bool) {
	if r == nil {
		return Topic{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Topic{}, false
	}

	t, ok := r.idx[id]
	return t, ok
}

// All returns all configured topics in file order.
func (r *Registry) All() []Topic {
	if r == nil {
		return nil
	}

	out := make([]Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// Enabled returns topics that are enabled.
func (r *Registry) Enabled() []Topic {
	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]Topic, 0, len(all))
	for _, t := range all {
		if t.EnabledValue() {
			out = append(out, t)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (t Topic) EnabledValue() bool {
	if t.Enabled == nil {
		return true
	}
	return *t.Enabled
}
