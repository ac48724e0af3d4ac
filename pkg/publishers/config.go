package publishers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink types.
const (
	TypeSQS       = "sqs"
	TypeSNS       = "sns"
	TypeGCPPubSub = "gcp_pubsub"
	TypeHTTP      = "http"
)

const (
	httpDefaultMethod  = "POST"
	httpDefaultTimeout = 5
)

// Config declares one sink in the publishers file. Exactly one of the type
// blocks is read, selected by Type.
type Config struct {
	ID        string           `json:"id" yaml:"id"`
	Type      string           `json:"type" yaml:"type"`
	Enabled   *bool            `json:"enabled" yaml:"enabled"`
	SQS       *SQSConfig       `json:"sqs" yaml:"sqs"`
	SNS       *SNSConfig       `json:"sns" yaml:"sns"`
	GCPPubSub *GCPPubSubConfig `json:"gcp_pubsub" yaml:"gcp_pubsub"`
	HTTP      *HTTPConfig      `json:"http" yaml:"http"`
}

// SQSConfig targets an SQS queue. Queues whose URL ends in .fifo get
// per-topic message groups.
type SQSConfig struct {
	QueueURL    string          `json:"uri" yaml:"uri"`
	Region      string          `json:"region" yaml:"region"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

// SNSConfig targets an SNS topic. FIFO topics are detected from the ARN.
type SNSConfig struct {
	TopicARN    string          `json:"topic_arn" yaml:"topic_arn"`
	Region      string          `json:"region" yaml:"region"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

// GCPPubSubConfig targets a Pub/Sub topic. Ordered publishing keys messages by topic id.
type GCPPubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Ordered         bool   `json:"ordered" yaml:"ordered"`
}

// HTTPConfig targets a webhook receiving the event as JSON.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// section is the type-specific block of a Config.
type section interface {
	normalize()
	check() error
}

func (c *SQSConfig) normalize() {
	c.QueueURL = strings.TrimSpace(c.QueueURL)
	c.Region = strings.TrimSpace(c.Region)
}

func (c *SQSConfig) check() error {
	switch {
	case c.QueueURL == "":
		return errors.New("sqs.uri is required")
	case c.Region == "":
		return errors.New("sqs.region is required")
	}
	return nil
}

func (c *SNSConfig) normalize() {
	c.TopicARN = strings.TrimSpace(c.TopicARN)
	c.Region = strings.TrimSpace(c.Region)
}

func (c *SNSConfig) check() error {
	switch {
	case c.TopicARN == "":
		return errors.New("sns.topic_arn is required")
	case c.Region == "":
		return errors.New("sns.region is required")
	}
	return nil
}

func (c *GCPPubSubConfig) normalize() {
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Topic = strings.TrimSpace(c.Topic)
	c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
}

func (c *GCPPubSubConfig) check() error {
	if c.ProjectID == "" || c.Topic == "" {
		return errors.New("gcp_pubsub.project_id and gcp_pubsub.topic are required")
	}
	return nil
}

func (c *HTTPConfig) normalize() {
	c.URL = strings.TrimSpace(c.URL)
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = httpDefaultMethod
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = httpDefaultTimeout
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	c.Headers = headers
}

func (c *HTTPConfig) check() error {
	if c.URL == "" {
		return errors.New("http.url is required")
	}
	return nil
}

// section returns the block selected by Type.
func (c *Config) section() (section, error) {
	var s section
	switch c.Type {
	case TypeSQS:
		if c.SQS != nil {
			s = c.SQS
		}
	case TypeSNS:
		if c.SNS != nil {
			s = c.SNS
		}
	case TypeGCPPubSub:
		if c.GCPPubSub != nil {
			s = c.GCPPubSub
		}
	case TypeHTTP:
		if c.HTTP != nil {
			s = c.HTTP
		}
	default:
		return nil, fmt.Errorf("unsupported type %q", c.Type)
	}
	if s == nil {
		return nil, fmt.Errorf("%s block is required", c.Type)
	}
	return s, nil
}

// prepare normalizes c in place and validates it.
func (c *Config) prepare() error {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.Type == "" {
		return fmt.Errorf("publisher %q: type is required", c.ID)
	}
	s, err := c.section()
	if err != nil {
		return fmt.Errorf("publisher %q: %w", c.ID, err)
	}
	s.normalize()
	if err := s.check(); err != nil {
		return fmt.Errorf("publisher %q: %w", c.ID, err)
	}
	return nil
}

// IsEnabled reports the enabled flag, defaulting to true.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Set is the validated content of a publishers file.
type Set struct {
	configs []Config
	byID    map[string]int
}

// Load reads a YAML or JSON publishers file. Unknown keys are rejected.
func Load(path string) (*Set, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var file struct {
		Publishers []Config `json:"publishers" yaml:"publishers"`
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&file)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers file %s: %w", filepath.Base(path), err)
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	set := &Set{byID: make(map[string]int, len(file.Publishers))}
	for i := range file.Publishers {
		cfg := file.Publishers[i]
		if err := cfg.prepare(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := set.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		set.byID[cfg.ID] = len(set.configs)
		set.configs = append(set.configs, cfg)
	}
	return set, nil
}

// Lookup returns the config declared with id.
func (s *Set) Lookup(id string) (Config, bool) {
	if s == nil {
		return Config{}, false
	}
	i, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Config{}, false
	}
	return s.configs[i], true
}

// Enabled returns the enabled configs in file order.
func (s *Set) Enabled() []Config {
	if s == nil {
		return nil
	}
	out := make([]Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}
