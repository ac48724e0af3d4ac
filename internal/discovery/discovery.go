// Package discovery finds the hub, self and feed links a publisher advertises.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/hubbub/internal/logger"
	"github.com/samvad-hq/hubbub/pkg/httpclient"
)

// MaxBodyBytes caps discovery responses. Clients built by NewClient fail
// larger bodies while reading them.
const MaxBodyBytes = 1 << 20

const (
	defaultTimeout = 30 * time.Second

	acceptHeader = "application/atom+xml, application/rss+xml, text/html;q=0.9, */*;q=0.8"
)

var feedTypes = map[string]bool{
	"application/rss+xml":   true,
	"application/atom+xml":  true,
	"application/rdf+xml":   true,
	"application/feed+json": true,
}

// Links holds what a page or feed advertises.
type Links struct {
	Hubs  []string `json:"hubs,omitempty"`
	Self  string   `json:"self,omitempty"`
	Feeds []string `json:"feeds,omitempty"`
}

// Topic returns the URL a subscriber should use as hub.topic.
func (l Links) Topic(fallback string) string {
	if l.Self != "" {
		return l.Self
	}
	if len(l.Feeds) > 0 {
		return l.Feeds[0]
	}
	return fallback
}

// Discoverer fetches pages and extracts WebSub discovery links.
type Discoverer struct {
	client httpclient.Client
	log    logger.Logger
}

// NewClient returns an HTTP client for discovery with MaxBodyBytes enforced.
func NewClient(timeout time.Duration) *httpclient.RestyClient {
	return httpclient.NewRestyClient(timeout, httpclient.WithResponseBodyLimit(MaxBodyBytes))
}

// NewDiscoverer constructs a discoverer with the provided HTTP client,
// defaulting to NewClient.
func NewDiscoverer(client httpclient.Client, log logger.Logger) *Discoverer {
	if client == nil {
		client = NewClient(defaultTimeout)
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Discoverer{client: client, log: log}
}

// Discover reads Link headers first, then <link> elements in the body.
// Header links take precedence for self.
func (d *Discoverer) Discover(ctx context.Context, pageURL string) (Links, error) {
	resp, err := d.client.Get(ctx, pageURL, map[string]string{"Accept": acceptHeader})
	if err != nil {
		return Links{}, fmt.Errorf("http fetch: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return Links{}, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	var links Links
	for _, raw := range resp.Header("Link") {
		for _, l := range parseLinkHeader(raw) {
			links.add(l.rel, l.typ, resolveURL(l.href, pageURL))
		}
	}

	bodyLinks, err := parseLinks(resp.Body(), pageURL)
	if err != nil {
		d.log.WarnObj("discovery body parse failed", "discovery_error", map[string]any{
			"url":   pageURL,
			"error": err.Error(),
		})
	} else {
		links.merge(bodyLinks)
	}

	d.log.DebugObj("discovery completed", "discovery_result", map[string]any{
		"url":   pageURL,
		"links": links,
	})
	return links, nil
}

func parseLinks(body []byte, base string) (Links, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Links{}, fmt.Errorf("parse document: %w", err)
	}

	var links Links
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "link", "atom:link":
		default:
			return
		}
		rel, ok := sel.Attr("rel")
		if !ok {
			return
		}
		href, _ := sel.Attr("href")
		typ, _ := sel.Attr("type")
		links.add(rel, typ, resolveURL(href, base))
	})
	return links, nil
}

func (l *Links) add(rel, typ, href string) {
	if href == "" {
		return
	}
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		switch r {
		case "hub":
			l.Hubs = appendUnique(l.Hubs, href)
		case "self":
			if l.Self == "" {
				l.Self = href
			}
		case "alternate":
			if feedTypes[strings.ToLower(strings.TrimSpace(typ))] {
				l.Feeds = appendUnique(l.Feeds, href)
			}
		}
	}
}

func (l *Links) merge(other Links) {
	for _, h := range other.Hubs {
		l.Hubs = appendUnique(l.Hubs, h)
	}
	if l.Self == "" {
		l.Self = other.Self
	}
	for _, f := range other.Feeds {
		l.Feeds = appendUnique(l.Feeds, f)
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

type headerLink struct {
	href string
	rel  string
	typ  string
}

// parseLinkHeader reads an RFC 8288 Link header value such as
// `<https://hub.example/>; rel="hub", </feed>; rel="self"`.
// Values without a rel or with malformed parameters are skipped.
func parseLinkHeader(raw string) []headerLink {
	var out []headerLink
	for _, value := range splitLinkValues(raw) {
		if l, ok := parseLinkValue(value); ok {
			out = append(out, l)
		}
	}
	return out
}

// splitLinkValues splits at commas outside <...> and quoted strings.
func splitLinkValues(raw string) []string {
	var (
		out     []string
		start   int
		inURI   bool
		inQuote bool
		escaped bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case inQuote:
			switch c {
			case '\\':
				escaped = true
			case '"':
				inQuote = false
			}
		case inURI:
			if c == '>' {
				inURI = false
			}
		case c == '<':
			inURI = true
		case c == '"':
			inQuote = true
		case c == ',':
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	return append(out, raw[start:])
}

// parseLinkValue parses `<uri>; param=value; ...`. Parameters share the
// token and quoted-string grammar of MIME parameters.
func parseLinkValue(value string) (headerLink, bool) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "<") {
		return headerLink{}, false
	}
	end := strings.IndexByte(value, '>')
	if end < 0 {
		return headerLink{}, false
	}
	_, params, err := mime.ParseMediaType("link" + value[end+1:])
	if err != nil || params["rel"] == "" {
		return headerLink{}, false
	}
	return headerLink{
		href: strings.TrimSpace(value[1:end]),
		rel:  params["rel"],
		typ:  params["type"],
	}, true
}

// resolveURL resolves href against base, returning "" for empty input.
func resolveURL(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
