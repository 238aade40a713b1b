// Package provider defines the two plug-in roles of the resolver, Source and
// Embed, the registry that holds them, and the error taxonomy they share.
package provider

import (
	"context"
	"encoding/json"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
)

// Flag advertises a capability of a provider or of the streams it returns.
type Flag string

const (
	// FlagCORSAllowed means the stream can be played directly from a browser.
	FlagCORSAllowed Flag = "cors-allowed"
	// FlagIPLocked means the stream only plays from the IP that resolved it.
	FlagIPLocked Flag = "ip-locked"
)

// Target names the consumer that will play the resolved stream.
type Target string

const (
	TargetBrowser Target = "browser"
	TargetNative  Target = "native"
	TargetAny     Target = "any"
)

// ParseTarget validates a target name. The empty string means TargetAny.
func ParseTarget(s string) (Target, bool) {
	switch Target(s) {
	case "", TargetAny:
		return TargetAny, true
	case TargetBrowser, TargetNative:
		return Target(s), true
	default:
		return "", false
	}
}

// Kind distinguishes the two provider roles.
type Kind string

const (
	KindSource Kind = "source"
	KindEmbed  Kind = "embed"
)

// Meta describes a provider. Rank orders automatic runs, higher first; a
// negative rank keeps the provider out of them entirely.
type Meta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Kind     Kind   `json:"kind"`
	Disabled bool   `json:"disabled"`
	External bool   `json:"external"`
	Flags    []Flag `json:"flags,omitempty"`
}

// Provider is anything that can describe itself to the registry.
type Provider interface {
	Meta() Meta
}

// ScrapeContext is what every provider call receives besides its subject.
type ScrapeContext struct {
	Fetcher        fetcher.Fetcher
	ProxiedFetcher fetcher.Fetcher // nil when no proxy is configured
	Target         Target

	// ConsistentIPForRequests asks providers to prefer streams that are not
	// IP-locked, since playback may come from a different address.
	ConsistentIPForRequests bool

	// Extra carries provider specific knobs, e.g. an API base override.
	Extra map[string]string
}

// PreferProxied returns the proxied fetcher when there is one.
func (c ScrapeContext) PreferProxied() fetcher.Fetcher {
	if c.ProxiedFetcher != nil {
		return c.ProxiedFetcher
	}
	return c.Fetcher
}

// SourceInput is the argument to Source.Scrape.
type SourceInput struct {
	ScrapeContext
	Media media.ScrapeMedia
}

// EmbedInput is the argument to Embed.Scrape. Embeds never see the media,
// only the player page URL their source handed over.
type EmbedInput struct {
	ScrapeContext
	URL string
}

// EmbedRef hands resolution over to a registered embed.
type EmbedRef struct {
	EmbedID string `json:"embedId"`
	URL     string `json:"url"`
}

// SourceOutput is either a direct stream (Stream or Payload set) or an embed
// handoff (Embeds non-empty). Payload is a raw provider response left for the
// normalizer.
type SourceOutput struct {
	Stream  *media.Stream   `json:"stream,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Embeds  []EmbedRef      `json:"embeds,omitempty"`
}

// IsDirect reports whether the source resolved a stream by itself.
func (o *SourceOutput) IsDirect() bool {
	return o != nil && (o.Stream != nil || len(o.Payload) > 0)
}

// EmbedOutput carries either a canonical stream or a raw payload.
type EmbedOutput struct {
	Stream  *media.Stream   `json:"stream,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Source maps a media descriptor to a stream or to embed references. It must
// return a *NotFoundError when it simply has nothing for the media.
type Source interface {
	Provider
	Scrape(ctx context.Context, in SourceInput) (*SourceOutput, error)
}

// Embed extracts a stream from a player page URL.
type Embed interface {
	Provider
	Scrape(ctx context.Context, in EmbedInput) (*EmbedOutput, error)
}
