// Package runner drives the ranked fallback across sources and embeds.
package runner

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
	"streamscout/internal/normalize"
	"streamscout/internal/playlist"
	"streamscout/internal/provider"
)

// RunOptions parameterize one resolution.
type RunOptions struct {
	Media media.ScrapeMedia

	Fetcher        fetcher.Fetcher
	ProxiedFetcher fetcher.Fetcher

	Target                  provider.Target
	ConsistentIPForRequests bool
	Extra                   map[string]string

	// SourceOrder and EmbedOrder list ids to try first, in that order.
	// Everything else follows by rank.
	SourceOrder []string
	EmbedOrder  []string

	// ProxyURL, when set, rewrites the returned stream's URLs through the
	// passthrough proxy.
	ProxyURL string

	Events Events
}

func (o RunOptions) scrapeContext() provider.ScrapeContext {
	return provider.ScrapeContext{
		Fetcher:                 o.Fetcher,
		ProxiedFetcher:          o.ProxiedFetcher,
		Target:                  o.Target,
		ConsistentIPForRequests: o.ConsistentIPForRequests,
		Extra:                   o.Extra,
	}
}

// Runner resolves media against a sealed registry. It holds no per-run state
// and is safe for concurrent use.
type Runner struct {
	registry        *provider.Registry
	includeExternal bool
	fetcher         fetcher.Fetcher
	proxiedFetcher  fetcher.Fetcher
	events          Events
}

// Option configures a Runner.
type Option func(*Runner)

// WithExternal includes external providers in automatic runs.
func WithExternal(include bool) Option {
	return func(r *Runner) { r.includeExternal = include }
}

// WithFetchers sets the default fetchers used when RunOptions leaves them nil.
func WithFetchers(f, proxied fetcher.Fetcher) Option {
	return func(r *Runner) {
		r.fetcher = f
		r.proxiedFetcher = proxied
	}
}

// WithEvents sets events fired for every run in addition to RunOptions.Events.
func WithEvents(ev Events) Option {
	return func(r *Runner) { r.events = ev }
}

// New returns a Runner over reg.
func New(reg *provider.Registry, opts ...Option) *Runner {
	r := &Runner{registry: reg}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = fetcher.NewStandardFetcher(nil)
	}
	return r
}

// Registry returns the registry the runner resolves against.
func (r *Runner) Registry() *provider.Registry { return r.registry }

func (r *Runner) prepare(opts RunOptions) RunOptions {
	if opts.Fetcher == nil {
		opts.Fetcher = r.fetcher
	}
	if opts.ProxiedFetcher == nil {
		opts.ProxiedFetcher = r.proxiedFetcher
	}
	if opts.Target == "" {
		opts.Target = provider.TargetAny
	}
	opts.Events = r.events.merge(opts.Events)
	return opts
}

func (r *Runner) set() provider.Set {
	if r.includeExternal {
		return provider.All
	}
	return provider.Builtin
}

// RunAll tries sources in rank order and returns the first stream found. It
// returns (nil, nil) when every candidate failed; per-provider errors are only
// reported through events. A done context stops the run with ctx.Err().
func (r *Runner) RunAll(ctx context.Context, opts RunOptions) (*media.RunOutput, error) {
	if err := opts.Media.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid media")
	}
	opts = r.prepare(opts)
	ev := opts.Events
	runID := uuid.NewString()

	sources := orderProviders(r.registry.Sources(r.set()), opts.SourceOrder)
	ev.init(runID, lo.Map(sources, func(s provider.Source, _ int) string { return s.Meta().ID }))

	sc := opts.scrapeContext()
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := src.Meta().ID
		ev.start(RunStep{RunID: runID, ID: id, Kind: provider.KindSource})

		out, err := guard(id, func() (*provider.SourceOutput, error) {
			return src.Scrape(ctx, provider.SourceInput{ScrapeContext: sc, Media: opts.Media})
		})
		if err == nil && out == nil {
			err = provider.NotFound(id, "source returned nothing")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			ev.error(runID, id, provider.KindSource, err)
			continue
		}

		if out.IsDirect() {
			stream, err := finish(out.Stream, out.Payload, opts.ProxyURL)
			if err != nil {
				ev.error(runID, id, provider.KindSource, err)
				continue
			}
			return &media.RunOutput{SourceID: id, Stream: stream}, nil
		}

		refs := r.orderEmbedRefs(out.Embeds, opts.EmbedOrder)
		ev.discover(runID, id, refs)
		if len(refs) == 0 {
			ev.error(runID, id, provider.KindSource, provider.NotFound(id, "no embeds offered"))
			continue
		}

		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			stream, err := r.runEmbed(ctx, runID, ref, sc, opts)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				ev.error(runID, ref.EmbedID, provider.KindEmbed, err)
				continue
			}
			return &media.RunOutput{SourceID: id, EmbedID: ref.EmbedID, Stream: stream}, nil
		}
	}

	return nil, nil
}

// runEmbed resolves one handoff. An unknown or disabled embed id is a
// ConfigurationError so it shows up as a wiring bug.
func (r *Runner) runEmbed(ctx context.Context, runID string, ref provider.EmbedRef, sc provider.ScrapeContext, opts RunOptions) (*media.Stream, error) {
	emb, meta, ok := r.registry.Embed(ref.EmbedID)
	if !ok {
		return nil, &provider.ConfigurationError{Msg: "source handed off to unregistered embed " + ref.EmbedID}
	}
	if meta.Disabled {
		return nil, &provider.ConfigurationError{Msg: "source handed off to disabled embed " + ref.EmbedID}
	}

	opts.Events.start(RunStep{RunID: runID, ID: ref.EmbedID, Kind: provider.KindEmbed, URL: ref.URL})
	out, err := guard(ref.EmbedID, func() (*provider.EmbedOutput, error) {
		return emb.Scrape(ctx, provider.EmbedInput{ScrapeContext: sc, URL: ref.URL})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, provider.NotFound(ref.EmbedID, "embed returned nothing")
	}
	return finish(out.Stream, out.Payload, opts.ProxyURL)
}

// RunSourceScraper invokes one source directly. Errors are returned, not
// swallowed, and disabled providers may still be exercised.
func (r *Runner) RunSourceScraper(ctx context.Context, id string, opts RunOptions) (*provider.SourceOutput, error) {
	src, _, ok := r.registry.Source(id)
	if !ok {
		return nil, provider.NotFound(id, "no such source")
	}
	if err := opts.Media.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid media")
	}
	opts = r.prepare(opts)

	runID := uuid.NewString()
	opts.Events.start(RunStep{RunID: runID, ID: id, Kind: provider.KindSource})
	out, err := guard(id, func() (*provider.SourceOutput, error) {
		return src.Scrape(ctx, provider.SourceInput{ScrapeContext: opts.scrapeContext(), Media: opts.Media})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, provider.NotFound(id, "source returned nothing")
	}

	if out.IsDirect() {
		stream, err := finish(out.Stream, out.Payload, opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		return &provider.SourceOutput{Stream: stream}, nil
	}

	refs := r.orderEmbedRefs(out.Embeds, opts.EmbedOrder)
	opts.Events.discover(runID, id, refs)
	return &provider.SourceOutput{Embeds: refs}, nil
}

// RunEmbedScraper invokes one embed directly on url.
func (r *Runner) RunEmbedScraper(ctx context.Context, id, url string, opts RunOptions) (*provider.EmbedOutput, error) {
	emb, _, ok := r.registry.Embed(id)
	if !ok {
		return nil, provider.NotFound(id, "no such embed")
	}
	opts = r.prepare(opts)

	opts.Events.start(RunStep{RunID: uuid.NewString(), ID: id, Kind: provider.KindEmbed, URL: url})
	out, err := guard(id, func() (*provider.EmbedOutput, error) {
		return emb.Scrape(ctx, provider.EmbedInput{ScrapeContext: opts.scrapeContext(), URL: url})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, provider.NotFound(id, "embed returned nothing")
	}

	stream, err := finish(out.Stream, out.Payload, opts.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &provider.EmbedOutput{Stream: stream}, nil
}

// guard calls scrape and reports a panic inside it as an error. The error
// classifies as OutcomeFailed.
func guard[T any](id string, scrape func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, errors.Errorf("provider %s panicked: %v", id, r)
		}
	}()
	return scrape()
}

// finish canonicalizes a provider result and applies the proxy rewrite.
func finish(stream *media.Stream, payload []byte, proxyURL string) (*media.Stream, error) {
	var (
		s   *media.Stream
		err error
	)
	if stream != nil {
		s, err = normalize.Canonicalize(stream)
	} else {
		s, err = normalize.Payload(payload)
	}
	if err != nil {
		return nil, err
	}
	return playlist.ProxyStream(s, proxyURL), nil
}

// orderProviders drops negative ranks, then puts the ids listed in order
// first (in that order) and the rest by descending rank. Ties keep
// registration order.
func orderProviders[P provider.Provider](ps []P, order []string) []P {
	eligible := lo.Filter(ps, func(p P, _ int) bool { return p.Meta().Rank >= 0 })

	pos := func(id string) int {
		if i := slices.Index(order, id); i >= 0 {
			return i
		}
		return len(order)
	}

	out := slices.Clone(eligible)
	slices.SortStableFunc(out, func(a, b P) int {
		pa, pb := pos(a.Meta().ID), pos(b.Meta().ID)
		if pa != pb {
			return pa - pb
		}
		return b.Meta().Rank - a.Meta().Rank
	})
	return out
}

// orderEmbedRefs sorts a handoff list by embed order and embed rank. Refs to
// unknown embeds sort last so their ConfigurationError is still reported.
func (r *Runner) orderEmbedRefs(refs []provider.EmbedRef, order []string) []provider.EmbedRef {
	rank := func(id string) int {
		if _, meta, ok := r.registry.Embed(id); ok {
			return meta.Rank
		}
		return -1 << 31
	}
	pos := func(id string) int {
		if i := slices.Index(order, id); i >= 0 {
			return i
		}
		return len(order)
	}

	out := slices.Clone(refs)
	slices.SortStableFunc(out, func(a, b provider.EmbedRef) int {
		pa, pb := pos(a.EmbedID), pos(b.EmbedID)
		if pa != pb {
			return pa - pb
		}
		ra, rb := rank(a.EmbedID), rank(b.EmbedID)
		switch {
		case ra > rb:
			return -1
		case ra < rb:
			return 1
		default:
			return 0
		}
	})
	return out
}
