package provider

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"streamscout/internal/httputil"
)

// Set selects which providers a listing returns.
type Set int

const (
	Builtin Set = iota
	External
	All
)

func (s Set) includes(m Meta) bool {
	switch s {
	case Builtin:
		return !m.External
	case External:
		return m.External
	default:
		return true
	}
}

type sourceEntry struct {
	meta Meta
	src  Source
}

type embedEntry struct {
	meta Meta
	emb  Embed
}

// Registry holds every provider, keyed by a single id namespace shared by
// sources and embeds. It is filled once during startup and then sealed;
// reads after Seal need no locking.
type Registry struct {
	sources []sourceEntry
	embeds  []embedEntry
	ids     map[string]Kind
	sealed  atomic.Bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]Kind)}
}

// Register adds providers in order. Registration order breaks rank ties.
func (r *Registry) Register(providers ...Provider) error {
	if r.sealed.Load() {
		return &ConfigurationError{Msg: "registry is sealed"}
	}
	for _, p := range providers {
		meta := p.Meta()
		if err := httputil.ValidateProviderID(meta.ID); err != nil {
			return &ConfigurationError{Msg: err.Error()}
		}
		if _, dup := r.ids[meta.ID]; dup {
			return &DuplicateProviderError{ID: meta.ID}
		}

		switch v := p.(type) {
		case Source:
			meta.Kind = KindSource
			r.sources = append(r.sources, sourceEntry{meta: meta, src: v})
		case Embed:
			meta.Kind = KindEmbed
			r.embeds = append(r.embeds, embedEntry{meta: meta, emb: v})
		default:
			return errors.Errorf("provider %q is neither a source nor an embed", meta.ID)
		}
		r.ids[meta.ID] = meta.Kind
	}
	return nil
}

// MustRegister is Register for static startup lists.
func (r *Registry) MustRegister(providers ...Provider) {
	if err := r.Register(providers...); err != nil {
		panic(err)
	}
}

// Disable marks ids as disabled. Unknown ids are ignored.
func (r *Registry) Disable(ids ...string) error {
	if r.sealed.Load() {
		return &ConfigurationError{Msg: "registry is sealed"}
	}
	off := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	for i := range r.sources {
		if _, ok := off[r.sources[i].meta.ID]; ok {
			r.sources[i].meta.Disabled = true
		}
	}
	for i := range r.embeds {
		if _, ok := off[r.embeds[i].meta.ID]; ok {
			r.embeds[i].meta.Disabled = true
		}
	}
	return nil
}

// Seal freezes the registry. Further Register or Disable calls fail.
func (r *Registry) Seal() { r.sealed.Store(true) }

// Sources returns the enabled sources of set in registration order.
func (r *Registry) Sources(set Set) []Source {
	entries := lo.Filter(r.sources, func(e sourceEntry, _ int) bool {
		return !e.meta.Disabled && set.includes(e.meta)
	})
	return lo.Map(entries, func(e sourceEntry, _ int) Source { return e.src })
}

// Embeds returns the enabled embeds of set in registration order.
func (r *Registry) Embeds(set Set) []Embed {
	entries := lo.Filter(r.embeds, func(e embedEntry, _ int) bool {
		return !e.meta.Disabled && set.includes(e.meta)
	})
	return lo.Map(entries, func(e embedEntry, _ int) Embed { return e.emb })
}

// Source looks up a source by id, disabled or not.
func (r *Registry) Source(id string) (Source, Meta, bool) {
	e, ok := lo.Find(r.sources, func(e sourceEntry) bool { return e.meta.ID == id })
	return e.src, e.meta, ok
}

// Embed looks up an embed by id, disabled or not.
func (r *Registry) Embed(id string) (Embed, Meta, bool) {
	e, ok := lo.Find(r.embeds, func(e embedEntry) bool { return e.meta.ID == id })
	return e.emb, e.meta, ok
}

// MetaOf returns the registry's view of a provider, which reflects Disable.
func (r *Registry) MetaOf(id string) (Meta, bool) {
	if s, m, ok := r.Source(id); ok && s != nil {
		return m, true
	}
	if e, m, ok := r.Embed(id); ok && e != nil {
		return m, true
	}
	return Meta{}, false
}

// Metas lists every provider, sources first, including disabled ones.
func (r *Registry) Metas() []Meta {
	out := lo.Map(r.sources, func(e sourceEntry, _ int) Meta { return e.meta })
	return append(out, lo.Map(r.embeds, func(e embedEntry, _ int) Meta { return e.meta })...)
}
