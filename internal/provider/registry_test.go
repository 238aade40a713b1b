package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{ meta Meta }

func (s stubSource) Meta() Meta { return s.meta }
func (s stubSource) Scrape(context.Context, SourceInput) (*SourceOutput, error) {
	return nil, &NotFoundError{Provider: s.meta.ID}
}

type stubEmbed struct{ meta Meta }

func (e stubEmbed) Meta() Meta { return e.meta }
func (e stubEmbed) Scrape(context.Context, EmbedInput) (*EmbedOutput, error) {
	return nil, &NotFoundError{Provider: e.meta.ID}
}

func ids[T Provider](ps []T) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Meta().ID)
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(
		stubSource{Meta{ID: "alpha", Rank: 10}},
		stubEmbed{Meta{ID: "alpha-player", Rank: 5}},
	))

	s, meta, ok := r.Source("alpha")
	require.True(t, ok)
	assert.NotNil(t, s)
	assert.Equal(t, KindSource, meta.Kind)

	_, meta, ok = r.Embed("alpha-player")
	require.True(t, ok)
	assert.Equal(t, KindEmbed, meta.Kind)

	_, _, ok = r.Source("alpha-player")
	assert.False(t, ok, "embeds are not sources")
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubSource{Meta{ID: "alpha"}}))

	err := r.Register(stubEmbed{Meta{ID: "alpha"}})
	var dup *DuplicateProviderError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "alpha", dup.ID)
}

func TestRegistryRejectsBadID(t *testing.T) {
	r := NewRegistry()
	err := r.Register(stubSource{Meta{ID: "Not Valid"}})
	assert.Equal(t, OutcomeConfiguration, Classify(err))
}

func TestRegistryFiltering(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		stubSource{Meta{ID: "one"}},
		stubSource{Meta{ID: "two", Disabled: true}},
		stubSource{Meta{ID: "three", External: true}},
		stubSource{Meta{ID: "four"}},
		stubEmbed{Meta{ID: "e-one"}},
		stubEmbed{Meta{ID: "e-two", External: true}},
	)
	require.NoError(t, r.Disable("four", "unknown"))

	assert.Equal(t, []string{"one"}, ids(r.Sources(Builtin)))
	assert.Equal(t, []string{"three"}, ids(r.Sources(External)))
	assert.Equal(t, []string{"one", "three"}, ids(r.Sources(All)))
	assert.Equal(t, []string{"e-one"}, ids(r.Embeds(Builtin)))
	assert.Equal(t, []string{"e-one", "e-two"}, ids(r.Embeds(All)))

	meta, ok := r.MetaOf("four")
	require.True(t, ok)
	assert.True(t, meta.Disabled)
	assert.Len(t, r.Metas(), 6)
}

func TestRegistrySeal(t *testing.T) {
	r := NewRegistry()
	r.Seal()

	assert.Error(t, r.Register(stubSource{Meta{ID: "late"}}))
	assert.Error(t, r.Disable("late"))
	assert.Empty(t, r.Sources(All))
}
