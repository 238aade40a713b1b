// Package all wires the built-in providers into a registry.
package all

import (
	"streamscout/internal/provider"
	"streamscout/internal/provider/embeds"
	"streamscout/internal/provider/sources"
)

// Options select provider endpoints and which ids start disabled.
type Options struct {
	FlixHQBase  string
	TwoEmbedURL string
	ConsumetURL string
	Disabled    []string
}

// Providers returns every built-in provider in registration order. Order
// breaks rank ties, so it is part of the behaviour.
func Providers(opts Options) []provider.Provider {
	flixBase := opts.FlixHQBase
	if flixBase == "" {
		flixBase = "flixhq.to"
	}
	return []provider.Provider{
		sources.NewFlixHQ(flixBase),
		sources.NewTwoEmbed(opts.TwoEmbedURL),
		sources.NewConsumet(opts.ConsumetURL),

		embeds.NewVidCloud(),
		embeds.NewUpCloud(),
		embeds.NewTwoEmbedPlayer(),
	}
}

// BuildRegistry registers Providers(opts), applies Disabled and seals the
// registry.
func BuildRegistry(opts Options) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	if err := reg.Register(Providers(opts)...); err != nil {
		return nil, err
	}
	if err := reg.Disable(opts.Disabled...); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}
