package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/provider"
	"streamscout/internal/provider/all"
	"streamscout/internal/runner"
	"streamscout/internal/tmdb"
)

// app is everything a command needs, wired from cfg.
type app struct {
	fetcher fetcher.Fetcher
	proxied fetcher.Fetcher // nil without proxy_url
	runner  *runner.Runner
	tmdb    *tmdb.Client
}

func newApp() (*app, error) {
	std := fetcher.NewStandardFetcher(
		httputil.NewClient(cfg.HTTPTimeout()),
		fetcher.WithRateLimit(cfg.RateLimit),
	)

	var proxied fetcher.Fetcher
	if cfg.ProxyURL != "" {
		proxied = fetcher.NewSimpleProxyFetcher(cfg.ProxyURL, std)
	}

	reg, err := all.BuildRegistry(all.Options{
		FlixHQBase:  cfg.FlixHQBase,
		ConsumetURL: cfg.ConsumetURL,
		Disabled:    cfg.Disabled,
	})
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	return &app{
		fetcher: std,
		proxied: proxied,
		runner: runner.New(reg,
			runner.WithExternal(cfg.IncludeExternal),
			runner.WithFetchers(std, proxied),
			runner.WithEvents(runner.LogEvents(logs.Logger)),
		),
		tmdb: tmdb.New(cfg.TMDBAPIKey,
			tmdb.WithFetcher(std),
			tmdb.WithLogger(logs.Logger),
		),
	}, nil
}

// target returns the configured playback target.
func target() provider.Target {
	t, _ := provider.ParseTarget(cfg.Target)
	return t
}

// streamProxy is the proxy base returned streams are rewritten through.
// Only browsers need it; native players send the headers themselves.
func streamProxy() string {
	if target() == provider.TargetBrowser {
		return cfg.ProxyURL
	}
	return ""
}

func (a *app) runOptions() runner.RunOptions {
	return runner.RunOptions{
		Target:                  target(),
		ConsistentIPForRequests: cfg.ConsistentIP,
		SourceOrder:             cfg.SourceOrder,
		EmbedOrder:              cfg.EmbedOrder,
		ProxyURL:                streamProxy(),
	}
}

// withRunTimeout applies the configured overall deadline.
func withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := cfg.RunTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
