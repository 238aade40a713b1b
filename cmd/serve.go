package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streamscout/internal/api"
	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolution API and the passthrough proxy",
	Long: `Serves POST /api/scrape, GET /api/proxy and GET /api/providers.
Point proxy_url at this server's /api/proxy to route streams through it.`,
	Args: cobra.NoArgs,
	RunE: serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default: [server] listen from config)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	listen := cfg.Server.Listen
	if flagListen != "" {
		listen = flagListen
	}

	h := api.NewHandler(a.runner, a.tmdb, newStreamProxy(), api.Defaults{
		Target:                  target(),
		ConsistentIPForRequests: cfg.ConsistentIP,
		SourceOrder:             cfg.SourceOrder,
		EmbedOrder:              cfg.EmbedOrder,
		ProxyURL:                cfg.ProxyURL,
		Timeout:                 cfg.RunTimeout(),
	}, logs.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.Serve(ctx, listen, api.NewRouter(h), logs.Logger)
}

// newStreamProxy builds the /api/proxy handler. Unless private upstreams are
// allowed it dials through a client that refuses non-public addresses.
func newStreamProxy() *api.ProxyHandler {
	allow := cfg.Server.AllowPrivateUpstreams
	client := httputil.NewPublicClient(cfg.HTTPTimeout())
	if allow {
		client = httputil.NewClient(cfg.HTTPTimeout())
	}
	f := fetcher.NewStandardFetcher(client, fetcher.WithRateLimit(cfg.RateLimit))
	return api.NewProxyHandler(f, logs.Logger, api.AllowPrivateUpstreams(allow))
}
