// Package api exposes resolution over HTTP: POST /api/scrape runs the
// resolver, GET /api/proxy is the passthrough the returned streams point at,
// and GET /api/providers lists the registry.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"streamscout/internal/media"
	"streamscout/internal/provider"
	"streamscout/internal/runner"
)

// maxRequestBody bounds scrape request bodies.
const maxRequestBody = 64 << 10

type resolver interface {
	RunAll(ctx context.Context, opts runner.RunOptions) (*media.RunOutput, error)
	RunSourceScraper(ctx context.Context, id string, opts runner.RunOptions) (*provider.SourceOutput, error)
	RunEmbedScraper(ctx context.Context, id, url string, opts runner.RunOptions) (*provider.EmbedOutput, error)
	Registry() *provider.Registry
}

var _ resolver = (*runner.Runner)(nil)

// metadataLookup fills in a descriptor from a TMDB id.
type metadataLookup interface {
	Configured() bool
	Lookup(ctx context.Context, t media.MediaType, id string, season, episode int) (media.ScrapeMedia, error)
}

// Defaults apply to scrape requests that leave the field unset. ProxyURL
// only applies to runs whose effective target is the browser.
type Defaults struct {
	Target                  provider.Target
	ConsistentIPForRequests bool
	SourceOrder             []string
	EmbedOrder              []string
	ProxyURL                string
	Timeout                 time.Duration
}

// Handler serves the API.
type Handler struct {
	Resolver resolver
	Metadata metadataLookup
	Proxy    *ProxyHandler
	Defaults Defaults
	Logger   *log.Logger
}

// NewHandler returns a handler over res. metadata may be nil.
func NewHandler(res resolver, metadata metadataLookup, proxy *ProxyHandler, defaults Defaults, logger *log.Logger) *Handler {
	return &Handler{Resolver: res, Metadata: metadata, Proxy: proxy, Defaults: defaults, Logger: logger}
}

// Response is the envelope of every JSON reply.
type Response struct {
	OK     bool   `json:"ok"`
	RunID  string `json:"runId,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type mediaRequest struct {
	Type        string          `json:"type"`
	TMDBID      string          `json:"tmdbId"`
	IMDBID      string          `json:"imdbId"`
	Title       string          `json:"title"`
	ReleaseYear int             `json:"releaseYear"`
	Season      *media.Numbered `json:"season"`
	Episode     *media.Numbered `json:"episode"`
}

type scrapeRequest struct {
	Action string        `json:"action"`
	ID     string        `json:"id"`
	URL    string        `json:"url"`
	Media  *mediaRequest `json:"media"`

	SourceOrder             []string `json:"sourceOrder"`
	EmbedOrder              []string `json:"embedOrder"`
	ProxyURL                string   `json:"proxyUrl"`
	Target                  string   `json:"target"`
	ConsistentIPForRequests *bool    `json:"consistentIpForRequests"`
}

const (
	actionRunAll    = "runAll"
	actionRunSource = "runSource"
	actionRunEmbed  = "runEmbed"
)

// badRequest marks input errors so they map to 400.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &badRequest{msg: errors.Errorf(format, args...).Error()}
}

// Scrape handles POST /api/scrape.
func (h *Handler) Scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "malformed request body: " + err.Error()})
		return
	}

	ctx := r.Context()
	if h.Defaults.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Defaults.Timeout)
		defer cancel()
	}

	opts, err := h.runOptions(req)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	var runID string
	opts.Events.OnInit = func(id string, _ []string) { runID = id }

	switch req.Action {
	case "", actionRunAll:
		opts.Media, err = h.buildMedia(ctx, req.Media)
		if err != nil {
			h.fail(w, "", err)
			return
		}
		out, err := h.Resolver.RunAll(ctx, opts)
		if err != nil {
			h.fail(w, runID, err)
			return
		}
		if out == nil {
			writeJSON(w, http.StatusNotFound, Response{RunID: runID, Error: "no stream found"})
			return
		}
		writeJSON(w, http.StatusOK, Response{OK: true, RunID: runID, Output: out})

	case actionRunSource:
		if req.ID == "" {
			h.fail(w, "", invalid("runSource requires id"))
			return
		}
		opts.Media, err = h.buildMedia(ctx, req.Media)
		if err != nil {
			h.fail(w, "", err)
			return
		}
		out, err := h.Resolver.RunSourceScraper(ctx, req.ID, opts)
		if err != nil {
			h.fail(w, "", err)
			return
		}
		writeJSON(w, http.StatusOK, Response{OK: true, Output: out})

	case actionRunEmbed:
		if req.ID == "" || strings.TrimSpace(req.URL) == "" {
			h.fail(w, "", invalid("runEmbed requires id and url"))
			return
		}
		out, err := h.Resolver.RunEmbedScraper(ctx, req.ID, req.URL, opts)
		if err != nil {
			h.fail(w, "", err)
			return
		}
		writeJSON(w, http.StatusOK, Response{OK: true, Output: out})

	default:
		h.fail(w, "", invalid("unknown action %q", req.Action))
	}
}

// Providers handles GET /api/providers.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{OK: true, Output: h.Resolver.Registry().Metas()})
}

func (h *Handler) runOptions(req scrapeRequest) (runner.RunOptions, error) {
	d := h.Defaults
	opts := runner.RunOptions{
		Target:                  d.Target,
		ConsistentIPForRequests: d.ConsistentIPForRequests,
		SourceOrder:             d.SourceOrder,
		EmbedOrder:              d.EmbedOrder,
		ProxyURL:                d.ProxyURL,
	}

	if req.Target != "" {
		t, ok := provider.ParseTarget(req.Target)
		if !ok {
			return opts, invalid("unknown target %q", req.Target)
		}
		opts.Target = t
	}
	if req.ConsistentIPForRequests != nil {
		opts.ConsistentIPForRequests = *req.ConsistentIPForRequests
	}
	if req.SourceOrder != nil {
		opts.SourceOrder = req.SourceOrder
	}
	if req.EmbedOrder != nil {
		opts.EmbedOrder = req.EmbedOrder
	}
	switch {
	case req.ProxyURL != "":
		opts.ProxyURL = req.ProxyURL
	case opts.Target != provider.TargetBrowser:
		opts.ProxyURL = ""
	}
	return opts, nil
}

// buildMedia turns the request descriptor into ScrapeMedia, asking TMDB for
// the title when the caller only sent an id. Without a TMDB key an id-only
// descriptor is passed on as is; sources keyed by TMDB id can still use it.
func (h *Handler) buildMedia(ctx context.Context, req *mediaRequest) (media.ScrapeMedia, error) {
	if req == nil {
		return media.ScrapeMedia{}, invalid("media is required")
	}
	t, err := media.ParseMediaType(req.Type)
	if err != nil {
		return media.ScrapeMedia{}, &badRequest{msg: err.Error()}
	}
	if t == media.Show && (req.Season == nil || req.Episode == nil) {
		return media.ScrapeMedia{}, invalid("show requests need season and episode")
	}

	if strings.TrimSpace(req.Title) == "" && req.TMDBID != "" && h.Metadata != nil && h.Metadata.Configured() {
		season, episode := 0, 0
		if t == media.Show {
			season, episode = req.Season.Number, req.Episode.Number
		}
		m, err := h.Metadata.Lookup(ctx, t, req.TMDBID, season, episode)
		if err != nil {
			return media.ScrapeMedia{}, errors.Wrap(err, "tmdb lookup")
		}
		return m, nil
	}

	var m media.ScrapeMedia
	if t == media.Show {
		m = media.NewShow(req.TMDBID, req.Title, req.ReleaseYear, *req.Season, *req.Episode)
	} else {
		m = media.NewMovie(req.TMDBID, req.Title, req.ReleaseYear)
	}
	m.IMDBID = req.IMDBID
	if err := m.Validate(); err != nil {
		return media.ScrapeMedia{}, &badRequest{msg: err.Error()}
	}
	return m, nil
}

func (h *Handler) fail(w http.ResponseWriter, runID string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("scrape failed", "run", runID, "status", status, "err", err)
	} else {
		h.Logger.Debug("scrape rejected", "run", runID, "status", status, "err", err)
	}
	msg := err.Error()
	if status == http.StatusGatewayTimeout {
		msg = "run timed out before any provider succeeded: " + msg
	}
	writeJSON(w, status, Response{RunID: runID, Error: msg})
}

// StatusFor maps an error to the HTTP status the API reports for it.
func StatusFor(err error) int {
	var br *badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch provider.Classify(err) {
	case provider.OutcomeNotFound, provider.OutcomeNormalization:
		return http.StatusNotFound
	case provider.OutcomeBlocked, provider.OutcomeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
