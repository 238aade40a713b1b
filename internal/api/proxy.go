package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/playlist"
)

// passedHeaders are upstream response headers copied onto proxied replies.
var passedHeaders = []string{"Content-Type", "Cache-Control", "Last-Modified", "ETag"}

// ProxyHandler implements GET /api/proxy?url=<base64url>&headers=<base64url json>.
// It fetches the target with the given headers and, for HLS playlists,
// rewrites every URI inside so the whole chain stays on this endpoint.
// Loopback, private and link-local targets are refused unless
// AllowPrivateUpstreams is set; pair f with httputil.NewPublicClient so names
// resolving to such addresses are refused as well.
type ProxyHandler struct {
	fetcher      fetcher.Fetcher
	logger       *log.Logger
	allowPrivate bool
}

// ProxyOption configures a ProxyHandler.
type ProxyOption func(*ProxyHandler)

// AllowPrivateUpstreams lets the proxy fetch from non-public addresses.
func AllowPrivateUpstreams(allow bool) ProxyOption {
	return func(p *ProxyHandler) { p.allowPrivate = allow }
}

// NewProxyHandler returns a proxy that fetches through f.
func NewProxyHandler(f fetcher.Fetcher, logger *log.Logger, opts ...ProxyOption) *ProxyHandler {
	p := &ProxyHandler{fetcher: f, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := playlist.DecodeTarget(q.Get(playlist.ParamURL))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	validate := httputil.ValidatePublicURL
	if p.allowPrivate {
		validate = httputil.ValidateURL
	}
	if err := validate(target); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, httputil.ErrPrivateAddress) {
			status = http.StatusForbidden
		}
		writeJSON(w, status, Response{Error: err.Error()})
		return
	}
	headers, err := playlist.DecodeHeaders(q.Get(playlist.ParamHeaders))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	resp, err := p.fetcher.Fetch(r.Context(), target, fetcher.Options{
		Headers:      headers,
		ResponseType: fetcher.ResponseText,
		ReadHeaders:  passedHeaders,
	})

	var contentType string
	if resp != nil {
		contentType = resp.Headers.Get("Content-Type")
		if reason := fetcher.DetectChallenge(contentType, resp.Body); reason != "" {
			err = &fetcher.UpstreamBlockedError{URL: target, Reason: reason}
		}
	}
	if err != nil {
		p.writeUpstreamError(w, resp, target, err)
		return
	}

	body := resp.Body
	if playlist.IsPlaylist(contentType, body) {
		base, perr := url.Parse(resp.FinalURL)
		if perr != nil || base.Host == "" {
			base, _ = url.Parse(target)
		}
		rewritten, rerr := playlist.Rewrite(body, base, selfURL(r), headers)
		if rerr != nil {
			p.logger.Warn("playlist rewrite failed", "url", target, "err", rerr)
		} else {
			body = rewritten
			contentType = "application/vnd.apple.mpegurl"
		}
	}
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}

	for _, name := range passedHeaders {
		if v := resp.Headers.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Final-Destination", resp.FinalURL)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeUpstreamError answers 502 for challenge pages and transport failures
// and mirrors the upstream status otherwise.
func (p *ProxyHandler) writeUpstreamError(w http.ResponseWriter, resp *fetcher.Response, target string, err error) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if errors.Is(err, httputil.ErrPrivateAddress) {
		writeJSON(w, http.StatusForbidden, Response{Error: err.Error()})
		return
	}

	var blocked *fetcher.UpstreamBlockedError
	if errors.As(err, &blocked) {
		p.logger.Warn("upstream blocked", "url", target, "reason", blocked.Reason)
		writeJSON(w, http.StatusBadGateway, Response{Error: err.Error()})
		return
	}

	var fe *fetcher.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 && resp != nil {
		if ct := resp.Headers.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(fe.StatusCode)
		_, _ = w.Write(resp.Body)
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}
	p.logger.Warn("proxy fetch failed", "url", target, "err", err)
	writeJSON(w, http.StatusBadGateway, Response{Error: err.Error()})
}

// selfURL is the absolute URL of the proxy endpoint as the client reached it.
func selfURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.Path
}
