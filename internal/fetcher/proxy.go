package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// finalDestinationHeader is set by the proxy to the last URL it fetched.
const finalDestinationHeader = "X-Final-Destination"

// ProxyFetcher routes every call through a passthrough proxy as
// GET proxyBase?url=<original>, delegating the transport to inner.
type ProxyFetcher struct {
	proxyBase string
	inner     Fetcher
}

// NewSimpleProxyFetcher returns a fetcher that tunnels through proxyBase.
func NewSimpleProxyFetcher(proxyBase string, inner Fetcher) *ProxyFetcher {
	return &ProxyFetcher{proxyBase: proxyBase, inner: inner}
}

// ProxyBase returns the configured proxy endpoint.
func (p *ProxyFetcher) ProxyBase() string { return p.proxyBase }

// Fetch implements Fetcher. Only GET-like calls can be tunnelled since the
// proxy contract has no request body.
func (p *ProxyFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if !IsGetLike(opts.Method) {
		return nil, &FetchError{URL: rawURL, Err: errors.Errorf("simple proxy cannot tunnel %s requests", opts.Method)}
	}

	original, err := BuildURL(rawURL, opts)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	proxyURL, err := url.Parse(p.proxyBase)
	if err != nil {
		return nil, &FetchError{URL: p.proxyBase, Err: errors.Wrap(err, "parsing proxy url")}
	}
	q := proxyURL.Query()
	q.Set("url", original)
	proxyURL.RawQuery = q.Encode()

	readHeaders := append([]string{finalDestinationHeader, "Content-Type"}, opts.ReadHeaders...)
	rt := opts.ResponseType

	resp, err := p.inner.Fetch(ctx, proxyURL.String(), Options{
		Method:       http.MethodGet,
		Headers:      opts.Headers,
		ResponseType: ResponseText,
		ReadHeaders:  readHeaders,
	})
	if resp != nil {
		if reason := DetectChallenge(resp.Headers.Get("Content-Type"), resp.Body); reason != "" {
			return resp, &UpstreamBlockedError{URL: original, Reason: reason}
		}
	}
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.URL = original
		}
		return resp, err
	}

	resp.FinalURL = original
	if dest := resp.Headers.Get(finalDestinationHeader); dest != "" {
		resp.FinalURL = dest
	}
	contentType := resp.Headers.Get("Content-Type")
	resp.Headers = pickHeaders(resp.Headers, opts.ReadHeaders)

	if err := decodeData(resp, rt, contentType); err != nil {
		return resp, &FetchError{URL: original, StatusCode: resp.StatusCode, Err: err}
	}
	return resp, nil
}

// IsProxied reports whether f tunnels through a proxy.
func IsProxied(f Fetcher) bool {
	_, ok := f.(*ProxyFetcher)
	return ok
}
