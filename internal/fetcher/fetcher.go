// Package fetcher provides the uniform request capability handed to sources
// and embeds. A Fetcher may go direct, through a proxy, or through any other
// transport; providers never touch *http.Client themselves.
package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// BodyType selects how Options.Body is serialized.
type BodyType string

const (
	BodyJSON BodyType = "json"
	BodyForm BodyType = "form"
	BodyRaw  BodyType = "raw"
)

// ResponseType selects how the response body is parsed into Response.Data.
// The empty value decodes JSON when the server says the body is JSON.
type ResponseType string

const (
	ResponseJSON ResponseType = "json"
	ResponseText ResponseType = "text"
)

// Options parameterize a single call.
type Options struct {
	BaseURL string
	Method  string
	Headers map[string]string

	// Query is serialized only for GET-like methods. RawQuery is appended
	// verbatim regardless of method.
	Query    url.Values
	RawQuery string

	Body     any
	BodyType BodyType

	ResponseType ResponseType

	// ReadHeaders lists the response headers to surface in Response.Headers.
	ReadHeaders []string
}

// Response is what every Fetcher returns.
type Response struct {
	StatusCode int
	FinalURL   string
	Headers    http.Header // only the names requested in Options.ReadHeaders
	Body       []byte
	Data       any // decoded JSON, nil for text responses
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrapf(err, "decoding response from %s", r.FinalURL)
	}
	return nil
}

// Fetcher performs one HTTP exchange. Non-2xx responses are returned together
// with a *FetchError so callers can still inspect the body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, rawURL string, opts Options) (*Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return f(ctx, rawURL, opts)
}

// GetText is shorthand for a GET returning the body as text.
func GetText(ctx context.Context, f Fetcher, rawURL string, headers map[string]string) (string, error) {
	resp, err := f.Fetch(ctx, rawURL, Options{Headers: headers, ResponseType: ResponseText})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GetJSON performs a GET and decodes the JSON body into v.
func GetJSON(ctx context.Context, f Fetcher, rawURL string, opts Options, v any) (*Response, error) {
	opts.ResponseType = ResponseJSON
	resp, err := f.Fetch(ctx, rawURL, opts)
	if err != nil {
		return resp, err
	}
	if v != nil {
		if err := resp.Decode(v); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// IsGetLike reports whether a method carries no request body.
func IsGetLike(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// BuildURL joins base and path and applies the query rules: an object query
// is only serialized for GET-like methods, a raw query is always appended.
func BuildURL(rawURL string, opts Options) (string, error) {
	full := rawURL
	if opts.BaseURL != "" {
		full = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(rawURL, "/")
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", errors.Wrapf(err, "parsing url %q", full)
	}

	withObject := IsGetLike(opts.Method) && len(opts.Query) > 0
	raw := strings.TrimPrefix(opts.RawQuery, "?")
	if !withObject && raw == "" {
		return u.String(), nil
	}

	encoded := u.RawQuery
	if withObject {
		q := u.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		encoded = q.Encode()
	}
	if raw != "" {
		if encoded != "" {
			encoded += "&"
		}
		encoded += raw
	}
	u.RawQuery = encoded

	return u.String(), nil
}

// pickHeaders copies only the requested header names.
func pickHeaders(src http.Header, names []string) http.Header {
	out := make(http.Header, len(names))
	for _, name := range names {
		if v := src.Values(name); len(v) > 0 {
			out[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
		}
	}
	return out
}
