package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/ratelimit"

	"streamscout/internal/httputil"
)

// StandardFetcher performs requests directly with an *http.Client.
// It is stateless apart from the optional limiter and safe for concurrent use.
type StandardFetcher struct {
	client    *http.Client
	limiter   ratelimit.Limiter
	userAgent string
}

// Option configures a StandardFetcher.
type Option func(*StandardFetcher)

// WithRateLimit paces requests to at most rps per second across all callers.
// Zero or negative disables pacing.
func WithRateLimit(rps int) Option {
	return func(f *StandardFetcher) {
		if rps > 0 {
			f.limiter = ratelimit.New(rps)
		}
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *StandardFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewStandardFetcher wraps client. A nil client gets httputil.NewClient.
func NewStandardFetcher(client *http.Client, opts ...Option) *StandardFetcher {
	if client == nil {
		client = httputil.NewClient(0)
	}
	f := &StandardFetcher{
		client:    client,
		limiter:   ratelimit.NewUnlimited(),
		userAgent: httputil.UserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *StandardFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	full, err := BuildURL(rawURL, opts)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if err := httputil.ValidateURL(full); err != nil {
		return nil, &FetchError{URL: full, Err: err}
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, &FetchError{URL: full, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, &FetchError{URL: full, Err: errors.Wrap(err, "creating request")}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	f.limiter.Take()

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{URL: full, Err: errors.Wrap(err, "request failed")}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodySize))
	if err != nil {
		return nil, &FetchError{URL: full, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "reading response")}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Headers:    pickHeaders(resp.Header, opts.ReadHeaders),
		Body:       data,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &FetchError{URL: full, StatusCode: resp.StatusCode}
	}

	if err := decodeData(out, opts.ResponseType, resp.Header.Get("Content-Type")); err != nil {
		return out, &FetchError{URL: full, StatusCode: resp.StatusCode, Err: err}
	}

	return out, nil
}

// encodeBody serializes opts.Body according to opts.BodyType. An empty
// BodyType is inferred from the Go type of the body.
func encodeBody(opts Options) (io.Reader, string, error) {
	if opts.Body == nil {
		return nil, "", nil
	}

	bodyType := opts.BodyType
	if bodyType == "" {
		switch opts.Body.(type) {
		case url.Values:
			bodyType = BodyForm
		case string, []byte, io.Reader:
			bodyType = BodyRaw
		default:
			bodyType = BodyJSON
		}
	}

	switch bodyType {
	case BodyJSON:
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, "", errors.Wrap(err, "encoding json body")
		}
		return bytes.NewReader(b), "application/json", nil
	case BodyForm:
		var form url.Values
		switch v := opts.Body.(type) {
		case url.Values:
			form = v
		case map[string]string:
			form = url.Values{}
			for k, val := range v {
				form.Set(k, val)
			}
		default:
			return nil, "", errors.Errorf("form body must be url.Values or map[string]string, got %T", opts.Body)
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	case BodyRaw:
		switch v := opts.Body.(type) {
		case string:
			return strings.NewReader(v), "", nil
		case []byte:
			return bytes.NewReader(v), "", nil
		case io.Reader:
			return v, "", nil
		default:
			return nil, "", errors.Errorf("raw body must be string, []byte or io.Reader, got %T", opts.Body)
		}
	default:
		return nil, "", errors.Errorf("unknown body type %q", bodyType)
	}
}

// decodeData fills out.Data when the response is (or is asked to be) JSON.
func decodeData(out *Response, rt ResponseType, contentType string) error {
	switch rt {
	case ResponseText:
		return nil
	case ResponseJSON:
		if err := json.Unmarshal(out.Body, &out.Data); err != nil {
			return errors.Wrap(err, "parsing json response")
		}
		return nil
	default:
		if strings.Contains(strings.ToLower(contentType), "json") {
			// Servers mislabel bodies often enough that a failed sniff is not an error.
			_ = json.Unmarshal(out.Body, &out.Data)
		}
		return nil
	}
}
