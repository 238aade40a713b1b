// Package playlist routes resolved streams through the passthrough proxy:
// it builds proxy URLs and rewrites HLS playlists so every variant, segment
// and key URI stays under the proxy origin.
package playlist

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"streamscout/internal/media"
)

// Query parameter names understood by the proxy endpoint.
const (
	ParamURL     = "url"
	ParamHeaders = "headers"
)

// EncodeTarget base64url-encodes a target URL for the url parameter.
func EncodeTarget(target string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(target))
}

// DecodeTarget accepts a url parameter in any base64 flavour, or a plain
// absolute URL, and returns the target.
func DecodeTarget(param string) (string, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return "", errors.New("missing url parameter")
	}
	if strings.HasPrefix(param, "http://") || strings.HasPrefix(param, "https://") {
		return param, nil
	}

	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding,
	} {
		if b, err := enc.DecodeString(param); err == nil {
			return string(b), nil
		}
	}
	return "", errors.Errorf("url parameter is neither base64 nor an absolute url")
}

// EncodeHeaders packs request headers for the headers parameter.
func EncodeHeaders(h map[string]string) string {
	if len(h) == 0 {
		return ""
	}
	b, _ := json.Marshal(h)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeHeaders is the inverse of EncodeHeaders. Empty input yields nil.
func DecodeHeaders(param string) (map[string]string, error) {
	if param == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(param)
	if err != nil {
		return nil, errors.Wrap(err, "decoding headers parameter")
	}
	var h map[string]string
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, errors.Wrap(err, "parsing headers parameter")
	}
	return h, nil
}

// ProxyURL returns proxyBase?url=<base64url target>, carrying headers along
// when the origin needs them.
func ProxyURL(proxyBase, target string, headers map[string]string) string {
	sep := "?"
	if strings.Contains(proxyBase, "?") {
		sep = "&"
	}
	out := proxyBase + sep + ParamURL + "=" + EncodeTarget(target)
	if h := EncodeHeaders(headers); h != "" {
		out += "&" + ParamHeaders + "=" + h
	}
	return out
}

// ProxyStream returns a copy of s whose playlist, file and caption URLs point
// at the proxy. Relative URLs are left alone since the proxy cannot resolve
// them. Headers move into the proxy URLs and are dropped from the copy.
func ProxyStream(s *media.Stream, proxyBase string) *media.Stream {
	if s == nil || proxyBase == "" {
		return s
	}

	out := *s
	wrap := func(u string) string {
		if !isAbsolute(u) {
			return u
		}
		return ProxyURL(proxyBase, u, s.Headers)
	}

	out.Playlist = wrap(s.Playlist)
	if s.Qualities != nil {
		out.Qualities = make(map[string]media.File, len(s.Qualities))
		for label, f := range s.Qualities {
			f.URL = wrap(f.URL)
			out.Qualities[label] = f
		}
	}
	out.Captions = make([]media.Caption, len(s.Captions))
	for i, c := range s.Captions {
		c.URL = wrap(c.URL)
		out.Captions[i] = c
	}
	out.Headers = nil
	return &out
}

func isAbsolute(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
