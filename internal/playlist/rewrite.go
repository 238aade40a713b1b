package playlist

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/pkg/errors"
)

// IsPlaylist reports whether a response looks like an HLS playlist.
func IsPlaylist(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U"))
}

// Rewrite decodes an HLS playlist fetched from base and re-encodes it with
// every URI resolved against base and routed through proxyBase.
func Rewrite(body []byte, base *url.URL, proxyBase string, headers map[string]string) ([]byte, error) {
	if !IsPlaylist("", body) {
		return nil, errors.New("body is not an HLS playlist")
	}
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, errors.Wrap(err, "decoding playlist")
	}

	proxied := func(uri string) string {
		if uri == "" {
			return uri
		}
		ref, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		return ProxyURL(proxyBase, base.ResolveReference(ref).String(), headers)
	}

	// Decoded variants share alternative renditions, and segments may share
	// keys, so each pointer is rewritten once.
	seen := make(map[any]bool)
	once := func(ptr any, uri *string) {
		if seen[ptr] {
			return
		}
		seen[ptr] = true
		*uri = proxied(*uri)
	}

	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			v.URI = proxied(v.URI)
			for _, alt := range v.Alternatives {
				if alt != nil {
					once(alt, &alt.URI)
				}
			}
		}
		master.ResetCache()
		return master.Encode().Bytes(), nil

	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		if media.Key != nil {
			once(media.Key, &media.Key.URI)
		}
		if media.Map != nil {
			once(media.Map, &media.Map.URI)
		}
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			seg.URI = proxied(seg.URI)
			if seg.Key != nil {
				once(seg.Key, &seg.Key.URI)
			}
			if seg.Map != nil {
				once(seg.Map, &seg.Map.URI)
			}
		}
		media.ResetCache()
		return media.Encode().Bytes(), nil

	default:
		return nil, errors.Errorf("unknown playlist type %v", listType)
	}
}
