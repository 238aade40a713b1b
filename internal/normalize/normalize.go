// Package normalize turns heterogeneous provider responses into the canonical
// media.Stream shape.
//
// A raw payload is walked with jsonparser rather than decoded into maps so
// that document order survives: "first encountered" is meaningful for
// captions and quality ladders.
package normalize

import (
	"path"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/samber/mo"

	"streamscout/internal/media"
	"streamscout/internal/provider"
)

// noPlayableStream is the message for payloads without any usable URL.
const noPlayableStream = "no playable stream found"

// Strategy is one way of reading a playable stream out of a JSON object.
type Strategy struct {
	Name    string
	Extract func(obj []byte) mo.Option[media.Stream]
}

// Strategies are tried in order; the first match wins.
var Strategies = []Strategy{
	{Name: "declared-hls", Extract: declaredHLS},
	{Name: "file-qualities", Extract: fileQualities},
	{Name: "playlist-field", Extract: playlistField},
	{Name: "sources-list", Extract: sourcesList},
}

// urlKeys are the field names providers use for a URL, in preference order.
var urlKeys = []string{"url", "src", "uri", "file", "track", "vtt", "path"}

// Payload normalizes a raw provider response. It accepts the stream object
// itself or any of the usual wrappers ({"stream": ...}, {"output": ...},
// {"stream": [...]}).
func Payload(raw []byte) (*media.Stream, error) {
	objs := roots(raw)
	if len(objs) == 0 {
		return nil, &provider.NormalizationError{Msg: "payload is not a JSON object"}
	}

	for _, strategy := range Strategies {
		for _, obj := range objs {
			stream, ok := strategy.Extract(obj).Get()
			if !ok {
				continue
			}
			stream.Headers = headers(obj)
			stream.Captions = collectCaptions(objs)
			return Canonicalize(&stream)
		}
	}

	return nil, &provider.NormalizationError{Msg: noPlayableStream}
}

// roots lists the objects that may hold the stream, innermost first.
func roots(raw []byte) [][]byte {
	var out [][]byte
	for _, keys := range [][]string{{"stream"}, {"output", "stream"}, {"output"}, nil} {
		v, typ, _, err := jsonparser.Get(raw, keys...)
		if err != nil {
			continue
		}
		switch typ {
		case jsonparser.Object:
			out = append(out, v)
		case jsonparser.Array:
			_, _ = jsonparser.ArrayEach(v, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
				if t == jsonparser.Object {
					out = append(out, item)
				}
			})
		}
	}
	return out
}

func declaredHLS(obj []byte) mo.Option[media.Stream] {
	if !strings.EqualFold(stringField(obj, "type"), "hls") {
		return mo.None[media.Stream]()
	}
	playlist := stringField(obj, "playlist")
	if playlist == "" {
		return mo.None[media.Stream]()
	}
	return mo.Some(media.Stream{Type: media.StreamHLS, Playlist: playlist})
}

// fileQualities reads a quality ladder. A missing type is accepted as long as
// a ladder is present.
func fileQualities(obj []byte) mo.Option[media.Stream] {
	if t := stringField(obj, "type"); t != "" && !strings.EqualFold(t, "file") {
		return mo.None[media.Stream]()
	}

	v, typ, _, err := jsonparser.Get(obj, "qualities")
	if err != nil {
		return mo.None[media.Stream]()
	}

	qualities := make(map[string]media.File)
	var order []string
	add := func(label string, value []byte, t jsonparser.ValueType) {
		if label == "" {
			return
		}
		if _, seen := qualities[label]; seen {
			return
		}
		if f, ok := fileEntry(value, t).Get(); ok {
			qualities[label] = f
			order = append(order, label)
		}
	}

	switch typ {
	case jsonparser.Object:
		_ = jsonparser.ObjectEach(v, func(key, value []byte, t jsonparser.ValueType, _ int) error {
			add(string(key), value, t)
			return nil
		})
	case jsonparser.Array:
		_, _ = jsonparser.ArrayEach(v, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
			if t != jsonparser.Object {
				return
			}
			label := firstString(item, "quality", "label", "resolution")
			add(label, item, t)
		})
	}

	if len(qualities) == 0 {
		return mo.None[media.Stream]()
	}
	return mo.Some(media.Stream{Type: media.StreamFile, Qualities: qualities, QualityOrder: order})
}

func playlistField(obj []byte) mo.Option[media.Stream] {
	if playlist := stringField(obj, "playlist"); playlist != "" {
		return mo.Some(media.Stream{Type: media.StreamHLS, Playlist: playlist})
	}
	return mo.None[media.Stream]()
}

// sourcesList reads the {"sources": [...]} list player configs and scraping
// APIs return. An adaptive HLS entry wins over a file ladder.
func sourcesList(obj []byte) mo.Option[media.Stream] {
	v, typ, _, err := jsonparser.Get(obj, "sources")
	if err != nil || typ != jsonparser.Array {
		return mo.None[media.Stream]()
	}

	var adaptive, firstHLS string
	var order []string
	qualities := make(map[string]media.File)
	_, _ = jsonparser.ArrayEach(v, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
		f, ok := fileEntry(item, t).Get()
		if !ok {
			return
		}
		var label string
		if t == jsonparser.Object {
			label = firstString(item, "quality", "label", "resolution")
			if m3u8, err := jsonparser.GetBoolean(item, "isM3U8"); err == nil && m3u8 {
				f.Type = "hls"
			}
		}
		if isHLS(f) {
			if firstHLS == "" {
				firstHLS = f.URL
			}
			if adaptive == "" && (label == "" || strings.EqualFold(label, "auto") || strings.EqualFold(label, "default")) {
				adaptive = f.URL
			}
			return
		}
		if label == "" {
			label = "unknown"
		}
		if _, seen := qualities[label]; !seen {
			qualities[label] = f
			order = append(order, label)
		}
	})

	switch {
	case adaptive != "":
		return mo.Some(media.Stream{Type: media.StreamHLS, Playlist: adaptive})
	case len(qualities) > 0:
		return mo.Some(media.Stream{Type: media.StreamFile, Qualities: qualities, QualityOrder: order})
	case firstHLS != "":
		return mo.Some(media.Stream{Type: media.StreamHLS, Playlist: firstHLS})
	}
	return mo.None[media.Stream]()
}

func isHLS(f media.File) bool {
	t := strings.ToLower(f.Type)
	return t == "hls" || strings.Contains(t, "mpegurl") || containerOf(f.URL) == "hls"
}

// fileEntry reads one ladder rung: a bare URL string or an object with a URL
// under one of the known keys.
func fileEntry(value []byte, t jsonparser.ValueType) mo.Option[media.File] {
	var u, container string
	switch t {
	case jsonparser.String:
		u, _ = jsonparser.ParseString(value)
	case jsonparser.Object:
		u = firstString(value, "url", "src", "file")
		container = stringField(value, "type")
	}
	u = strings.TrimSpace(u)
	if u == "" {
		return mo.None[media.File]()
	}
	if container == "" {
		container = containerOf(u)
	}
	return mo.Some(media.File{Type: container, URL: u})
}

func containerOf(rawURL string) string {
	ext := strings.ToLower(path.Ext(stripQuery(rawURL)))
	switch ext {
	case ".m3u8":
		return "hls"
	case "":
		return "mp4"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

func headers(obj []byte) map[string]string {
	v, typ, _, err := jsonparser.Get(obj, "headers")
	if err != nil || typ != jsonparser.Object {
		return nil
	}
	out := make(map[string]string)
	_ = jsonparser.ObjectEach(v, func(key, value []byte, t jsonparser.ValueType, _ int) error {
		if t == jsonparser.String {
			if s, err := jsonparser.ParseString(value); err == nil && s != "" {
				out[string(key)] = s
			}
		}
		return nil
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// stringField returns obj[key] when it is a non-empty JSON string.
func stringField(obj []byte, key string) string {
	v, typ, _, err := jsonparser.Get(obj, key)
	if err != nil || typ != jsonparser.String {
		return ""
	}
	s, err := jsonparser.ParseString(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstString(obj []byte, keys ...string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
