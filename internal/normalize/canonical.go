package normalize

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"streamscout/internal/media"
	"streamscout/internal/provider"
)

// Canonicalize validates a stream and returns a cleaned copy: exactly one of
// Playlist or Qualities is set, Type agrees with it, and Captions is a
// non-nil, de-duplicated list.
func Canonicalize(s *media.Stream) (*media.Stream, error) {
	if s == nil {
		return nil, &provider.NormalizationError{Msg: noPlayableStream}
	}

	out := *s
	out.Playlist = strings.TrimSpace(out.Playlist)
	out.Qualities = lo.PickBy(out.Qualities, func(_ string, f media.File) bool {
		return strings.TrimSpace(f.URL) != ""
	})

	switch {
	case out.Playlist != "" && len(out.Qualities) > 0:
		return nil, &provider.NormalizationError{Msg: "stream has both a playlist and qualities"}
	case out.Playlist != "":
		out.Type = media.StreamHLS
		out.Qualities = nil
		out.QualityOrder = nil
	case len(out.Qualities) > 0:
		out.Type = media.StreamFile
		out.QualityOrder = encounterOrder(&out)
	default:
		return nil, &provider.NormalizationError{Msg: noPlayableStream}
	}

	out.Captions = Captions(out.Captions)
	if len(out.Headers) == 0 {
		out.Headers = nil
	} else {
		out.Headers = maps.Clone(out.Headers)
	}
	return &out, nil
}

// CaptionsFromPayload extracts only the caption list from a raw payload.
func CaptionsFromPayload(raw []byte) []media.Caption {
	return collectCaptions(roots(raw))
}

// PreferredQualities are picked first when choosing one URL from a ladder.
var PreferredQualities = []string{"1080p", "1080"}

// PlayableURL picks the single URL a player should open: the playlist, or
// from a ladder the preferred quality, else the first one the provider
// listed.
func PlayableURL(s *media.Stream) string {
	if s == nil {
		return ""
	}
	if s.Playlist != "" {
		return s.Playlist
	}
	for _, label := range PreferredQualities {
		if f, ok := s.Qualities[label]; ok {
			return f.URL
		}
	}
	labels := encounterOrder(s)
	if len(labels) == 0 {
		return ""
	}
	return s.Qualities[labels[0]].URL
}

// encounterOrder returns every Qualities label, those in QualityOrder first
// and in that order. Labels the order does not mention follow best first.
func encounterOrder(s *media.Stream) []string {
	order := make([]string, 0, len(s.Qualities))
	for _, label := range s.QualityOrder {
		if _, ok := s.Qualities[label]; ok && !slices.Contains(order, label) {
			order = append(order, label)
		}
	}
	for _, label := range QualityLabels(s) {
		if !slices.Contains(order, label) {
			order = append(order, label)
		}
	}
	return order
}

// QualityLabels returns the ladder labels from best to worst.
func QualityLabels(s *media.Stream) []string {
	labels := slices.Collect(maps.Keys(s.Qualities))
	slices.SortFunc(labels, func(a, b string) int {
		ra, rb := resolution(a), resolution(b)
		if ra != rb {
			return rb - ra
		}
		return strings.Compare(a, b)
	})
	return labels
}

// resolution reads the leading number of a label such as "720p"; 0 if none.
func resolution(label string) int {
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(label[:end])
	return n
}
