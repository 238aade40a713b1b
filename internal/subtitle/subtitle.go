// Package subtitle picks, fetches and converts caption tracks. Players that
// only understand WebVTT get SRT converted on the way through.
package subtitle

import (
	"context"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/media"
)

var (
	// srtTiming matches an SRT cue timing line, e.g. 00:00:01,600 --> 00:00:02,000.
	srtTiming = regexp.MustCompile(`^\s*\d{1,2}:\d{2}:\d{2},\d{3}\s+-->\s+\d{1,2}:\d{2}:\d{2},\d{3}`)

	// srtStamp captures the comma millisecond separator of one timestamp.
	srtStamp = regexp.MustCompile(`(\d{1,2}:\d{2}:\d{2}),(\d{3})`)

	cueIndex = regexp.MustCompile(`^\s*\d+\s*$`)
)

// Filter returns captions matching the preferred language (case-insensitive),
// checked against both the language code and the display label.
func Filter(captions []media.Caption, language string) []media.Caption {
	if language == "" {
		return captions
	}

	lang := strings.ToLower(language)
	var matched []media.Caption

	for _, c := range captions {
		if strings.Contains(strings.ToLower(c.Language), lang) ||
			strings.Contains(strings.ToLower(c.Label), lang) {
			matched = append(matched, c)
		}
	}

	return matched
}

// BestMatch returns the best matching caption for the given language.
// Prefers a non-SDH label match, then the first match.
func BestMatch(captions []media.Caption, language string) *media.Caption {
	filtered := Filter(captions, language)
	if len(filtered) == 0 {
		return nil
	}

	lang := strings.ToLower(language)

	for _, c := range filtered {
		label := strings.ToLower(c.Label)
		if strings.Contains(label, lang) && !strings.Contains(label, "sdh") {
			return &c
		}
	}

	return &filtered[0]
}

// DetectFormat sniffs caption text. Content wins over the content type and
// file name, which are only consulted when the body is inconclusive.
func DetectFormat(body []byte, contentType, name string) (media.CaptionFormat, bool) {
	text := strings.TrimPrefix(string(body), "\ufeff")
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "WEBVTT") {
		return media.FormatVTT, true
	}
	for _, line := range strings.SplitN(trimmed, "\n", 8) {
		if srtTiming.MatchString(line) {
			return media.FormatSRT, true
		}
	}

	switch mime := mimetype.Detect(body); {
	case mime.Is("text/vtt"):
		return media.FormatVTT, true
	case mime.Is("application/x-subrip"):
		return media.FormatSRT, true
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "vtt"):
		return media.FormatVTT, true
	case strings.Contains(ct, "subrip"), strings.Contains(ct, "srt"):
		return media.FormatSRT, true
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".vtt":
		return media.FormatVTT, true
	case ".srt":
		return media.FormatSRT, true
	}

	return "", false
}

// ToVTT converts SRT text to WebVTT: cue index lines are dropped, the comma
// millisecond separator becomes a dot and a WEBVTT header is added if absent.
// Input that is already WebVTT is returned with normalized line endings.
func ToVTT(srt string) string {
	text := strings.TrimPrefix(srt, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if strings.HasPrefix(strings.TrimSpace(text), "WEBVTT") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if cueIndex.MatchString(line) && i+1 < len(lines) && srtTiming.MatchString(lines[i+1]) {
			continue
		}
		if srtTiming.MatchString(line) {
			line = srtStamp.ReplaceAllString(line, "$1.$2")
		}
		out = append(out, line)
	}

	return "WEBVTT\n\n" + strings.TrimLeft(strings.Join(out, "\n"), "\n")
}

// Track is a fetched caption converted to WebVTT.
type Track struct {
	Caption media.Caption
	Source  media.CaptionFormat // format as served
	VTT     []byte
}

// Fetch downloads a caption through f, sniffs its format and converts it to
// WebVTT.
func Fetch(ctx context.Context, f fetcher.Fetcher, c media.Caption, headers map[string]string) (*Track, error) {
	if err := httputil.ValidateURL(c.URL); err != nil {
		return nil, fmt.Errorf("invalid caption URL: %w", err)
	}

	resp, err := f.Fetch(ctx, c.URL, fetcher.Options{
		Headers:      headers,
		ResponseType: fetcher.ResponseText,
		ReadHeaders:  []string{"Content-Type"},
	})
	if err != nil {
		return nil, fmt.Errorf("downloading caption: %w", err)
	}

	name := c.URL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	format, ok := DetectFormat(resp.Body, resp.Headers.Get("Content-Type"), name)
	if !ok {
		format = c.Format
	}

	vtt := resp.Body
	if format == media.FormatSRT {
		vtt = []byte(ToVTT(resp.Text()))
	}

	c.Format = media.FormatVTT
	return &Track{Caption: c, Source: format, VTT: vtt}, nil
}

// Save writes a track into dir as <name>.<language>.vtt and returns the path.
func Save(dir, name string, t *Track) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating subtitle dir: %w", err)
	}

	filename := name
	if t.Caption.Language != "" {
		filename += "." + t.Caption.Language
	}
	filename += ".vtt"

	dest, err := httputil.SafeJoin(dir, filename)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(dest, t.VTT, 0o644); err != nil {
		return "", fmt.Errorf("writing subtitle file: %w", err)
	}
	return dest, nil
}
