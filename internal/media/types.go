// Package media defines shared types for the streamscout resolver.
package media

import (
	"fmt"
	"strconv"
)

// MediaType represents whether content is a movie or TV show.
type MediaType int

const (
	Movie MediaType = iota
	Show
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case Show:
		return "show"
	default:
		return "unknown"
	}
}

// ParseMediaType accepts the spellings callers commonly send.
func ParseMediaType(s string) (MediaType, error) {
	switch s {
	case "movie", "movies", "film":
		return Movie, nil
	case "show", "tv", "series":
		return Show, nil
	default:
		return Movie, fmt.Errorf("unknown media type %q", s)
	}
}

// Numbered identifies a season or episode by its ordinal and its TMDB id.
type Numbered struct {
	Number int    `json:"number"`
	TMDBID string `json:"tmdbId"`
}

// ScrapeMedia describes the content to resolve. Construct it with NewMovie or
// NewShow; the zero value is not valid.
type ScrapeMedia struct {
	Type        MediaType
	Title       string
	ReleaseYear int
	TMDBID      string
	IMDBID      string

	season  *Numbered
	episode *Numbered
}

// NewMovie returns a movie descriptor.
func NewMovie(tmdbID, title string, year int) ScrapeMedia {
	return ScrapeMedia{Type: Movie, TMDBID: tmdbID, Title: title, ReleaseYear: year}
}

// NewShow returns a show descriptor pinned to one episode.
func NewShow(tmdbID, title string, year int, season, episode Numbered) ScrapeMedia {
	return ScrapeMedia{
		Type:        Show,
		TMDBID:      tmdbID,
		Title:       title,
		ReleaseYear: year,
		season:      &season,
		episode:     &episode,
	}
}

// Season returns the season of a show. ok is false for movies.
func (m ScrapeMedia) Season() (Numbered, bool) {
	if m.Type != Show || m.season == nil {
		return Numbered{}, false
	}
	return *m.season, true
}

// Episode returns the episode of a show. ok is false for movies.
func (m ScrapeMedia) Episode() (Numbered, bool) {
	if m.Type != Show || m.episode == nil {
		return Numbered{}, false
	}
	return *m.episode, true
}

// Validate checks the movie/show invariants.
func (m ScrapeMedia) Validate() error {
	if m.TMDBID == "" && m.Title == "" {
		return fmt.Errorf("media needs a tmdb id or a title")
	}
	switch m.Type {
	case Movie:
		if m.season != nil || m.episode != nil {
			return fmt.Errorf("movie cannot carry season or episode")
		}
	case Show:
		if m.season == nil || m.episode == nil {
			return fmt.Errorf("show requires season and episode")
		}
		if m.season.Number < 0 || m.episode.Number < 0 {
			return fmt.Errorf("season and episode numbers must not be negative")
		}
	default:
		return fmt.Errorf("unknown media type %d", m.Type)
	}
	return nil
}

// String renders a short human label, e.g. "Breaking Bad (2008) S01E02".
func (m ScrapeMedia) String() string {
	label := m.Title
	if label == "" {
		label = "tmdb:" + m.TMDBID
	}
	if m.ReleaseYear > 0 {
		label += " (" + strconv.Itoa(m.ReleaseYear) + ")"
	}
	if s, ok := m.Season(); ok {
		e, _ := m.Episode()
		label += fmt.Sprintf(" S%02dE%02d", s.Number, e.Number)
	}
	return label
}

// StreamType selects which half of a Stream is populated.
type StreamType string

const (
	StreamHLS  StreamType = "hls"
	StreamFile StreamType = "file"
)

// File is one rung of a quality ladder.
type File struct {
	Type string `json:"type"` // container, e.g. "mp4" or "hls"
	URL  string `json:"url"`
}

// CaptionFormat is the subtitle text format.
type CaptionFormat string

const (
	FormatSRT CaptionFormat = "srt"
	FormatVTT CaptionFormat = "vtt"
)

// Caption represents a subtitle track.
type Caption struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	Language string        `json:"language"` // BCP 47 code when known
	Label    string        `json:"label"`    // Display label, e.g. "English - SDH"
	Format   CaptionFormat `json:"format"`
}

// Stream is the canonical resolved media. Exactly one of Playlist or
// Qualities is populated.
type Stream struct {
	Type      StreamType        `json:"type"`
	Playlist  string            `json:"playlist,omitempty"`
	Qualities map[string]File   `json:"qualities,omitempty"`
	Captions  []Caption         `json:"captions"`
	Headers   map[string]string `json:"headers,omitempty"`

	// QualityOrder lists the Qualities labels in the order the provider
	// returned them.
	QualityOrder []string `json:"-"`
}

// RunOutput is the result of a successful resolution.
type RunOutput struct {
	SourceID string  `json:"sourceId"`
	EmbedID  string  `json:"embedId,omitempty"`
	Stream   *Stream `json:"stream"`
}
