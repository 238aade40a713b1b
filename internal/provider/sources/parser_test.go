package sources

import (
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/media"
)

func loadTestDoc(t *testing.T, filename string) *goquery.Document {
	t.Helper()
	data, err := os.ReadFile("testdata/" + filename)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", filename, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("parsing test fixture %s: %v", filename, err)
	}
	return doc
}

func TestParseSearchResults(t *testing.T) {
	doc := loadTestDoc(t, "search_results.html")
	results := parseSearchResults(doc)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Title != "The Exorcist" {
		t.Errorf("result[0].Title = %q, want 'The Exorcist'", results[0].Title)
	}
	if results[0].Type != media.Movie {
		t.Errorf("result[0].Type = %v, want movie", results[0].Type)
	}
	if results[0].Year != 1973 {
		t.Errorf("result[0].Year = %d, want 1973", results[0].Year)
	}
	if results[0].ID != "movie/free-the-exorcist-hd-75043" {
		t.Errorf("result[0].ID = %q, want 'movie/free-the-exorcist-hd-75043'", results[0].ID)
	}

	if results[1].Title != "Breaking Bad" {
		t.Errorf("result[1].Title = %q, want 'Breaking Bad'", results[1].Title)
	}
	if results[1].Type != media.Show {
		t.Errorf("result[1].Type = %v, want show", results[1].Type)
	}
	if results[1].Year != 0 {
		t.Errorf("result[1].Year = %d, want 0 for a show card", results[1].Year)
	}
}

func TestParseSearchResultsMalicious(t *testing.T) {
	doc := loadTestDoc(t, "search_malicious.html")
	results := parseSearchResults(doc)

	if len(results) < 2 {
		t.Fatalf("expected at least 2 results from malicious HTML, got %d", len(results))
	}
	if results[0].Title != "'; rm -rf / #" {
		t.Errorf("shell injection title = %q, want literal string", results[0].Title)
	}
	if results[1].Title != "$(whoami)" {
		t.Errorf("command substitution title = %q, want literal string", results[1].Title)
	}
}

func TestParseLastPage(t *testing.T) {
	if got := parseLastPage(loadTestDoc(t, "search_results.html")); got != 7 {
		t.Errorf("parseLastPage() = %d, want 7", got)
	}
	if got := parseLastPage(loadTestDoc(t, "seasons.html")); got != 1 {
		t.Errorf("parseLastPage() without pagination = %d, want 1", got)
	}
}

func TestParseSeasons(t *testing.T) {
	seasons := parseSeasons(loadTestDoc(t, "seasons.html"))
	if len(seasons) != 3 {
		t.Fatalf("expected 3 seasons, got %d", len(seasons))
	}
	if seasons[1].Number != 2 || seasons[1].ID != "1002" {
		t.Errorf("seasons[1] = %+v, want {2 1002}", seasons[1])
	}
}

func TestParseEpisodes(t *testing.T) {
	episodes := parseEpisodes(loadTestDoc(t, "episodes.html"))
	if len(episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(episodes))
	}
	for i, ep := range episodes {
		if ep.Number != i+1 {
			t.Errorf("episodes[%d].Number = %d, want %d", i, ep.Number, i+1)
		}
	}
	if episodes[1].ID != "5002" {
		t.Errorf("episodes[1].ID = %q, want 5002", episodes[1].ID)
	}
	if episodes[1].Title != "Eps 2: Grilled" {
		t.Errorf("episodes[1].Title = %q", episodes[1].Title)
	}
}

func TestParseServers(t *testing.T) {
	tests := []struct {
		fixture string
		want    []server
	}{
		{"servers_movie.html", []server{{"UpCloud", "9001"}, {"Vidcloud", "9002"}, {"Voe", "9003"}}},
		{"servers_episode.html", []server{{"Vidcloud", "7001"}, {"UpCloud", "7002"}}},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			got := parseServers(loadTestDoc(t, tt.fixture))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d servers, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("server[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/movie/free-the-exorcist-hd-75043", "movie/free-the-exorcist-hd-75043"},
		{"/tv/watch-breaking-bad-39516", "tv/watch-breaking-bad-39516"},
		{"/movie/test-123?ref=home", "movie/test-123"},
		{"movie/test", "movie/test"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := extractID(tt.input)
			if got != tt.expected {
				t.Errorf("extractID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractNumericID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"movie/free-the-exorcist-hd-75043", "75043"},
		{"tv/watch-breaking-bad-39516", "39516"},
		{"no-number-here", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := extractNumericID(tt.input)
			if got != tt.expected {
				t.Errorf("extractNumericID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Spider-Man: No Way Home", "spider man no way home"},
		{"  The   Exorcist ", "the exorcist"},
		{"Tom & Jerry", "tom and jerry"},
		{"Amélie", "amélie"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeTitle(tt.input); got != tt.expected {
				t.Errorf("normalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchResult(t *testing.T) {
	results := []searchResult{
		{ID: "movie/a-1", Title: "The Thing", Type: media.Movie, Year: 2011},
		{ID: "movie/a-2", Title: "The Thing", Type: media.Movie, Year: 1982},
		{ID: "tv/a-3", Title: "The Thing", Type: media.Show},
	}

	tests := []struct {
		name   string
		media  media.ScrapeMedia
		wantID string
	}{
		{"year picks remake", media.NewMovie("1", "The Thing", 1982), "movie/a-2"},
		{"no year takes first", media.NewMovie("1", "the thing", 0), "movie/a-1"},
		{"show ignores movies", media.NewShow("1", "The Thing", 2020, media.Numbered{Number: 1}, media.Numbered{Number: 1}), "tv/a-3"},
		{"wrong year", media.NewMovie("1", "The Thing", 1951), ""},
		{"other title", media.NewMovie("1", "The Fly", 0), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchResult(results, tt.media)
			if tt.wantID == "" {
				if ok {
					t.Errorf("matchResult() = %+v, want no match", got)
				}
				return
			}
			if !ok || got.ID != tt.wantID {
				t.Errorf("matchResult() = %+v (ok=%v), want %s", got, ok, tt.wantID)
			}
		})
	}
}
