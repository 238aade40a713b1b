package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"streamscout/internal/config"
	"streamscout/internal/media"
	"streamscout/internal/provider"
	"streamscout/internal/tmdb"
)

func setMediaFlags(t *testing.T, typ string, season, episode int) {
	t.Helper()
	oldType, oldSeason, oldEpisode, oldTMDB := flagType, flagSeason, flagEpisode, flagTMDB
	t.Cleanup(func() {
		flagType, flagSeason, flagEpisode, flagTMDB = oldType, oldSeason, oldEpisode, oldTMDB
	})
	flagType, flagSeason, flagEpisode, flagTMDB = typ, season, episode, ""
}

func TestMediaFromFlags(t *testing.T) {
	a := &app{tmdb: tmdb.New("")}

	tests := []struct {
		name     string
		args     []string
		typ      string
		season   int
		episode  int
		wantType media.MediaType
		wantErr  bool
	}{
		{name: "movie title", args: []string{"The", "Exorcist"}, wantType: media.Movie},
		{name: "season implies show", args: []string{"Breaking Bad"}, season: 1, episode: 2, wantType: media.Show},
		{name: "explicit show", args: []string{"x"}, typ: "tv", season: 3, episode: 4, wantType: media.Show},
		{name: "show missing episode", args: []string{"x"}, typ: "show", season: 1, wantErr: true},
		{name: "unknown type", args: []string{"x"}, typ: "podcast", wantErr: true},
		{name: "nothing to resolve", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMediaFlags(t, tt.typ, tt.season, tt.episode)
			m, err := mediaFromFlags(context.Background(), a, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("mediaFromFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if m.Type != tt.wantType {
				t.Errorf("type = %v, want %v", m.Type, tt.wantType)
			}
			if want := strings.Join(tt.args, " "); m.Title != want {
				t.Errorf("title = %q, want %q", m.Title, want)
			}
		})
	}
}

func TestStreamProxyOnlyForBrowsers(t *testing.T) {
	old := cfg
	t.Cleanup(func() { cfg = old })

	cfg = config.Default()
	cfg.ProxyURL = "http://127.0.0.1:8080/api/proxy"

	cfg.Target = "native"
	if got := streamProxy(); got != "" {
		t.Errorf("native target: streamProxy() = %q, want empty", got)
	}
	cfg.Target = "browser"
	if got := streamProxy(); got != cfg.ProxyURL {
		t.Errorf("browser target: streamProxy() = %q, want %q", got, cfg.ProxyURL)
	}
}

func TestNotes(t *testing.T) {
	got := notes(provider.Meta{Disabled: true, External: true, Flags: []provider.Flag{provider.FlagCORSAllowed}})
	if want := "disabled, external, cors-allowed"; got != want {
		t.Errorf("notes() = %q, want %q", got, want)
	}
	if got := notes(provider.Meta{}); got != "" {
		t.Errorf("notes() = %q, want empty", got)
	}
}

func TestPrintStream(t *testing.T) {
	var buf bytes.Buffer
	printStream(&buf, &media.RunOutput{
		SourceID: "flixhq",
		EmbedID:  "vidcloud",
		Stream: &media.Stream{
			Type:      media.StreamFile,
			Qualities: map[string]media.File{"720p": {URL: "https://cdn/720.mp4"}, "1080p": {URL: "https://cdn/1080.mp4"}},
		},
	})

	out := buf.String()
	for _, want := range []string{"flixhq -> vidcloud", "https://cdn/1080.mp4", "1080p, 720p"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
