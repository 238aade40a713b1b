package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
	"streamscout/internal/normalize"
	"streamscout/internal/provider"
)

func serveFixture(t *testing.T, name string) http.HandlerFunc {
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}
}

func goqueryDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func sourceInput(m media.ScrapeMedia) provider.SourceInput {
	return provider.SourceInput{
		ScrapeContext: provider.ScrapeContext{Fetcher: fetcher.NewStandardFetcher(nil), Target: provider.TargetAny},
		Media:         m,
	}
}

func flixServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/", serveFixture(t, "search_results.html"))
	mux.HandleFunc("/ajax/movie/episodes/75043", serveFixture(t, "servers_movie.html"))
	mux.HandleFunc("/ajax/v2/tv/seasons/39516", serveFixture(t, "seasons.html"))
	mux.HandleFunc("/ajax/v2/season/episodes/1001", serveFixture(t, "episodes.html"))
	mux.HandleFunc("/ajax/v2/episode/servers/5002", serveFixture(t, "servers_episode.html"))
	mux.HandleFunc("/ajax/episode/sources/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/ajax/episode/sources/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"iframe","link":"https://megacloud.example/embed-2/v3/e-1/src` + id + `?z=","sources":[],"tracks":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFlixHQMovieHandsOffToEmbeds(t *testing.T) {
	srv := flixServer(t)
	f := NewFlixHQ(srv.URL)

	out, err := f.Scrape(context.Background(), sourceInput(media.NewMovie("9552", "The Exorcist", 1973)))
	require.NoError(t, err)
	assert.False(t, out.IsDirect())
	assert.Equal(t, []provider.EmbedRef{
		{EmbedID: "upcloud", URL: "https://megacloud.example/embed-2/v3/e-1/src9001?z="},
		{EmbedID: "vidcloud", URL: "https://megacloud.example/embed-2/v3/e-1/src9002?z="},
	}, out.Embeds)
}

func TestFlixHQEpisode(t *testing.T) {
	srv := flixServer(t)
	f := NewFlixHQ(srv.URL)

	m := media.NewShow("1396", "Breaking Bad", 2008, media.Numbered{Number: 1}, media.Numbered{Number: 2})
	out, err := f.Scrape(context.Background(), sourceInput(m))
	require.NoError(t, err)
	require.Len(t, out.Embeds, 2)
	assert.Equal(t, "vidcloud", out.Embeds[0].EmbedID)
	assert.Contains(t, out.Embeds[0].URL, "src7001")
}

func TestFlixHQNotFound(t *testing.T) {
	srv := flixServer(t)
	f := NewFlixHQ(srv.URL)

	tests := []struct {
		name  string
		media media.ScrapeMedia
	}{
		{"no title", media.NewMovie("1", "", 0)},
		{"no match", media.NewMovie("1", "Paddington", 2014)},
		{"missing season", media.NewShow("1396", "Breaking Bad", 0, media.Numbered{Number: 9}, media.Numbered{Number: 1})},
		{"missing episode", media.NewShow("1396", "Breaking Bad", 0, media.Numbered{Number: 1}, media.Numbered{Number: 40})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Scrape(context.Background(), sourceInput(tt.media))
			assert.True(t, provider.IsNotFound(err), "got %v", err)
		})
	}
}

func TestFlixHQUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFlixHQ(srv.URL).Scrape(context.Background(), sourceInput(media.NewMovie("1", "The Exorcist", 0)))
	require.Error(t, err)
	assert.Equal(t, provider.OutcomeTransport, provider.Classify(err))
}

func TestTwoEmbed(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		if strings.Contains(r.URL.Path, "404404") {
			_, _ = w.Write([]byte(`<html><body><p>nothing</p></body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><body>
			<iframe id="iframesrc" data-src="/player/abc?id=1" src="about:blank"></iframe>
		</body></html>`))
	}))
	defer srv.Close()

	src := NewTwoEmbed(srv.URL)

	out, err := src.Scrape(context.Background(), sourceInput(media.NewMovie("550", "Fight Club", 1999)))
	require.NoError(t, err)
	assert.Equal(t, []provider.EmbedRef{{EmbedID: TwoEmbedPlayerID, URL: srv.URL + "/player/abc?id=1"}}, out.Embeds)

	m := media.NewShow("1396", "Breaking Bad", 2008, media.Numbered{Number: 2}, media.Numbered{Number: 3})
	_, err = src.Scrape(context.Background(), sourceInput(m))
	require.NoError(t, err)
	assert.Equal(t, "/embedtv/1396&s=2&e=3", paths[len(paths)-1])

	_, err = src.Scrape(context.Background(), sourceInput(media.NewMovie("404404", "", 0)))
	assert.True(t, provider.IsNotFound(err))

	_, err = src.Scrape(context.Background(), sourceInput(media.NewMovie("", "Only A Title", 0)))
	assert.True(t, provider.IsNotFound(err))
}

func TestPlayerIframe(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"lazy player", `<iframe id="iframesrc" data-src="https://p.example/e/1"></iframe>`, "https://p.example/e/1"},
		{"plain iframe", `<iframe src="about:blank"></iframe><iframe src="https://p.example/e/2"></iframe>`, "https://p.example/e/2"},
		{"only blank", `<iframe src="about:blank"></iframe>`, ""},
		{"none", `<div></div>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goqueryDoc(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.want, playerIframe(doc))
		})
	}
}

func consumetServer(t *testing.T, watch string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/movies/flixhq/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"tv/watch-the-thing-3","title":"The Thing","type":"TV Series"},
			{"id":"movie/watch-the-thing-19373","title":"The Thing","releaseDate":"1982","type":"Movie"}
		]}`))
	})
	mux.HandleFunc("/movies/flixhq/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id") == "tv/watch-the-thing-3" {
			_, _ = w.Write([]byte(`{"episodes":[{"id":"e11","season":1,"number":1},{"id":"e12","season":1,"number":2}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"episodes":[{"id":"19373","title":"The Thing"}]}`))
	})
	mux.HandleFunc("/movies/flixhq/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("server") != "upcloud" {
			_, _ = w.Write([]byte(`{"sources":[]}`))
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(watch, "EPISODE", r.URL.Query().Get("episodeId"))))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConsumetReturnsPayload(t *testing.T) {
	srv := consumetServer(t, `{
		"headers":{"Referer":"https://megacloud.example/"},
		"sources":[{"url":"https://cdn.example/EPISODE/master.m3u8","quality":"auto","isM3U8":true}],
		"subtitles":[{"url":"https://cdn.example/en.vtt","lang":"English"}]
	}`)
	c := NewConsumet(srv.URL)
	assert.True(t, c.Meta().External)

	out, err := c.Scrape(context.Background(), sourceInput(media.NewMovie("1091", "The Thing", 1982)))
	require.NoError(t, err)
	require.True(t, out.IsDirect())

	s, err := normalize.Payload(out.Payload)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/19373/master.m3u8", s.Playlist)
	assert.Equal(t, "https://megacloud.example/", s.Headers["Referer"])
	require.Len(t, s.Captions, 1)
	assert.Equal(t, "English", s.Captions[0].Language)

	m := media.NewShow("1", "The Thing", 0, media.Numbered{Number: 1}, media.Numbered{Number: 2})
	out, err = c.Scrape(context.Background(), sourceInput(m))
	require.NoError(t, err)
	assert.Contains(t, string(out.Payload), "/e12/")
}

func TestConsumetNoSources(t *testing.T) {
	srv := consumetServer(t, `{"sources":[]}`)
	_, err := NewConsumet(srv.URL).Scrape(context.Background(), sourceInput(media.NewMovie("1", "The Thing", 1982)))
	assert.True(t, provider.IsNotFound(err))
}

func TestConsumetExtraOverridesAPI(t *testing.T) {
	srv := consumetServer(t, `{"sources":[{"url":"https://cdn.example/x.m3u8"}]}`)
	in := sourceInput(media.NewMovie("1", "The Thing", 1982))
	in.Extra = map[string]string{"consumet_url": srv.URL}

	out, err := NewConsumet("http://127.0.0.1:1").Scrape(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.IsDirect())
}
