package embeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
	"streamscout/internal/normalize"
	"streamscout/internal/provider"
)

func TestParseEmbedURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantOrigin string
		wantPrefix string
		wantID     string
		wantErr    bool
	}{
		{
			name:       "standard embed-1 URL",
			url:        "https://streameeeeee.site/embed-1/v3/e-1/AbCdEf123?z=",
			wantOrigin: "https://streameeeeee.site",
			wantPrefix: "embed-1",
			wantID:     "AbCdEf123",
		},
		{
			name:       "embed-2 URL",
			url:        "https://megacloud.blog/embed-2/v3/e-1/XyZ789?k=1",
			wantOrigin: "https://megacloud.blog",
			wantPrefix: "embed-2",
			wantID:     "XyZ789",
		},
		{
			name:       "unknown prefix falls back to embed-2",
			url:        "http://example.com/e/testId",
			wantOrigin: "http://example.com",
			wantPrefix: "embed-2",
			wantID:     "testId",
		},
		{name: "empty URL", url: "", wantErr: true},
		{name: "no source id", url: "https://example.com/embed-4/", wantErr: true},
		{name: "not http", url: "ftp://example.com/embed-1/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, prefix, id, err := parseEmbedURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEmbedURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if origin != tt.wantOrigin {
				t.Errorf("origin = %q, want %q", origin, tt.wantOrigin)
			}
			if prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", prefix, tt.wantPrefix)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func embedInput(u string, extra map[string]string) provider.EmbedInput {
	return provider.EmbedInput{
		ScrapeContext: provider.ScrapeContext{Fetcher: fetcher.NewStandardFetcher(nil), Extra: extra},
		URL:           u,
	}
}

func megacloudServer(t *testing.T, sources string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed-2/v3/e-1/getSources", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_k") != "clientKey42" || r.URL.Query().Get("id") != "abc" {
			http.Error(w, "bad key", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sources))
	})
	mux.HandleFunc("/embed-2/v3/e-1/abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta name="_gg_fb" content="clientKey42"></head></html>`))
	})
	mux.HandleFunc("/keys.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rabbit":"x"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMegaCloudPlaintextSources(t *testing.T) {
	srv := megacloudServer(t, `{
		"sources":[{"file":"https://cdn.example/hls/master.m3u8","type":"hls"}],
		"tracks":[
			{"file":"https://cdn.example/en.vtt","label":"English","kind":"captions","default":true},
			{"file":"https://cdn.example/thumbs.vtt","kind":"thumbnails"}
		],
		"encrypted":false
	}`)

	out, err := NewVidCloud().Scrape(context.Background(), embedInput(srv.URL+"/embed-2/v3/e-1/abc?z=", nil))
	require.NoError(t, err)
	require.NotNil(t, out.Stream)

	s, err := normalize.Canonicalize(out.Stream)
	require.NoError(t, err)
	assert.Equal(t, media.StreamHLS, s.Type)
	assert.Equal(t, "https://cdn.example/hls/master.m3u8", s.Playlist)
	assert.Equal(t, srv.URL+"/", s.Headers["Referer"])
	require.Len(t, s.Captions, 1)
	assert.Equal(t, "English", s.Captions[0].Label)
}

func TestMegaCloudNoSources(t *testing.T) {
	srv := megacloudServer(t, `{"sources":[],"tracks":[],"encrypted":false}`)
	_, err := NewUpCloud().Scrape(context.Background(), embedInput(srv.URL+"/embed-2/v3/e-1/abc", nil))
	assert.True(t, provider.IsNotFound(err), "got %v", err)
}

func TestMegaCloudEncryptedWithoutKey(t *testing.T) {
	srv := megacloudServer(t, `{"sources":"U2FsdGVkX1+garbage","tracks":[],"encrypted":true}`)
	_, err := NewVidCloud().Scrape(context.Background(), embedInput(srv.URL+"/embed-2/v3/e-1/abc", map[string]string{
		"megacloud_keys_url": srv.URL + "/keys.json",
	}))
	assert.Equal(t, provider.OutcomeConfiguration, provider.Classify(err), "got %v", err)
}

func TestMegaCloudBadEmbedURL(t *testing.T) {
	_, err := NewVidCloud().Scrape(context.Background(), embedInput("not a url", nil))
	assert.True(t, provider.IsNotFound(err))
}

func TestMegaCloudMissingClientKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>no key</html>`))
	}))
	defer srv.Close()

	_, err := NewVidCloud().Scrape(context.Background(), embedInput(srv.URL+"/embed-1/v3/e-1/abc", nil))
	assert.True(t, provider.IsNotFound(err))
}

func TestPlayerConfig(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "data attribute",
			html: `<div id="player" data-config='{"file":"https://x/a.m3u8"}'></div>`,
			want: `{"file":"https://x/a.m3u8"}`,
		},
		{
			name: "config variable",
			html: `<script>var playerConfig = {"sources":[{"file":"https://x/b.m3u8"}],"tracks":[]};</script>`,
			want: `{"sources":[{"file":"https://x/b.m3u8"}],"tracks":[]}`,
		},
		{
			name: "bare sources",
			html: `<script>jwplayer("v").setup({sources: [{"file":"https://x/c.mp4","label":"720p"}], width: "100%"});</script>`,
			want: `{"sources":[{"file":"https://x/c.mp4","label":"720p"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := playerConfig(tt.html)
			require.True(t, ok)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, ok := playerConfig(`<script>var config = {not json};</script>`)
	assert.False(t, ok)
}

func TestTwoEmbedPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`<html></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><script>
			const config = {"sources":[{"file":"https://cdn.example/p/master.m3u8","type":"hls"}],
				"tracks":[{"file":"https://cdn.example/en.srt","label":"English","kind":"captions"}]};
		</script></html>`))
	}))
	defer srv.Close()

	p := NewTwoEmbedPlayer()
	out, err := p.Scrape(context.Background(), embedInput(srv.URL+"/player/abc", nil))
	require.NoError(t, err)
	require.NotEmpty(t, out.Payload)

	s, err := normalize.Payload(out.Payload)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/p/master.m3u8", s.Playlist)
	assert.Equal(t, srv.URL+"/", s.Headers["Referer"])
	require.Len(t, s.Captions, 1)
	assert.Equal(t, media.FormatSRT, s.Captions[0].Format)

	_, err = p.Scrape(context.Background(), embedInput(srv.URL+"/empty", nil))
	assert.True(t, provider.IsNotFound(err))
}
