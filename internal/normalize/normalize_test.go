package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/media"
	"streamscout/internal/provider"
)

func TestPayloadStrategies(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		playlist string
		quality  string // a label expected in the ladder
		url      string // PlayableURL
	}{
		{
			name:     "declared hls",
			payload:  `{"type":"hls","playlist":"https://cdn.example/master.m3u8"}`,
			playlist: "https://cdn.example/master.m3u8",
			url:      "https://cdn.example/master.m3u8",
		},
		{
			name:    "file ladder prefers 1080p",
			payload: `{"type":"file","qualities":{"360":{"type":"mp4","url":"https://cdn.example/360.mp4"},"1080p":"https://cdn.example/1080.mp4"}}`,
			quality: "1080p",
			url:     "https://cdn.example/1080.mp4",
		},
		{
			name:    "file ladder without 1080 takes first listed",
			payload: `{"qualities":{"480":{"src":"https://cdn.example/480.mp4"},"720":{"file":"https://cdn.example/720.mp4"}}}`,
			quality: "720",
			url:     "https://cdn.example/480.mp4",
		},
		{
			name:    "ladder as array",
			payload: `{"type":"file","qualities":[{"quality":"720p","url":"https://cdn.example/a.mp4"}]}`,
			quality: "720p",
			url:     "https://cdn.example/a.mp4",
		},
		{
			name:     "top level playlist fallback",
			payload:  `{"type":"unknown","playlist":"https://cdn.example/p.m3u8"}`,
			playlist: "https://cdn.example/p.m3u8",
			url:      "https://cdn.example/p.m3u8",
		},
		{
			name:     "wrapped in stream",
			payload:  `{"stream":{"type":"hls","playlist":"https://cdn.example/s.m3u8"}}`,
			playlist: "https://cdn.example/s.m3u8",
			url:      "https://cdn.example/s.m3u8",
		},
		{
			name:     "stream array",
			payload:  `{"stream":[{"id":"primary","type":"hls","playlist":"https://cdn.example/first.m3u8"}]}`,
			playlist: "https://cdn.example/first.m3u8",
			url:      "https://cdn.example/first.m3u8",
		},
		{
			name:     "nested under output",
			payload:  `{"output":{"stream":{"playlist":"https://cdn.example/o.m3u8"}}}`,
			playlist: "https://cdn.example/o.m3u8",
			url:      "https://cdn.example/o.m3u8",
		},
		{
			name:     "sources list with adaptive entry",
			payload:  `{"sources":[{"url":"https://cdn.example/360.m3u8","quality":"360p","isM3U8":true},{"url":"https://cdn.example/auto.m3u8","quality":"auto","isM3U8":true}]}`,
			playlist: "https://cdn.example/auto.m3u8",
			url:      "https://cdn.example/auto.m3u8",
		},
		{
			name:    "sources list of files",
			payload: `{"sources":[{"file":"https://cdn.example/720.mp4","label":"720p","type":"video/mp4"},{"file":"https://cdn.example/1080.mp4","label":"1080p","type":"video/mp4"}]}`,
			quality: "1080p",
			url:     "https://cdn.example/1080.mp4",
		},
		{
			name:     "sources list with labelled hls only",
			payload:  `{"sources":[{"file":"https://cdn.example/master","type":"application/x-mpegURL","label":"HD"}]}`,
			playlist: "https://cdn.example/master",
			url:      "https://cdn.example/master",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Payload([]byte(tt.payload))
			require.NoError(t, err)

			assert.Equal(t, tt.playlist, s.Playlist)
			if tt.quality != "" {
				assert.Contains(t, s.Qualities, tt.quality)
				assert.Equal(t, media.StreamFile, s.Type)
			} else {
				assert.Equal(t, media.StreamHLS, s.Type)
			}
			assert.Equal(t, tt.url, PlayableURL(s))
			assert.NotNil(t, s.Captions)
		})
	}
}

func TestPayloadNoPlayableStream(t *testing.T) {
	for _, payload := range []string{
		`{"type":"hls"}`,
		`{"type":"file","qualities":{}}`,
		`{"qualities":{"720":{"label":"no url here"}}}`,
		`{"captions":[]}`,
		`{"sources":[]}`,
	} {
		_, err := Payload([]byte(payload))
		var ne *provider.NormalizationError
		require.ErrorAs(t, err, &ne, payload)
		assert.Equal(t, noPlayableStream, ne.Msg)
	}

	_, err := Payload([]byte(`"just a string"`))
	assert.Equal(t, provider.OutcomeNormalization, provider.Classify(err))
}

func TestPayloadHeaders(t *testing.T) {
	s, err := Payload([]byte(`{"stream":{"type":"hls","playlist":"https://x/p.m3u8","headers":{"Referer":"https://x/","Origin":"https://x"}}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Referer": "https://x/", "Origin": "https://x"}, s.Headers)
}

// One stream per successful normalization: never both, never neither.
func TestCanonicalStreamInvariant(t *testing.T) {
	_, err := Canonicalize(&media.Stream{
		Playlist:  "https://x/p.m3u8",
		Qualities: map[string]media.File{"720": {URL: "https://x/720.mp4"}},
	})
	assert.Error(t, err)

	_, err = Canonicalize(&media.Stream{Qualities: map[string]media.File{"720": {URL: " "}}})
	assert.Error(t, err)

	s, err := Canonicalize(&media.Stream{Playlist: "https://x/p.m3u8"})
	require.NoError(t, err)
	assert.Equal(t, media.StreamHLS, s.Type)
	assert.Empty(t, s.Qualities)
	require.NotNil(t, s.Captions)
	assert.Empty(t, s.Captions)
}

func TestCaptionsFromPayloadLanguageMap(t *testing.T) {
	got := CaptionsFromPayload([]byte(`{"captions":{"en":[{"url":"/a.srt"}],"es":"/b.srt"}}`))

	require.Len(t, got, 2)
	assert.Equal(t, "/a.srt", got[0].URL)
	assert.Equal(t, "en", got[0].Language)
	assert.Equal(t, media.FormatSRT, got[0].Format)
	assert.NotEmpty(t, got[0].Label)
	assert.Equal(t, "/b.srt", got[1].URL)
	assert.Equal(t, "es", got[1].Language)
}

func TestCaptionsFromPayloadLocations(t *testing.T) {
	payload := `{
		"stream": {
			"captions": [{"url": "https://s/en.vtt", "lang": "en", "label": "English"}],
			"subtitles": {"src": "https://s/fr.vtt", "language": "fr"}
		},
		"tracks": [
			{"file": "https://s/thumbs.vtt", "kind": "thumbnails"},
			{"file": "https://s/de.vtt", "kind": "captions", "label": "Deutsch"}
		],
		"output": {"subtitles": ["https://s/en.vtt", "https://s/it.srt"]}
	}`

	got := CaptionsFromPayload([]byte(payload))
	urls := make([]string, 0, len(got))
	for _, c := range got {
		urls = append(urls, c.URL)
	}

	assert.Equal(t, []string{"https://s/en.vtt", "https://s/fr.vtt", "https://s/it.srt", "https://s/de.vtt"}, urls)
	assert.Equal(t, "English", got[0].Label)
	assert.Equal(t, "fr", got[1].Language)
	assert.Equal(t, media.FormatSRT, got[2].Format)
	assert.Equal(t, "Default", got[2].Label)
}

func TestCaptionsIdempotent(t *testing.T) {
	in := []media.Caption{
		{URL: "https://s/en.vtt", Language: "en"},
		{URL: "https://s/en.vtt", Language: "en", Label: "dup"},
		{URL: ""},
		{URL: "https://s/x.srt", Label: "Extra"},
	}

	once := Captions(in)
	twice := Captions(once)

	require.Len(t, once, 2)
	assert.Equal(t, once, twice)
	assert.Equal(t, "https://s/en.vtt", once[0].URL)
	assert.Equal(t, media.FormatSRT, once[1].Format)
}

func TestCaptionsNeverNil(t *testing.T) {
	assert.NotNil(t, Captions(nil))
}

func TestQualityLabels(t *testing.T) {
	s := &media.Stream{Qualities: map[string]media.File{
		"360":  {URL: "a"},
		"auto": {URL: "b"},
		"1440": {URL: "c"},
		"720p": {URL: "d"},
	}}
	assert.Equal(t, []string{"1440", "720p", "360", "auto"}, QualityLabels(s))
	assert.Equal(t, "c", PlayableURL(s), "without a recorded order the best label is first")
}

func TestPlayableURLKeepsLadderOrder(t *testing.T) {
	s, err := Payload([]byte(`{"type":"file","qualities":{"auto":{"type":"mp4","url":"https://x/auto.mp4"},"360p":{"type":"mp4","url":"https://x/360.mp4"}}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"auto", "360p"}, s.QualityOrder)
	assert.Equal(t, "https://x/auto.mp4", PlayableURL(s))

	s, err = Payload([]byte(`{"sources":[{"file":"https://x/240.mp4","label":"240p"},{"file":"https://x/720.mp4","label":"720p"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "https://x/240.mp4", PlayableURL(s))

	s, err = Canonicalize(&media.Stream{
		Qualities:    map[string]media.File{"480": {URL: "https://x/480.mp4"}, "720": {URL: ""}, "240": {URL: "https://x/240.mp4"}},
		QualityOrder: []string{"720", "240", "240", "480"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"240", "480"}, s.QualityOrder, "dropped and repeated labels leave the order")
}
