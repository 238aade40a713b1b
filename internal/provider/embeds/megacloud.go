// Package embeds holds the built-in Embed providers.
package embeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
	"streamscout/internal/provider"
)

const (
	VidCloudID = "vidcloud"
	UpCloudID  = "upcloud"

	megacloudKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"
)

var embedPrefixRe = regexp.MustCompile(`^embed-\d+$`)

// MegaCloud extracts streams from MegaCloud players, which FlixHQ serves
// under both its VidCloud and UpCloud server names.
type MegaCloud struct {
	meta    provider.Meta
	keysURL string

	keysMu sync.Mutex
	keys   map[string]string
}

// NewVidCloud returns the embed for FlixHQ's VidCloud server.
func NewVidCloud() *MegaCloud {
	return &MegaCloud{meta: provider.Meta{ID: VidCloudID, Name: "VidCloud", Rank: 300}, keysURL: megacloudKeysURL}
}

// NewUpCloud returns the embed for FlixHQ's UpCloud server.
func NewUpCloud() *MegaCloud {
	return &MegaCloud{meta: provider.Meta{ID: UpCloudID, Name: "UpCloud", Rank: 290}, keysURL: megacloudKeysURL}
}

func (m *MegaCloud) Meta() provider.Meta { return m.meta }

type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []track         `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type track struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

type source struct {
	File string `json:"file"`
	Type string `json:"type"`
}

func (m *MegaCloud) Scrape(ctx context.Context, in provider.EmbedInput) (*provider.EmbedOutput, error) {
	origin, prefix, sourceID, err := parseEmbedURL(in.URL)
	if err != nil {
		return nil, provider.NotFound(m.meta.ID, "unusable embed URL: %v", err)
	}

	page := fmt.Sprintf("%s/%s/v3/e-1/%s?z=", origin, prefix, sourceID)
	html, err := fetcher.GetText(ctx, in.Fetcher, page, map[string]string{
		"Referer": "https://flixhq.to/",
		"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetching embed page")
	}

	clientKey, err := extractClientKey(html)
	if err != nil {
		return nil, provider.NotFound(m.meta.ID, "%v", err)
	}

	var resp sourcesResponse
	if _, err := fetcher.GetJSON(ctx, in.Fetcher, fmt.Sprintf("%s/%s/v3/e-1/getSources", origin, prefix), fetcher.Options{
		Query: url.Values{"id": {sourceID}, "_k": {clientKey}},
		Headers: map[string]string{
			"Referer":          in.URL,
			"X-Requested-With": "XMLHttpRequest",
		},
	}, &resp); err != nil {
		return nil, errors.Wrap(err, "fetching sources")
	}

	sources, err := m.decodeSources(ctx, in, resp, clientKey)
	if err != nil {
		return nil, err
	}
	sources = lo.Filter(sources, func(s source, _ int) bool { return strings.TrimSpace(s.File) != "" })
	if len(sources) == 0 {
		return nil, provider.NotFound(m.meta.ID, "no sources for %s", sourceID)
	}

	stream := &media.Stream{
		Headers: map[string]string{"Referer": origin + "/", "Origin": origin},
		Captions: lo.FilterMap(resp.Tracks, func(t track, _ int) (media.Caption, bool) {
			kind := strings.ToLower(t.Kind)
			if t.File == "" || (kind != "captions" && kind != "subtitles") {
				return media.Caption{}, false
			}
			return media.Caption{URL: t.File, Label: t.Label, Language: t.Label}, true
		}),
	}

	first := sources[0]
	if strings.EqualFold(first.Type, "hls") || strings.Contains(first.File, ".m3u8") {
		stream.Playlist = first.File
	} else {
		stream.Qualities = map[string]media.File{"auto": {Type: "mp4", URL: first.File}}
	}
	return &provider.EmbedOutput{Stream: stream}, nil
}

// decodeSources reads the plaintext list, or decrypts it with the published
// MegaCloud key when the response is encrypted.
func (m *MegaCloud) decodeSources(ctx context.Context, in provider.EmbedInput, resp sourcesResponse, clientKey string) ([]source, error) {
	var sources []source
	if !resp.Encrypted {
		if err := json.Unmarshal(resp.Sources, &sources); err != nil {
			return nil, &provider.NormalizationError{Msg: "plaintext sources: " + err.Error()}
		}
		return sources, nil
	}

	var encrypted string
	if err := json.Unmarshal(resp.Sources, &encrypted); err != nil {
		return nil, &provider.NormalizationError{Msg: "encrypted sources: " + err.Error()}
	}

	megaKey, err := m.megacloudKey(ctx, in)
	if err != nil {
		return nil, err
	}

	plain := decryptSources(encrypted, clientKey, megaKey)
	if plain == "" {
		return nil, provider.NotFound(m.meta.ID, "sources did not decrypt")
	}
	if err := json.Unmarshal([]byte(plain), &sources); err != nil {
		return nil, &provider.NormalizationError{Msg: "decrypted sources: " + err.Error()}
	}
	return sources, nil
}

// megacloudKey fetches and caches the published decryption key.
func (m *MegaCloud) megacloudKey(ctx context.Context, in provider.EmbedInput) (string, error) {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	if key, ok := m.keys["mega"]; ok {
		return key, nil
	}

	keysURL := m.keysURL
	if v := in.Extra["megacloud_keys_url"]; v != "" {
		keysURL = v
	}

	var keys map[string]string
	if _, err := fetcher.GetJSON(ctx, in.Fetcher, keysURL, fetcher.Options{}, &keys); err != nil {
		return "", errors.Wrap(err, "fetching megacloud keys")
	}
	key, ok := keys["mega"]
	if !ok || key == "" {
		return "", &provider.ConfigurationError{Msg: "mega key not found in keys response"}
	}
	m.keys = keys
	return key, nil
}

// parseEmbedURL extracts origin, embed prefix and source ID from an embed URL.
// Example: https://streameeeeee.site/embed-1/v3/e-1/AbCdEf?z= ->
// ("https://streameeeeee.site", "embed-1", "AbCdEf")
func parseEmbedURL(embedURL string) (origin, embedPrefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", "", fmt.Errorf("not an absolute http(s) URL: %q", embedURL)
	}
	origin = u.Scheme + "://" + u.Host

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	sourceID = parts[len(parts)-1]
	if sourceID == "" || embedPrefixRe.MatchString(sourceID) {
		return "", "", "", fmt.Errorf("could not extract source ID from %q", embedURL)
	}

	embedPrefix = parts[0]
	if !embedPrefixRe.MatchString(embedPrefix) {
		embedPrefix = "embed-2"
	}

	return origin, embedPrefix, sourceID, nil
}
