package embeds

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/buger/jsonparser"
	"github.com/pkg/errors"

	"streamscout/internal/fetcher"
	"streamscout/internal/provider"
)

// TwoEmbedPlayerID is the registry id of the 2embed player embed.
const TwoEmbedPlayerID = "twoembed-player"

var (
	playerConfigRe  = regexp.MustCompile(`(?s)(?:var|let|const)\s+\w*[cC]onfig\w*\s*=\s*(\{.*?\})\s*;`)
	playerSourcesRe = regexp.MustCompile(`(?s)\bsources\s*:\s*(\[.*?\])\s*[,}]`)
)

// TwoEmbedPlayer reads the player configuration embedded in a 2embed player
// page and returns it untouched for the normalizer.
type TwoEmbedPlayer struct{}

func NewTwoEmbedPlayer() *TwoEmbedPlayer { return &TwoEmbedPlayer{} }

func (p *TwoEmbedPlayer) Meta() provider.Meta {
	return provider.Meta{ID: TwoEmbedPlayerID, Name: "2Embed Player", Rank: 150}
}

func (p *TwoEmbedPlayer) Scrape(ctx context.Context, in provider.EmbedInput) (*provider.EmbedOutput, error) {
	u, err := url.Parse(in.URL)
	if err != nil || u.Host == "" {
		return nil, provider.NotFound(TwoEmbedPlayerID, "unusable player URL %q", in.URL)
	}
	origin := u.Scheme + "://" + u.Host

	html, err := fetcher.GetText(ctx, in.Fetcher, in.URL, map[string]string{"Referer": origin + "/"})
	if err != nil {
		return nil, errors.Wrap(err, "fetching player page")
	}

	cfg, ok := playerConfig(html)
	if !ok {
		return nil, provider.NotFound(TwoEmbedPlayerID, "no player config on %s", in.URL)
	}

	if _, _, _, err := jsonparser.Get(cfg, "headers"); err != nil {
		hdr, _ := json.Marshal(map[string]string{"Referer": origin + "/"})
		if withHeaders, err := jsonparser.Set(cfg, hdr, "headers"); err == nil {
			cfg = withHeaders
		}
	}

	return &provider.EmbedOutput{Payload: cfg}, nil
}

// playerConfig finds the player's JSON configuration, trying a data-config
// attribute, then a config variable, then a bare sources array.
func playerConfig(html string) ([]byte, bool) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		if raw, ok := doc.Find("[data-config]").First().Attr("data-config"); ok && json.Valid([]byte(raw)) {
			return []byte(raw), true
		}
	}

	for _, m := range playerConfigRe.FindAllStringSubmatch(html, -1) {
		if json.Valid([]byte(m[1])) {
			return []byte(m[1]), true
		}
	}

	if m := playerSourcesRe.FindStringSubmatch(html); m != nil && json.Valid([]byte(m[1])) {
		return []byte(`{"sources":` + m[1] + `}`), true
	}
	return nil, false
}
