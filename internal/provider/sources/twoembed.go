package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/media"
	"streamscout/internal/provider"
)

const (
	TwoEmbedID       = "twoembed"
	TwoEmbedPlayerID = "twoembed-player"

	twoEmbedBase = "https://www.2embed.cc"
)

// TwoEmbed looks media up by TMDB id and hands the page's player iframe to
// the twoembed-player embed.
type TwoEmbed struct {
	base string
}

// NewTwoEmbed creates the source. An empty base uses the public site.
func NewTwoEmbed(base string) *TwoEmbed {
	if base == "" {
		base = twoEmbedBase
	}
	return &TwoEmbed{base: strings.TrimRight(base, "/")}
}

func (t *TwoEmbed) Meta() provider.Meta {
	return provider.Meta{ID: TwoEmbedID, Name: "2Embed", Rank: 100}
}

func (t *TwoEmbed) pageURL(m media.ScrapeMedia) (string, error) {
	if err := httputil.ValidateNumericID(m.TMDBID); err != nil {
		return "", provider.NotFound(TwoEmbedID, "needs a numeric tmdb id: %v", err)
	}
	if m.Type == media.Show {
		s, _ := m.Season()
		e, _ := m.Episode()
		return fmt.Sprintf("%s/embedtv/%s&s=%d&e=%d", t.base, m.TMDBID, s.Number, e.Number), nil
	}
	return fmt.Sprintf("%s/embed/%s", t.base, m.TMDBID), nil
}

func (t *TwoEmbed) Scrape(ctx context.Context, in provider.SourceInput) (*provider.SourceOutput, error) {
	page, err := t.pageURL(in.Media)
	if err != nil {
		return nil, err
	}

	body, err := fetcher.GetText(ctx, in.Fetcher, page, map[string]string{"Referer": t.base + "/"})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	src := playerIframe(doc)
	if src == "" {
		return nil, provider.NotFound(TwoEmbedID, "no player on %s", page)
	}
	player, err := resolveRef(page, src)
	if err != nil {
		return nil, provider.NotFound(TwoEmbedID, "bad player URL %q", src)
	}

	return &provider.SourceOutput{
		Embeds: []provider.EmbedRef{{EmbedID: TwoEmbedPlayerID, URL: player}},
	}, nil
}

// playerIframe prefers the lazy-loaded #iframesrc player over any other frame.
func playerIframe(doc *goquery.Document) string {
	if f := doc.Find("iframe#iframesrc").First(); f.Length() > 0 {
		if src := strings.TrimSpace(f.AttrOr("data-src", f.AttrOr("src", ""))); src != "" {
			return src
		}
	}
	var src string
	doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src = strings.TrimSpace(s.AttrOr("data-src", s.AttrOr("src", "")))
		return src == "" || src == "about:blank"
	})
	if src == "about:blank" {
		return ""
	}
	return src
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := b.Parse(ref)
	if err != nil {
		return "", err
	}
	out := r.String()
	if err := httputil.ValidateURL(out); err != nil {
		return "", err
	}
	return out, nil
}
