package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/samber/lo"

	"streamscout/internal/fetcher"
	"streamscout/internal/media"
	"streamscout/internal/provider"
)

const (
	ConsumetID = "consumet"

	consumetDefaultAPI = "https://api.consumet.org"
)

// consumetServers are asked in order until one returns sources.
var consumetServers = []string{"vidcloud", "upcloud"}

// Consumet resolves through a consumet API instance, which does the FlixHQ
// scraping and decryption server side. It sits outside the trust boundary of
// the built-in scrapers, so it is registered as external.
type Consumet struct {
	apiURL string
}

// NewConsumet creates the source. An empty apiURL uses the public instance.
func NewConsumet(apiURL string) *Consumet {
	if apiURL == "" {
		apiURL = consumetDefaultAPI
	}
	return &Consumet{apiURL: strings.TrimRight(apiURL, "/")}
}

func (c *Consumet) Meta() provider.Meta {
	return provider.Meta{ID: ConsumetID, Name: "Consumet", Rank: 50, External: true}
}

type consumetResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	Type        string `json:"type"`
}

type consumetEpisode struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Season int    `json:"season"`
}

func (r consumetResult) mediaType() media.MediaType {
	if strings.Contains(strings.ToLower(r.Type), "tv") {
		return media.Show
	}
	return media.Movie
}

func (r consumetResult) year() int {
	if len(r.ReleaseDate) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(r.ReleaseDate[:4])
	return y
}

func (c *Consumet) Scrape(ctx context.Context, in provider.SourceInput) (*provider.SourceOutput, error) {
	if strings.TrimSpace(in.Media.Title) == "" {
		return nil, provider.NotFound(ConsumetID, "media has no title to search for")
	}
	api := c.apiURL
	if v := in.Extra["consumet_url"]; v != "" {
		api = strings.TrimRight(v, "/")
	}

	var search struct {
		Results []consumetResult `json:"results"`
	}
	if _, err := fetcher.GetJSON(ctx, in.Fetcher, fmt.Sprintf("%s/movies/flixhq/%s", api, url.PathEscape(in.Media.Title)), fetcher.Options{}, &search); err != nil {
		return nil, fmt.Errorf("consumet search: %w", err)
	}

	results := lo.Map(search.Results, func(r consumetResult, _ int) searchResult {
		return searchResult{ID: r.ID, Title: r.Title, Type: r.mediaType(), Year: r.year()}
	})
	hit, ok := matchResult(results, in.Media)
	if !ok {
		return nil, provider.NotFound(ConsumetID, "no match for %s", in.Media)
	}

	var info struct {
		Episodes []consumetEpisode `json:"episodes"`
	}
	if _, err := fetcher.GetJSON(ctx, in.Fetcher, api+"/movies/flixhq/info", fetcher.Options{
		Query: url.Values{"id": {hit.ID}},
	}, &info); err != nil {
		return nil, fmt.Errorf("consumet info: %w", err)
	}

	ep, ok := pickEpisode(info.Episodes, in.Media)
	if !ok {
		return nil, provider.NotFound(ConsumetID, "no episode for %s", in.Media)
	}

	for _, srv := range consumetServers {
		resp, err := in.Fetcher.Fetch(ctx, api+"/movies/flixhq/watch", fetcher.Options{
			Query:        url.Values{"episodeId": {ep.ID}, "mediaId": {hit.ID}, "server": {srv}},
			ResponseType: fetcher.ResponseText,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if countSources(resp.Body) > 0 {
			return &provider.SourceOutput{Payload: resp.Body}, nil
		}
	}

	return nil, provider.NotFound(ConsumetID, "no sources returned for %s", in.Media)
}

// pickEpisode returns the only entry for a movie, or the matching
// season/episode for a show.
func pickEpisode(eps []consumetEpisode, m media.ScrapeMedia) (consumetEpisode, bool) {
	if len(eps) == 0 {
		return consumetEpisode{}, false
	}
	if m.Type == media.Movie {
		return eps[0], true
	}
	s, _ := m.Season()
	e, _ := m.Episode()
	return lo.Find(eps, func(ep consumetEpisode) bool {
		return ep.Season == s.Number && ep.Number == e.Number
	})
}

func countSources(body []byte) int {
	n := 0
	_, _ = jsonparser.ArrayEach(body, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
		if u, err := jsonparser.GetString(item, "url"); err == nil && u != "" {
			n++
		}
	}, "sources")
	return n
}
