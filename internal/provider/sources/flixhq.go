// Package sources holds the built-in Source providers.
package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/media"
	"streamscout/internal/provider"
)

// FlixHQID is the registry id of the FlixHQ source.
const FlixHQID = "flixhq"

// maxSearchPages limits how many pages of search results to fetch.
const maxSearchPages = 3

// flixServers maps FlixHQ server names to the embed that can extract them.
var flixServers = map[string]string{
	"vidcloud": "vidcloud",
	"upcloud":  "upcloud",
}

// FlixHQ searches flixhq by title and hands its VidCloud/UpCloud players
// over to the matching embeds.
type FlixHQ struct {
	base string // host such as "flixhq.to", or a full origin
}

// NewFlixHQ creates the FlixHQ source.
func NewFlixHQ(base string) *FlixHQ {
	return &FlixHQ{base: base}
}

func (f *FlixHQ) Meta() provider.Meta {
	return provider.Meta{ID: FlixHQID, Name: "FlixHQ", Rank: 200}
}

func (f *FlixHQ) baseURL() string {
	if strings.HasPrefix(f.base, "http://") || strings.HasPrefix(f.base, "https://") {
		return strings.TrimRight(f.base, "/")
	}
	return "https://" + f.base
}

func (f *FlixHQ) Scrape(ctx context.Context, in provider.SourceInput) (*provider.SourceOutput, error) {
	if strings.TrimSpace(in.Media.Title) == "" {
		return nil, provider.NotFound(FlixHQID, "media has no title to search for")
	}

	results, err := f.search(ctx, in.Fetcher, in.Media.Title)
	if err != nil {
		return nil, err
	}
	hit, ok := matchResult(results, in.Media)
	if !ok {
		return nil, provider.NotFound(FlixHQID, "no match for %s", in.Media)
	}

	var servers []server
	if in.Media.Type == media.Show {
		servers, err = f.episodeServers(ctx, in.Fetcher, hit.ID, in.Media)
	} else {
		servers, err = f.movieServers(ctx, in.Fetcher, hit.ID)
	}
	if err != nil {
		return nil, err
	}

	var refs []provider.EmbedRef
	for _, s := range servers {
		embedID, known := flixServers[strings.ToLower(s.Name)]
		if !known {
			continue
		}
		link, err := f.embedURL(ctx, in.Fetcher, s.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		refs = append(refs, provider.EmbedRef{EmbedID: embedID, URL: link})
	}

	if len(refs) == 0 {
		return nil, provider.NotFound(FlixHQID, "no supported servers for %s", in.Media)
	}
	return &provider.SourceOutput{Embeds: refs}, nil
}

// search returns matching results for a query, fetching up to maxSearchPages.
func (f *FlixHQ) search(ctx context.Context, fc fetcher.Fetcher, query string) ([]searchResult, error) {
	searchURL := fmt.Sprintf("%s/search/%s", f.baseURL(), httputil.SearchSlug(query))

	doc, err := f.fetchDocument(ctx, fc, searchURL)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	results := parseSearchResults(doc)
	pages := min(parseLastPage(doc), maxSearchPages)
	for page := 2; page <= pages; page++ {
		pageDoc, err := f.fetchDocument(ctx, fc, fmt.Sprintf("%s?page=%d", searchURL, page))
		if err != nil {
			break // return what we have
		}
		results = append(results, parseSearchResults(pageDoc)...)
	}

	return results, nil
}

func (f *FlixHQ) movieServers(ctx context.Context, fc fetcher.Fetcher, id string) ([]server, error) {
	numID := extractNumericID(id)
	if numID == "" {
		return nil, provider.NotFound(FlixHQID, "cannot extract numeric id from %q", id)
	}

	doc, err := f.fetchDocument(ctx, fc, fmt.Sprintf("%s/ajax/movie/episodes/%s", f.baseURL(), numID))
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return parseServers(doc), nil
}

func (f *FlixHQ) episodeServers(ctx context.Context, fc fetcher.Fetcher, id string, m media.ScrapeMedia) ([]server, error) {
	numID := extractNumericID(id)
	if numID == "" {
		return nil, provider.NotFound(FlixHQID, "cannot extract numeric id from %q", id)
	}
	want, _ := m.Season()
	wantEp, _ := m.Episode()

	doc, err := f.fetchDocument(ctx, fc, fmt.Sprintf("%s/ajax/v2/tv/seasons/%s", f.baseURL(), numID))
	if err != nil {
		return nil, fmt.Errorf("getting seasons: %w", err)
	}
	s, ok := lo.Find(parseSeasons(doc), func(s season) bool { return s.Number == want.Number })
	if !ok {
		return nil, provider.NotFound(FlixHQID, "season %d not listed", want.Number)
	}
	if err := httputil.ValidateSlug(s.ID); err != nil {
		return nil, fmt.Errorf("invalid season ID: %w", err)
	}

	doc, err = f.fetchDocument(ctx, fc, fmt.Sprintf("%s/ajax/v2/season/episodes/%s", f.baseURL(), s.ID))
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	ep, ok := lo.Find(parseEpisodes(doc), func(e episode) bool { return e.Number == wantEp.Number })
	if !ok {
		return nil, provider.NotFound(FlixHQID, "episode %d of season %d not listed", wantEp.Number, want.Number)
	}
	if err := httputil.ValidateSlug(ep.ID); err != nil {
		return nil, fmt.Errorf("invalid episode ID: %w", err)
	}

	doc, err = f.fetchDocument(ctx, fc, fmt.Sprintf("%s/ajax/v2/episode/servers/%s", f.baseURL(), ep.ID))
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return parseServers(doc), nil
}

// embedURL returns the player URL for a server.
// The endpoint returns {"type":"iframe","link":"https://...","sources":[],"tracks":[]}.
func (f *FlixHQ) embedURL(ctx context.Context, fc fetcher.Fetcher, serverID string) (string, error) {
	if err := httputil.ValidateSlug(serverID); err != nil {
		return "", fmt.Errorf("invalid server ID: %w", err)
	}

	var result struct {
		Link string `json:"link"`
	}
	if _, err := fetcher.GetJSON(ctx, fc, fmt.Sprintf("%s/ajax/episode/sources/%s", f.baseURL(), serverID), fetcher.Options{
		Headers: map[string]string{"X-Requested-With": "XMLHttpRequest"},
	}, &result); err != nil {
		return "", fmt.Errorf("getting embed URL: %w", err)
	}
	if err := httputil.ValidateURL(result.Link); err != nil {
		return "", fmt.Errorf("no embed URL for server %s: %w", serverID, err)
	}
	return result.Link, nil
}

func (f *FlixHQ) fetchDocument(ctx context.Context, fc fetcher.Fetcher, pageURL string) (*goquery.Document, error) {
	body, err := fetcher.GetText(ctx, fc, pageURL, map[string]string{"Referer": f.baseURL() + "/"})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}
