package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"streamscout/internal/media"
)

type searchResult struct {
	ID    string // e.g. "movie/free-the-exorcist-hd-75043"
	Title string
	URL   string
	Type  media.MediaType
	Year  int
}

type season struct {
	Number int
	ID     string
}

type episode struct {
	Number int
	Title  string
	ID     string
}

type server struct {
	Name string
	ID   string
}

// parseSearchResults extracts search results from a goquery document.
// Titles are read as DOM text, never interpolated into anything.
func parseSearchResults(doc *goquery.Document) []searchResult {
	var results []searchResult

	doc.Find(".film_list-wrap .flw-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".film-name a")
		r := searchResult{Title: strings.TrimSpace(link.Text())}
		href, exists := link.Attr("href")
		if exists {
			r.URL = href
			r.ID = extractID(href)
		}

		if strings.Contains(href, "/tv/") {
			r.Type = media.Show
		} else {
			r.Type = media.Movie
		}

		s.Find(".fd-infor span").Each(func(_ int, span *goquery.Selection) {
			text := strings.TrimSpace(span.Text())
			if y, err := strconv.Atoi(text); err == nil && len(text) == 4 {
				r.Year = y
			}
		})

		if r.Title != "" {
			results = append(results, r)
		}
	})

	return results
}

// parseLastPage reads the highest page number from the pagination block.
func parseLastPage(doc *goquery.Document) int {
	last := 1
	doc.Find(".pagination a[href*='page=']").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		idx := strings.LastIndex(href, "page=")
		if idx == -1 {
			return
		}
		if n, err := strconv.Atoi(href[idx+len("page="):]); err == nil && n > last {
			last = n
		}
	})
	return last
}

// parseSeasons extracts season information from the seasons fragment.
func parseSeasons(doc *goquery.Document) []season {
	var seasons []season

	doc.Find(".dropdown-menu-model .dropdown-item, .dropdown-menu .dropdown-item").Each(func(_ int, s *goquery.Selection) {
		dataID, _ := s.Attr("data-id")
		if dataID == "" {
			dataID = s.Find("a").AttrOr("data-id", "")
		}
		if dataID == "" {
			return
		}

		seasons = append(seasons, season{
			Number: trailingNumber(s.Text()),
			ID:     dataID,
		})
	})

	return lo.UniqBy(seasons, func(s season) string { return s.ID })
}

var episodeNumberRe = regexp.MustCompile(`(?i)\b(?:eps?|episode)\.?\s*(\d+)`)

// parseEpisodes extracts episodes from a season fragment.
func parseEpisodes(doc *goquery.Document) []episode {
	var episodes []episode

	doc.Find(".nav-item a").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-id")
		if !exists {
			return
		}

		text := strings.Join(strings.Fields(s.Text()), " ")
		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = text
		}

		num := 0
		if m := episodeNumberRe.FindStringSubmatch(title + " " + text); m != nil {
			num, _ = strconv.Atoi(m[1])
		} else {
			num = trailingNumber(text)
		}

		episodes = append(episodes, episode{Number: num, Title: title, ID: dataID})
	})

	return episodes
}

// parseServers extracts server options. Movie fragments use data-linkid,
// episode fragments use data-id.
func parseServers(doc *goquery.Document) []server {
	var servers []server

	doc.Find(".link-item, .server-item a, [data-id]").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-linkid")
		if !exists {
			dataID, exists = s.Attr("data-id")
		}
		if !exists {
			return
		}

		name := strings.TrimSpace(s.Find("span").First().Text())
		if name == "" {
			name = strings.TrimSpace(s.Text())
		}
		if name == "" {
			name = s.AttrOr("title", "Unknown")
		}
		name = strings.TrimPrefix(name, "Server ")

		servers = append(servers, server{Name: name, ID: dataID})
	})

	return lo.UniqBy(servers, func(s server) string { return s.ID })
}

// extractID extracts the content ID from a URL path.
// e.g., "/movie/free-the-exorcist-hd-75043" -> "movie/free-the-exorcist-hd-75043"
func extractID(urlPath string) string {
	id := strings.TrimPrefix(urlPath, "/")
	if idx := strings.Index(id, "?"); idx != -1 {
		id = id[:idx]
	}
	return id
}

// extractNumericID extracts the trailing numeric ID from a path.
// e.g., "movie/free-the-exorcist-hd-75043" -> "75043"
func extractNumericID(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err == nil {
		return last
	}
	return ""
}

func trailingNumber(text string) int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSuffix(fields[len(fields)-1], ":"))
	return n
}

// normalizeTitle folds case and punctuation so "Spider-Man: No Way Home"
// matches "Spider Man No Way Home".
func normalizeTitle(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			b.WriteRune(r)
			space = false
		case r == '&':
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("and ")
			space = true
		default:
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// matchResult picks the search result for m: same type and title, same year
// when both sides know it.
func matchResult(results []searchResult, m media.ScrapeMedia) (searchResult, bool) {
	want := normalizeTitle(m.Title)
	candidates := lo.Filter(results, func(r searchResult, _ int) bool {
		return r.Type == m.Type && normalizeTitle(r.Title) == want
	})
	if m.ReleaseYear > 0 {
		if r, ok := lo.Find(candidates, func(r searchResult) bool { return r.Year == m.ReleaseYear }); ok {
			return r, true
		}
		candidates = lo.Filter(candidates, func(r searchResult, _ int) bool { return r.Year == 0 })
	}
	if len(candidates) == 0 {
		return searchResult{}, false
	}
	return candidates[0], true
}
