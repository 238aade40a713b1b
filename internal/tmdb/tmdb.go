// Package tmdb looks up the metadata a resolution needs (title, year, and the
// season/episode ids of a show) from The Movie Database.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"streamscout/internal/fetcher"
	"streamscout/internal/httputil"
	"streamscout/internal/media"
	"streamscout/internal/provider"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// ErrNoAPIKey is returned by every lookup when no key is configured.
var ErrNoAPIKey = &provider.ConfigurationError{Msg: "tmdb api key not configured"}

// Client is safe for concurrent use. Identical lookups in flight at the same
// time share one request, and successful responses are memoized.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	fetcher  fetcher.Fetcher
	logger   *log.Logger

	attempts uint
	delay    time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string][]byte
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithFetcher replaces the default direct fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

// WithRetry sets the attempt budget and the base backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.delay = delay
	}
}

// WithLogger reports retries at debug level.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  defaultBaseURL,
		language: "en-US",
		attempts: 4,
		delay:    300 * time.Millisecond,
		memo:     make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = fetcher.NewStandardFetcher(httputil.NewClient(15 * time.Second))
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	return c
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type movieDetails struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	IMDBID      string `json:"imdb_id"`
}

type showDetails struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	FirstAirDate string          `json:"first_air_date"`
	Seasons      []seasonSummary `json:"seasons"`
}

type seasonSummary struct {
	ID           int64 `json:"id"`
	SeasonNumber int   `json:"season_number"`
}

type seasonDetails struct {
	ID       int64 `json:"id"`
	Episodes []struct {
		ID            int64 `json:"id"`
		EpisodeNumber int   `json:"episode_number"`
	} `json:"episodes"`
}

// Movie returns the descriptor of a movie.
func (c *Client) Movie(ctx context.Context, id string) (media.ScrapeMedia, error) {
	if err := httputil.ValidateNumericID(id); err != nil {
		return media.ScrapeMedia{}, errors.Wrap(err, "tmdb movie id")
	}

	var d movieDetails
	if err := c.get(ctx, "/movie/"+id, &d); err != nil {
		return media.ScrapeMedia{}, err
	}

	m := media.NewMovie(strconv.FormatInt(d.ID, 10), d.Title, year(d.ReleaseDate))
	m.IMDBID = d.IMDBID
	return m, nil
}

// Episode returns the descriptor of one episode of a show.
func (c *Client) Episode(ctx context.Context, showID string, season, episode int) (media.ScrapeMedia, error) {
	if err := httputil.ValidateNumericID(showID); err != nil {
		return media.ScrapeMedia{}, errors.Wrap(err, "tmdb show id")
	}

	var show showDetails
	if err := c.get(ctx, "/tv/"+showID, &show); err != nil {
		return media.ScrapeMedia{}, err
	}
	if _, ok := lo.Find(show.Seasons, func(s seasonSummary) bool { return s.SeasonNumber == season }); !ok {
		return media.ScrapeMedia{}, provider.NotFound("tmdb", "%s has no season %d", show.Name, season)
	}

	var sd seasonDetails
	if err := c.get(ctx, fmt.Sprintf("/tv/%s/season/%d", showID, season), &sd); err != nil {
		return media.ScrapeMedia{}, err
	}
	var episodeID int64
	for _, e := range sd.Episodes {
		if e.EpisodeNumber == episode {
			episodeID = e.ID
			break
		}
	}
	if episodeID == 0 {
		return media.ScrapeMedia{}, provider.NotFound("tmdb", "%s season %d has no episode %d", show.Name, season, episode)
	}

	return media.NewShow(
		strconv.FormatInt(show.ID, 10),
		show.Name,
		year(show.FirstAirDate),
		media.Numbered{Number: season, TMDBID: strconv.FormatInt(sd.ID, 10)},
		media.Numbered{Number: episode, TMDBID: strconv.FormatInt(episodeID, 10)},
	), nil
}

// Lookup dispatches to Movie or Episode.
func (c *Client) Lookup(ctx context.Context, t media.MediaType, id string, season, episode int) (media.ScrapeMedia, error) {
	if t == media.Show {
		return c.Episode(ctx, id, season, episode)
	}
	return c.Movie(ctx, id)
}

// get fetches path once per key at a time, retrying transient failures
// with jittered exponential backoff.
func (c *Client) get(ctx context.Context, path string, v any) error {
	if !c.Configured() {
		return ErrNoAPIKey
	}

	c.mu.RLock()
	body, ok := c.memo[path]
	c.mu.RUnlock()

	if !ok {
		res, err, _ := c.group.Do(path, func() (any, error) {
			c.mu.RLock()
			b, ok := c.memo[path]
			c.mu.RUnlock()
			if ok {
				return b, nil
			}

			b, err := c.fetchWithRetry(ctx, path)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.memo[path] = b
			c.mu.Unlock()
			return b, nil
		})
		if err != nil {
			return err
		}
		body = res.([]byte)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrapf(err, "decoding tmdb %s", path)
	}
	return nil
}

func (c *Client) fetchWithRetry(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path
	query := url.Values{"api_key": {c.apiKey}, "language": {c.language}}

	return retry.DoWithData(
		func() ([]byte, error) {
			resp, err := c.fetcher.Fetch(ctx, endpoint, fetcher.Options{Query: query, ResponseType: fetcher.ResponseText})
			if err != nil {
				return nil, classify(c.redact(err), path)
			}
			return resp.Body, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxJitter(c.delay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("tmdb retry", "path", path, "attempt", n+1, "err", err)
		}),
	)
}

// classify marks everything except rate limiting, server errors and
// transport failures as unrecoverable.
func classify(err error, path string) error {
	if Transient(err) {
		return err
	}
	var fe *fetcher.FetchError
	if errors.As(err, &fe) && fe.StatusCode == 404 {
		return retry.Unrecoverable(provider.NotFound("tmdb", "%s does not exist", path))
	}
	return retry.Unrecoverable(err)
}

// redact removes the API key from a fetch error. The key travels in the
// query string, so both the reported URL and any transport message carry it.
func (c *Client) redact(err error) error {
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		return err
	}
	out := &fetcher.FetchError{URL: fe.URL, StatusCode: fe.StatusCode, Err: fe.Err}
	if u, perr := url.Parse(fe.URL); perr == nil {
		q := u.Query()
		q.Del("api_key")
		u.RawQuery = q.Encode()
		out.URL = u.String()
	}
	out.URL = strings.ReplaceAll(out.URL, c.apiKey, "REDACTED")
	if fe.Err != nil && strings.Contains(fe.Err.Error(), c.apiKey) {
		out.Err = &redactedError{msg: strings.ReplaceAll(fe.Err.Error(), c.apiKey, "REDACTED"), err: fe.Err}
	}
	return out
}

// redactedError rewrites a message but keeps the chain for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// Transient reports whether a failed request is worth retrying.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == 0 || fe.StatusCode == 429 || fe.StatusCode >= 500
}

func year(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}
