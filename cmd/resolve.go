package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"streamscout/internal/media"
	"streamscout/internal/normalize"
	"streamscout/internal/subtitle"
)

// Media flags shared by resolve and source.
var (
	flagTMDB    string
	flagType    string
	flagYear    int
	flagSeason  int
	flagEpisode int

	flagSubsDir  string
	flagLanguage string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [title]",
	Short: "Find a playable stream, trying providers in rank order",
	Example: `  streamscout resolve "The Exorcist" --year 1973
  streamscout resolve --tmdb 1396 --type show -s 1 -e 2 --subs-dir ./subs`,
	Args: cobra.ArbitraryArgs,
	RunE: resolveRun,
}

func init() {
	addMediaFlags(resolveCmd)
	resolveCmd.Flags().StringVar(&flagSubsDir, "subs-dir", "", "Save the best matching caption as .vtt into this directory")
	resolveCmd.Flags().StringVarP(&flagLanguage, "language", "l", "", "Caption language (default: subs_language from config)")
}

func addMediaFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagTMDB, "tmdb", "", "TMDB id; the title is looked up when a TMDB key is configured")
	c.Flags().StringVar(&flagType, "type", "", "Media type: movie | show (default: show when --season is set)")
	c.Flags().IntVarP(&flagYear, "year", "y", 0, "Release year")
	c.Flags().IntVarP(&flagSeason, "season", "s", 0, "Season number")
	c.Flags().IntVarP(&flagEpisode, "episode", "e", 0, "Episode number")
}

// mediaFromFlags builds the descriptor from args and flags, consulting TMDB
// when only an id was given.
func mediaFromFlags(ctx context.Context, a *app, args []string) (media.ScrapeMedia, error) {
	title := strings.TrimSpace(strings.Join(args, " "))

	t := media.Movie
	switch {
	case flagType != "":
		var err error
		if t, err = media.ParseMediaType(flagType); err != nil {
			return media.ScrapeMedia{}, err
		}
	case flagSeason > 0 || flagEpisode > 0:
		t = media.Show
	}
	if t == media.Show && (flagSeason <= 0 || flagEpisode <= 0) {
		return media.ScrapeMedia{}, fmt.Errorf("shows need --season and --episode")
	}

	if title == "" && flagTMDB != "" && a.tmdb.Configured() {
		m, err := a.tmdb.Lookup(ctx, t, flagTMDB, flagSeason, flagEpisode)
		if err != nil {
			return media.ScrapeMedia{}, fmt.Errorf("looking up tmdb %s: %w", flagTMDB, err)
		}
		logs.Debug("tmdb lookup", "media", m.String())
		return m, nil
	}

	var m media.ScrapeMedia
	if t == media.Show {
		m = media.NewShow(flagTMDB, title, flagYear,
			media.Numbered{Number: flagSeason}, media.Numbered{Number: flagEpisode})
	} else {
		m = media.NewMovie(flagTMDB, title, flagYear)
	}
	if err := m.Validate(); err != nil {
		return media.ScrapeMedia{}, fmt.Errorf("need a title or --tmdb: %w", err)
	}
	return m, nil
}

func resolveRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := withRunTimeout(cmd.Context())
	defer cancel()

	m, err := mediaFromFlags(ctx, a, args)
	if err != nil {
		return err
	}

	opts := a.runOptions()
	opts.Media = m
	logs.Info("resolving", "media", m.String())

	out, err := a.runner.RunAll(ctx, opts)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", m, err)
	}
	if out == nil {
		return fmt.Errorf("no stream found for %s", m)
	}

	if flagSubsDir != "" {
		saveCaption(ctx, a, m, out.Stream)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printStream(cmd.OutOrStdout(), out)
	return nil
}

// saveCaption downloads the best caption for the configured language.
// Failures are logged; a missing caption never fails the resolution.
func saveCaption(ctx context.Context, a *app, m media.ScrapeMedia, s *media.Stream) {
	lang := flagLanguage
	if lang == "" {
		lang = cfg.SubsLanguage
	}
	best := subtitle.BestMatch(s.Captions, lang)
	if best == nil {
		logs.Warn("no caption matches", "language", lang, "available", len(s.Captions))
		return
	}

	track, err := subtitle.Fetch(ctx, a.fetcher, *best, s.Headers)
	if err != nil {
		logs.Warn("caption download failed", "url", best.URL, "err", err)
		return
	}
	name := m.Title
	if name == "" {
		name = "tmdb-" + m.TMDBID
	}
	path, err := subtitle.Save(flagSubsDir, name, track)
	if err != nil {
		logs.Warn("saving caption failed", "err", err)
		return
	}
	logs.Info("caption saved", "path", path, "from", track.Source)
}

func printStream(w io.Writer, out *media.RunOutput) {
	via := out.SourceID
	if out.EmbedID != "" {
		via += " -> " + out.EmbedID
	}
	fmt.Fprintf(w, "provider: %s\n", via)
	fmt.Fprintf(w, "type:     %s\n", out.Stream.Type)
	fmt.Fprintf(w, "url:      %s\n", normalize.PlayableURL(out.Stream))
	if labels := normalize.QualityLabels(out.Stream); len(labels) > 0 {
		fmt.Fprintf(w, "quality:  %s\n", strings.Join(labels, ", "))
	}
	for k, v := range out.Stream.Headers {
		fmt.Fprintf(w, "header:   %s: %s\n", k, v)
	}
	for _, c := range out.Stream.Captions {
		fmt.Fprintf(w, "caption:  [%s] %s %s\n", c.Language, c.Label, c.URL)
	}
}
