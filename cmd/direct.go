package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"streamscout/internal/media"
	"streamscout/internal/provider"
)

var sourceCmd = &cobra.Command{
	Use:   "source <id> [title]",
	Short: "Run one source directly and print its stream or embed handoffs",
	Example: `  streamscout source flixhq "Breaking Bad" -s 1 -e 2
  streamscout source twoembed --tmdb 9552`,
	Args: cobra.MinimumNArgs(1),
	RunE: sourceRun,
}

var embedCmd = &cobra.Command{
	Use:     "embed <id> <url>",
	Short:   "Run one embed directly on a player URL",
	Example: `  streamscout embed vidcloud "https://megacloud.blog/embed-2/v3/e-1/AbCdEf?z="`,
	Args:    cobra.ExactArgs(2),
	RunE:    embedRun,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered sources and embeds",
	Args:  cobra.NoArgs,
	RunE:  providersRun,
}

func init() {
	addMediaFlags(sourceCmd)
}

func sourceRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := withRunTimeout(cmd.Context())
	defer cancel()

	m, err := mediaFromFlags(ctx, a, args[1:])
	if err != nil {
		return err
	}
	opts := a.runOptions()
	opts.Media = m

	out, err := a.runner.RunSourceScraper(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("source %s: %w", args[0], err)
	}

	if flagJSON || out.Stream == nil {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printStream(cmd.OutOrStdout(), &media.RunOutput{SourceID: args[0], Stream: out.Stream})
	return nil
}

func embedRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := withRunTimeout(cmd.Context())
	defer cancel()

	out, err := a.runner.RunEmbedScraper(ctx, args[0], args[1], a.runOptions())
	if err != nil {
		return fmt.Errorf("embed %s: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printStream(cmd.OutOrStdout(), &media.RunOutput{SourceID: "-", EmbedID: args[0], Stream: out.Stream})
	return nil
}

func providersRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	metas := a.runner.Registry().Metas()
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), metas)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-7s %-18s %-16s %5s  %s\n", "KIND", "ID", "NAME", "RANK", "NOTES")
	for _, m := range metas {
		fmt.Fprintf(w, "%-7s %-18s %-16s %5d  %s\n", m.Kind, m.ID, m.Name, m.Rank, notes(m))
	}
	return nil
}

func notes(m provider.Meta) string {
	var n []string
	if m.Disabled {
		n = append(n, "disabled")
	}
	if m.External {
		n = append(n, "external")
	}
	for _, f := range m.Flags {
		n = append(n, string(f))
	}
	return strings.Join(n, ", ")
}
