package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glefebvre/livetv/internal/config"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <channel name>",
	Short: "Scrape the configured pages for a channel's links",
	Long: `Scrape every page in scraper.pages for links matching the channel name or
its aliases, cache the result under scrape:<name> and print the candidates.

A cached result younger than scraper.ttl_seconds is printed as is unless
--force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		name := strings.Join(args, " ")

		a, err := newApp(config.Get())
		if err != nil {
			return err
		}
		defer a.close()

		if len(a.cfg.Scraper.Pages) == 0 {
			return fmt.Errorf("no scrape pages configured (scraper.pages)")
		}

		cands := a.resolver.Enrich(context.Background(), name, force)
		fmt.Printf("=== Candidates for %q (%d) ===\n", name, len(cands))
		for i, c := range cands {
			fmt.Printf("%3d. %s\n     %s\n", i+1, c.Title, c.ExternalURL)
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().Bool("force", false, "ignore the cached result")
	rootCmd.AddCommand(enrichCmd)
}
