package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glefebvre/livetv/internal/config"
)

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "Extract the genre list from the playlist groups",
	Long: `Fetch the playlist, count channels per group and store the sorted genre
list when the playlist changed since the last extraction.

--force refetches the playlist and rewrites the stored list even when nothing
changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(config.Get())
		if err != nil {
			return err
		}
		defer a.close()

		res := a.resolver.RefreshGenres(context.Background(), force)

		fmt.Printf("=== Genres (%s) ===\n", res.Scope)
		for _, c := range res.Counts {
			fmt.Printf("%-30s %d\n", c.Name, c.Count)
		}
		if len(res.Counts) == 0 {
			for _, g := range res.Genres {
				fmt.Println(g)
			}
		}

		switch {
		case res.SkippedEmpty:
			fmt.Println("\nPlaylist produced no genres; stored list kept.")
		case res.Persisted:
			fmt.Printf("\nStored (changed: %t, forced: %t)\n", res.HashChanged, res.ForceRefresh)
		default:
			fmt.Println("\nUnchanged, nothing written.")
		}
		if res.LastUpdated != "" {
			fmt.Printf("Last updated: %s\n", res.LastUpdated)
		}
		return nil
	},
}

func init() {
	genresCmd.Flags().Bool("force", false, "rewrite the list even if the playlist is unchanged")
	rootCmd.AddCommand(genresCmd)
}
