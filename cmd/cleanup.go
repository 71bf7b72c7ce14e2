package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glefebvre/livetv/internal/cleanup"
	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/dryrun"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old entries from the key/value store",
	Long: `Scan the key/value store and delete entries whose write time is older
than cleanup.max_age_hours (default: 7 days), whatever TTL they were written with.

Housekeeping keys (the playlist fingerprint and the last cleanup summary) and
cleanup.excluded_keys are never deleted. Only the first page of keys the
backend lists is considered per run.

Without --yes a dry run is shown first and the deletion must be confirmed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(config.Get())
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		fmt.Println("=== Key/Value Cleanup ===")
		fmt.Printf("Backend: %s\n", a.cfg.KV.Backend)

		if dryRun || !yes {
			if dryRun {
				fmt.Println("Mode: DRY RUN (no keys will be deleted)")
			}
			res, err := a.sweeper.Sweep(ctx, cleanup.Options{DryRun: true})
			if err != nil {
				return fmt.Errorf("cleanup dry run failed: %w", err)
			}
			dryrun.PrintSummary(os.Stdout, res.Report)

			if dryRun || res.Report.ToDelete == 0 {
				return nil
			}
			if !confirm(fmt.Sprintf("\nDelete %d keys? [y/N] ", res.Report.ToDelete)) {
				fmt.Println("Aborted.")
				return nil
			}
		}

		res, err := a.sweeper.Sweep(ctx, cleanup.Options{})
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}

		rec := res.Record
		fmt.Printf("\nScanned: %d\n", rec.Scanned)
		fmt.Printf("Expired: %d\n", rec.Expired)
		fmt.Printf("Deleted (bulk): %d\n", rec.Deleted)
		fmt.Printf("Deleted (one by one): %d\n", rec.FallbackDeleted)
		if rec.FallbackFailed > 0 {
			fmt.Printf("Failed: %d\n", rec.FallbackFailed)
		}
		fmt.Println("\nCleanup complete!")
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "show what would be deleted without deleting")
	cleanupCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(cleanupCmd)
}
