package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/scene-chipper/internal/scrub"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

var scrubFlags struct {
	dryRun bool
}

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Delete persisted chips that are entirely black",
	RunE:  runScrub,
}

func init() {
	scrubCmd.Flags().BoolVar(&scrubFlags.dryRun, "dry-run", false, "Report degenerate chips without deleting them")
}

func runScrub(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	out, err := store.NewFileStore(a.cfg.Output.Dir)
	if err != nil {
		return err
	}

	report, err := scrub.New(out.WithLogger(a.logger)).
		WithDryRun(scrubFlags.dryRun).
		WithLogger(a.logger).
		Scrub(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrub failed after %d files: %w", report.Scanned, err)
	}
	a.metrics.RecordScrub(report)
	a.pushMetrics(cmd.Context(), "scrub")

	w := cmd.OutOrStdout()
	verb := "Removed"
	if report.DryRun {
		verb = "Would remove"
	}
	fmt.Fprintf(w, "Scanned:    %d\n", report.Scanned)
	fmt.Fprintf(w, "%s: %d\n", verb, report.RemovedCount())
	for _, id := range report.Removed {
		fmt.Fprintf(w, "  %s\n", id)
	}
	if len(report.Unreadable) > 0 {
		fmt.Fprintf(w, "Unreadable: %d\n", len(report.Unreadable))
		for _, id := range report.Unreadable {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}
