package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/scene-chipper/internal/audit"
	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/gdalio"
	"github.com/robert-malhotra/scene-chipper/internal/pipeline"
	"github.com/robert-malhotra/scene-chipper/internal/samples"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

var runFlags struct {
	samplesPath string
	splits      []string
	summaryJSON bool
	workers     int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire a chip for every sample in a CSV file",
	Long: "run reads samples (uid,latitude,longitude,date[,split]) and acquires one chip per sample.\n" +
		"Samples that already have a chip are skipped. Failed samples are reported but do not\n" +
		"change the exit status. SIGINT stops dispatching new samples; in-flight samples finish.",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.samplesPath, "samples", "", "Samples CSV file (required)")
	f.StringSliceVar(&runFlags.splits, "split", nil, "Only process samples in these splits")
	f.BoolVar(&runFlags.summaryJSON, "summary-json", false, "Print the run summary as JSON to stdout")
	f.IntVar(&runFlags.workers, "workers", 0, "Override PIPELINE_WORKERS")

	_ = runCmd.MarkFlagRequired("samples")
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if runFlags.workers > 0 {
		a.cfg.Pipeline.Workers = runFlags.workers
	}

	all, err := samples.ReadFile(runFlags.samplesPath)
	if err != nil {
		return err
	}
	batch := samples.Filter(all, runFlags.splits...)
	a.logger.Info("loaded samples",
		slog.String("path", runFlags.samplesPath),
		slog.Int("total", len(all)),
		slog.Int("selected", len(batch)),
	)

	out, err := store.NewFileStore(a.cfg.Output.Dir)
	if err != nil {
		return err
	}
	out.WithLogger(a.logger)

	reader := gdalio.NewReader(a.cfg.Extract.Timeout).
		WithResampler(a.cfg.Extract.Resampling).
		WithLogger(a.logger)

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithObserver(a.metrics),
	}
	if a.cfg.Audit.DBPath != "" {
		history, err := audit.Open(a.cfg.Audit.DBPath)
		if err != nil {
			return err
		}
		defer history.Close()
		opts = append(opts, pipeline.WithObserver(history.WithLogger(a.logger)))
	}

	p, err := pipeline.New(pipeline.Deps{
		Catalog:   a.newCatalog(),
		Extractor: a.newExtractor(reader),
		Store:     out,
	}, a.pipelineConfig(), opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := p.Run(ctx, batch)
	if err != nil {
		return err
	}
	a.pushMetrics(ctx, "run")
	if summary.Interrupted {
		a.logger.Warn("run interrupted before all samples were dispatched",
			slog.Int("processed", len(summary.Outcomes)),
			slog.Int("total", summary.Total),
		)
	}

	return printSummary(cmd.OutOrStdout(), summary, runFlags.summaryJSON)
}

func printSummary(w io.Writer, s *pipeline.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Run:        %s\n", s.RunID)
	fmt.Fprintf(w, "Samples:    %d\n", s.Total)
	fmt.Fprintf(w, "Persisted:  %d\n", s.Persisted)
	fmt.Fprintf(w, "Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "Failed:     %d\n", s.Failed)
	if s.Interrupted {
		fmt.Fprintf(w, "Interrupted after %d samples\n", len(s.Outcomes))
	}
	if s.Failed > 0 {
		byKind := s.FailuresByKind()
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-20s %d\n", k+":", byKind[errkind.Kind(k)])
		}
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s [%s] %s\n", f.SampleID, f.Kind, f.Reason)
	}
	return nil
}
