package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jchantrell/exilefiles/internal/bundle"
	"github.com/jchantrell/exilefiles/internal/extract"
	"github.com/jchantrell/exilefiles/internal/manifest"
	"github.com/jchantrell/exilefiles/internal/utils"
)

// maxReportedFailures bounds the failures printed after a run.
const maxReportedFailures = 20

var overwrite bool

var extractCmd = &cobra.Command{
	Use:   "extract <output-dir> [glob]",
	Short: "Extract files matching a glob into a directory",
	Long: `Extract writes every archive file whose path matches the glob (default "**")
below the output directory, recreating the archive's directory tree.

Files that already exist with the expected size are skipped, so an interrupted
run can be resumed by running the same command again. Matching is
case-insensitive; "*" stays within one path segment and "**" crosses them.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		start := time.Now()

		pattern := extract.DefaultPattern
		if len(args) > 1 {
			pattern = args[1]
		}
		outputDir := args[0]

		archive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer archive.Close()

		slog.Info("Starting extract...", "version", archive.Version, "pattern", pattern, "output", outputDir, "workers", cfg.Workers)

		var progress *utils.Progress
		pipeline := extract.New(archive.Reader, archive.Table, extract.Config{
			OutputDir: outputDir,
			Pattern:   pattern,
			Workers:   cfg.Workers,
			Overwrite: overwrite,
			OnProgress: func(done, total int, job extract.Job) {
				if progress == nil {
					progress = utils.NewProgress(total, showProgress())
				}
				progress.Update(done, job.RelativePath)
			},
		})

		run := manifest.NewRun(archive.Version, cfg.Source, pattern, outputDir)
		processingStart := time.Now()

		res, err := pipeline.Run(ctx)
		if progress != nil {
			progress.Finish()
		}
		if err != nil {
			return fmt.Errorf("extracting: %w", err)
		}

		printSummary(res, archive.Reader.Stats(), time.Since(start), time.Since(processingStart))

		if cfg.Manifest != "" {
			// The run is recorded even when interrupted.
			if err := recordRun(context.WithoutCancel(ctx), run, res); err != nil {
				slog.Error("Failed to record run", "manifest", cfg.Manifest, "error", err)
			} else {
				fmt.Printf("Run recorded: %s\n", run.ID)
			}
		}

		if len(res.Failures) > 0 {
			return fmt.Errorf("%d of %d files failed", len(res.Failures), res.Matched)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction canceled: %w", err)
		}

		return nil
	},
}

func recordRun(ctx context.Context, run *manifest.Run, res *extract.Result) error {
	m, err := manifest.Open(ctx, manifest.DefaultOptions(cfg.Manifest))
	if err != nil {
		return err
	}
	return multierr.Append(m.RecordRun(ctx, run, res), m.Close())
}

func printSummary(res *extract.Result, stats bundle.Stats, total, processing time.Duration) {
	var outputErrors int
	for i, f := range res.Failures {
		if extract.IsOutputError(f.Err) {
			outputErrors++
		}
		if i < maxReportedFailures {
			slog.Error("Failed to extract", "path", f.Job.RelativePath, "error", f.Err)
		}
	}
	if len(res.Failures) > maxReportedFailures {
		slog.Error("More failures omitted", "count", len(res.Failures)-maxReportedFailures)
	}

	var rate float64
	if s := processing.Seconds(); s > 0 {
		rate = float64(res.Extracted) / s
	}

	fmt.Printf("Files matched: %s\n", utils.Number(int64(res.Matched)))
	fmt.Printf("Files extracted: %s (%s)\n", utils.Number(int64(res.Extracted)), utils.Bytes(res.Bytes))
	fmt.Printf("Files skipped: %s\n", utils.Number(int64(res.Skipped)))
	fmt.Printf("Files failed: %s (%d writing output)\n", utils.Number(int64(len(res.Failures))), outputErrors)
	fmt.Printf("Blocks decompressed: %s (%s fetched)\n", utils.Number(stats.Decompressions), utils.Bytes(stats.FetchedBytes))
	fmt.Printf("Extraction rate: %s files/sec\n", utils.Rate(rate))
	fmt.Printf("Total duration: %s\n", utils.Duration(total))
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&overwrite, "overwrite", false, "rewrite files that already exist")
}
