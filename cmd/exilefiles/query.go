package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/exilefiles/internal/manifest"
	"github.com/jchantrell/exilefiles/internal/utils"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the extraction manifest",
	Long: `Query inspects the SQLite manifest written by extract --manifest. It lists
recorded runs, shows the failures of one run, or executes an SQL query against
the runs and entries tables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		listRuns, err := cmd.Flags().GetBool("runs")
		if err != nil {
			return fmt.Errorf("failed to get runs flag: %w", err)
		}
		failuresOf, err := cmd.Flags().GetString("failures")
		if err != nil {
			return fmt.Errorf("failed to get failures flag: %w", err)
		}

		if cfg.Manifest == "" {
			return fmt.Errorf("no manifest configured, set --manifest or manifest in the config file")
		}

		slog.Debug("Query parameters",
			"manifest", cfg.Manifest,
			"runs", listRuns,
			"failures", failuresOf)

		m, err := manifest.Open(ctx, manifest.DefaultOptions(cfg.Manifest))
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		defer m.Close()

		// Handle --runs flag
		if listRuns {
			runs, err := m.Runs(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-36s  %-20s  %-12s  %9s  %9s  %7s  %10s  %s\n",
				"Run", "Started", "Version", "Extracted", "Skipped", "Failed", "Size", "Pattern")
			fmt.Println(strings.Repeat("-", 130))
			for _, r := range runs {
				fmt.Printf("%-36s  %-20s  %-12s  %9s  %9s  %7s  %10s  %s\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Version,
					utils.Number(int64(r.Extracted)), utils.Number(int64(r.Skipped)),
					utils.Number(int64(r.Failed)), utils.Bytes(r.Bytes), utils.Truncate(r.Pattern, 40))
			}

			return nil
		}

		// Handle --failures flag
		if failuresOf != "" {
			failures, err := m.Failures(ctx, failuresOf)
			if err != nil {
				return err
			}

			fmt.Printf("Failures for run '%s':\n", failuresOf)
			for _, f := range failures {
				fmt.Printf("  %s (bundle %d, %016x): %s\n", f.Path, f.Bundle, f.PathHash, f.Error)
			}

			return nil
		}

		// Handle SQL query execution
		if len(args) > 0 {
			query := args[0]
			slog.Debug("Executing SQL query", "query", query)

			rows, err := m.Query(ctx, query)
			if err != nil {
				return err
			}
			defer rows.Close()

			// Get column names
			columns, err := rows.Columns()
			if err != nil {
				return fmt.Errorf("getting column names: %w", err)
			}

			fmt.Println(strings.Join(columns, "\t"))
			seps := make([]string, len(columns))
			for i, col := range columns {
				seps[i] = strings.Repeat("-", len(col))
			}
			fmt.Println(strings.Join(seps, "\t"))

			values := make([]any, len(columns))
			valuePtrs := make([]any, len(columns))
			for i := range values {
				valuePtrs[i] = &values[i]
			}

			for rows.Next() {
				if err := rows.Scan(valuePtrs...); err != nil {
					return fmt.Errorf("scanning row: %w", err)
				}

				cells := make([]string, len(values))
				for i, val := range values {
					switch v := val.(type) {
					case nil:
						cells[i] = "NULL"
					case []byte:
						cells[i] = string(v)
					default:
						cells[i] = fmt.Sprint(v)
					}
				}
				fmt.Println(strings.Join(cells, "\t"))
			}

			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterating rows: %w", err)
			}

			return nil
		}

		return fmt.Errorf("no query provided, use --runs to list runs or --failures <run> to show failures")
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("runs", false, "List recorded runs")
	queryCmd.Flags().String("failures", "", "Show failed files of the given run")
}
