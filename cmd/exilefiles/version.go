package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchantrell/exilefiles/internal/session"
	"github.com/jchantrell/exilefiles/internal/source"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the content version that would be read",
	Long: `Version resolves the configured patch. For "1" and "2" with the remote
source this asks the patch server for the live version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := session.NewSource(cfg)
		if err != nil {
			return err
		}
		defer src.Close()

		version := cfg.ParsedPatch().Version
		if v, ok := src.(source.Versioned); ok {
			if version, err = v.CurrentVersion(cmd.Context()); err != nil {
				return err
			}
		}
		if version == "" {
			version = "unknown"
		}

		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
