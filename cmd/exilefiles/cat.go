package main

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/exilefiles/internal/bundle"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write a single archive file to stdout",
	Long: `Cat writes the contents of one archive file to stdout. The path is matched
case-insensitively and may use either slash.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimPrefix(bundle.NormalizePath(args[0]), "/")
		if !fs.ValidPath(name) {
			return fmt.Errorf("invalid path %q", args[0])
		}

		ctx := cmd.Context()
		archive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer archive.Close()

		data, err := fs.ReadFile(archive.FS(ctx), name)
		if err != nil {
			return err
		}

		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
