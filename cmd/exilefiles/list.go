package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jchantrell/exilefiles/internal/extract"
	"github.com/jchantrell/exilefiles/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list [glob]",
	Short: "List archive paths matching a glob",
	Long: `List prints every archive path matching the glob (default "**"), one per
line, followed by a count and total size on stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := extract.DefaultPattern
		if len(args) > 0 {
			pattern = args[0]
		}

		m, err := extract.NewMatcher(pattern)
		if err != nil {
			return err
		}

		archive, err := openArchive(cmd.Context())
		if err != nil {
			return err
		}
		defer archive.Close()

		var size int64
		entries := archive.Table.Match(m.Match)
		for _, e := range entries {
			fmt.Println(e.Path)
			size += int64(e.Entry.Size)
		}

		fmt.Fprintf(os.Stderr, "%s files, %s\n", utils.Number(int64(len(entries))), utils.Bytes(size))
		if n := archive.Table.Unnamed; n > 0 {
			fmt.Fprintf(os.Stderr, "%s indexed files have no known path\n", utils.Number(int64(n)))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
