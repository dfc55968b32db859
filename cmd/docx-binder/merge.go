package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docxbinder/internal/merger"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <pdfs...>",
	Short: "Merge existing PDF files into one, in argument order",
	Long: `Merge copies every page of every PDF argument, in order, into a single
document. If any file is missing or not a valid PDF nothing is written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		out, err := merger.New(slog.Default()).CombineFiles(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("failed to create dir for %s: %w", output, err)
		}
		if err := os.WriteFile(output, out, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files merged\n", output, len(args))
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringP("output", "o", "merged.pdf", "path of the merged PDF")
	rootCmd.AddCommand(mergeCmd)
}
