package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var convertCmd = &cobra.Command{
	Use:   "convert <inputs...>",
	Short: "Convert .docx documents to PDF without merging",
	Long: `Convert runs LibreOffice once per input, in order, writing <name>.pdf into
the output directory. Inputs that fail are reported and skipped. The paths
of the PDFs produced are printed one per line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir := viper.GetString("output-dir")
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir %s: %w", outDir, err)
		}

		batch := newOrchestrator().Convert(cmd.Context(), args, outDir)
		for _, p := range batch.Converted {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		for _, f := range batch.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", f)
		}
		if len(batch.Converted) == 0 {
			return fmt.Errorf("none of %d documents converted", len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
