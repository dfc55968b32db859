// Package main is the docx-binder command: it converts a batch of .docx
// documents to PDF with LibreOffice and binds them into one PDF.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/docxbinder/internal/converter"
	"github.com/Lllllllleong/docxbinder/internal/merger"
	"github.com/Lllllllleong/docxbinder/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "docx-binder [inputs...]",
	Short: "Convert .docx documents to PDF and bind them into one file",
	Long: `docx-binder converts each input document to PDF with a headless LibreOffice
and merges the resulting PDFs, in input order, into a single document.

Without arguments it binds input/doc1.docx through input/doc<count>.docx.
Documents that fail to convert are logged and left out; a document that
converted but cannot be merged fails the whole run and no output is written.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(viper.GetString("log-format"))
	},
	RunE: runBind,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docx-binder.yaml)")
	rootCmd.PersistentFlags().String("soffice", converter.DefaultBinary, "path to the LibreOffice soffice binary")
	rootCmd.PersistentFlags().String("output-dir", "output", "directory for converted PDFs")
	rootCmd.PersistentFlags().String("log-format", "json", "log format: json or text")

	rootCmd.Flags().String("input-dir", "input", "directory holding doc1.docx .. docN.docx")
	rootCmd.Flags().Int("count", 10, "number of docN.docx inputs to enumerate")
	rootCmd.Flags().String("output", filepath.Join("output", pipeline.FinalName), "path of the bound PDF")

	for _, name := range []string{"soffice", "output-dir", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	for _, name := range []string{"input-dir", "count", "output"} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docx-binder")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("BINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setupLogging(format string) {
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

func newOrchestrator() *converter.Orchestrator {
	return converter.New(converter.Config{Binary: viper.GetString("soffice")}, nil, slog.Default())
}

func runBind(cmd *cobra.Command, args []string) error {
	inputs := args
	if len(inputs) == 0 {
		inputs = pipeline.DefaultInputs(viper.GetString("input-dir"), viper.GetInt("count"))
	}

	binder := pipeline.New(newOrchestrator(), merger.New(slog.Default()), slog.Default())
	res, err := binder.Run(cmd.Context(), inputs, viper.GetString("output-dir"), viper.GetString("output"))
	if err != nil {
		slog.Error("Bind failed.", "error", err)
		return err
	}

	for _, f := range res.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %s\n", f.InputPath)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d documents, %d pages\n",
		res.OutputPath, len(res.Converted), res.Requested, res.Pages)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
