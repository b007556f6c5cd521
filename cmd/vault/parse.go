package main

import (
	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/pdfbundle"
)

var (
	parsePDFDir string
	parseOutDir string
	parseWatch  bool
)

var parseCmd = &cobra.Command{
	Use:   "parse-pdfs",
	Short: "Convert PDFs into text, table and image bundles",
	Long: `Converts every PDF under --pdf-dir with Marker and writes one bundle per PDF under
--out-dir: text_only.txt, tables/table_N.md and .csv, and the referenced images.
dataset_index.json lists the successful bundles. With --watch, PDFs added to or
rewritten in --pdf-dir afterwards are converted as they arrive.`,
	Args: cobra.NoArgs,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parsePDFDir, "pdf-dir", "pdf", "folder containing PDF files")
	parseCmd.Flags().StringVar(&parseOutDir, "out-dir", "parsed", "output root folder")
	parseCmd.Flags().BoolVarP(&parseWatch, "watch", "w", false, "keep running and convert new PDFs")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, _ []string) error {
	conv := newConverter()
	summary, err := pdfbundle.Run(cmd.Context(), conv, parsePDFDir, parseOutDir)
	if err != nil {
		return err
	}
	printSummary(cmd, len(summary.Bundles), summary.Failed, summary.IndexPath)

	if !parseWatch {
		return nil
	}
	w := pdfbundle.NewWatcher(conv, parsePDFDir, parseOutDir)
	w.OnBundle = func(b models.Bundle) {
		logger.Info("Bundle ready: %s (%d tables, %d images)", b.BundleDir, b.NumTables, b.NumImages)
	}
	return w.Watch(cmd.Context())
}
