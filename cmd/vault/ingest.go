package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/ingest"
	"github.com/andrew/rag-vault/pkg/llm"
)

var (
	ingestKeepExisting bool
	ingestCaptionModel string
	ingestQdrantURL    string
	ingestQdrantAPIKey string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed chunks and images and load them into Qdrant",
	Long: `Loads every chunk file under Rag_Vault/articles into the text collection and every
image under Media_Vault/images into the media collection, with an image vector and,
when a caption exists, a caption vector. Both collections are recreated empty unless
--keep-existing is given.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestKeepExisting, "keep-existing", false, "keep existing collections and upsert over them")
	ingestCmd.Flags().StringVar(&ingestCaptionModel, "caption-model", "", "Ollama vision model for images without a registry caption")
	ingestCmd.Flags().StringVar(&ingestQdrantURL, "qdrant-url", "", "Qdrant gRPC address (overrides QDRANT_URL)")
	ingestCmd.Flags().StringVar(&ingestQdrantAPIKey, "qdrant-api-key", "", "Qdrant API key (overrides QDRANT_API_KEY)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	layout, err := vaultLayout()
	if err != nil {
		return err
	}
	if ingestQdrantURL != "" {
		cfg.Qdrant.URL = ingestQdrantURL
	}
	if ingestQdrantAPIKey != "" {
		cfg.Qdrant.APIKey = ingestQdrantAPIKey
	}
	if ingestCaptionModel != "" {
		cfg.Text.CaptionModel = ingestCaptionModel
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := newProvider(cfg, true)
	if err != nil {
		return err
	}

	var captioner llm.Captioner
	if cfg.Text.CaptionModel != "" {
		captioner, err = newCaptioner(cfg.Text.CaptionModel, cfg.Text.OllamaHost)
		if err != nil {
			return err
		}
		defer captioner.Close()
	}

	report, err := ingest.New(layout, store, provider, ingest.Options{
		TextCollection:  cfg.Collections.Text,
		MediaCollection: cfg.Collections.Media,
		KeepExisting:    ingestKeepExisting,
		TextBatch:       cfg.Batch.Text,
		UpsertBatch:     cfg.Batch.Upsert,
		Captioner:       captioner,
	}).Run(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("Text points:  %d (%s holds %d)\n", report.TextPoints, cfg.Collections.Text, report.TextCount)
	cmd.Printf("Media points: %d (%s holds %d)\n", report.MediaPoints, cfg.Collections.Media, report.MediaCount)
	if report.Captioned > 0 {
		cmd.Printf("Captioned:    %d\n", report.Captioned)
	}
	for _, w := range report.Warnings {
		warnColor.Fprintf(cmd.OutOrStdout(), "⚠️  %v\n", w)
	}
	if n := len(report.IndexErrors); n > 0 {
		warnColor.Fprintf(cmd.OutOrStdout(), "⚠️  %d payload indexes skipped\n", n)
	}
	printSummary(cmd, report.TextPoints+report.MediaPoints, report.SkippedRows+report.InvalidRows,
		fmt.Sprintf("%d rows skipped, %d invalid", report.SkippedRows, report.InvalidRows))
	return nil
}
