package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/chunker"
	"github.com/andrew/rag-vault/pkg/registry"
)

var (
	chunkMethod   string
	chunkSize     int
	chunkOverlap  int
	chunkOutDir   string
	chunkArticles string
	chunkRegistry string
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split article markdown into JSONL chunk files",
	Long: `Splits every Rag_Vault/articles/DOC_paper_*/DOC_paper_*.md file into chunks and
writes DOC_paper_*_chunks.jsonl next to it, or into --output-dir. Each chunk carries
the document's registry metadata. The semantic method embeds sentences with the
configured text model.`,
	Args: cobra.NoArgs,
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVarP(&chunkMethod, "method", "m", string(chunker.MethodRecursive), fmt.Sprintf("chunking method %v", chunker.Methods))
	chunkCmd.Flags().IntVar(&chunkSize, "chunk-size", chunker.DefaultChunkSize, "chunk size in characters")
	chunkCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", chunker.DefaultChunkOverlap, "overlap between chunks in characters")
	chunkCmd.Flags().StringVarP(&chunkOutDir, "output-dir", "o", "", "write chunk files here instead of next to each article")
	chunkCmd.Flags().StringVar(&chunkArticles, "articles-dir", "", "articles directory (default: <root>/Rag_Vault/articles)")
	chunkCmd.Flags().StringVar(&chunkRegistry, "registry", "", "document registry CSV (default: <root>/Rag_Vault/registry/document_master_list.csv)")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, _ []string) error {
	method, err := chunker.ParseMethod(chunkMethod)
	if err != nil {
		return err
	}

	articles, regPath := chunkArticles, chunkRegistry
	if articles == "" || regPath == "" {
		layout, err := vaultLayout()
		if err != nil {
			return err
		}
		if articles == "" {
			articles = layout.ArticlesDir()
		}
		if regPath == "" {
			regPath = layout.DocumentRegistry()
		}
	}

	reg, err := registry.LoadDocumentRegistry(regPath)
	if err != nil {
		return err
	}

	opts := []chunker.Option{
		chunker.WithMethod(string(method)),
		chunker.WithChunkSize(chunkSize),
		chunker.WithOverlap(chunkOverlap),
		chunker.WithOutputDir(chunkOutDir),
	}
	if method == chunker.MethodSemantic {
		provider, err := newProvider(cfg, false)
		if err != nil {
			return err
		}
		opts = append(opts, chunker.WithEmbedder(provider))
	}

	c, err := chunker.New(reg, opts...)
	if err != nil {
		return err
	}
	stats, err := c.ProcessAll(cmd.Context(), articles)
	if err != nil {
		return err
	}
	printSummary(cmd, stats.Processed, stats.Failed, fmt.Sprintf("%d chunks", stats.TotalChunks))
	return nil
}
