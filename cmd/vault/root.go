package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/config"
	"github.com/andrew/rag-vault/pkg/embed"
	"github.com/andrew/rag-vault/pkg/llm"
	"github.com/andrew/rag-vault/pkg/logger"
	"github.com/andrew/rag-vault/pkg/pdfbundle"
	"github.com/andrew/rag-vault/pkg/registry"
	"github.com/andrew/rag-vault/pkg/vector"
)

var (
	configPath string
	envFile    string
	rootFlag   string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Chunk, embed and search the LIACARA vault",
	Long: `vault turns the articles and images of a LIACARA vault into searchable vectors.
Articles are chunked into JSONL files, chunks and images are embedded and loaded
into Qdrant, and PDFs can be converted into text, table and image bundles.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		logger.SetOutput(cmd.ErrOrStderr())

		loaded, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		if rootFlag != "" {
			loaded.Root = rootFlag
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with connection settings")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "vault root (default: discovered from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
}

// Seams replaced by tests.
var (
	openStore = func(c config.Config) (*vector.Store, error) {
		return vector.Dial(vector.Config{URL: c.Qdrant.URL, APIKey: c.Qdrant.APIKey, Timeout: c.Qdrant.Timeout()})
	}
	newProvider = func(c config.Config, withImages bool) (*embed.Provider, error) {
		text, err := embed.NewOllamaText(c.Text.OllamaHost, c.Text.Model, c.Text.Dim, c.Device)
		if err != nil {
			return nil, err
		}
		var image embed.ImageModel
		if withImages {
			image = embed.NewCLIPClient(c.Image.URL, c.Image.Model, c.Image.Dim, c.Device)
		}
		p := embed.NewProvider(text, image)
		p.TextBatch = c.Batch.Text
		p.ImageBatch = c.Batch.Image
		return p, nil
	}
	newCaptioner = func(model, host string) (llm.Captioner, error) {
		c, err := llm.NewOllamaClient(model, host)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	newConverter = func() pdfbundle.Converter {
		return pdfbundle.NewMarkerConverter()
	}
)

func vaultLayout() (registry.Layout, error) {
	root, err := cfg.ResolveRoot()
	if err != nil {
		return registry.Layout{}, err
	}
	logger.Debug("Vault root: %s", root)
	return registry.Layout{Root: root}, nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
)

// printSummary writes the final processed/failed line of a command.
func printSummary(cmd *cobra.Command, processed, failed int, detail string) {
	out := cmd.OutOrStdout()
	okColor.Fprintf(out, "✅ %d processed", processed)
	if failed > 0 {
		failColor.Fprintf(out, ", %d failed", failed)
	} else {
		okColor.Fprint(out, ", 0 failed")
	}
	if detail != "" {
		cmd.Printf(" (%s)", detail)
	}
	cmd.Println()
}
