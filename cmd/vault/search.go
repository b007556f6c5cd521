package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/models"
	"github.com/andrew/rag-vault/pkg/retrieval"
	"github.com/andrew/rag-vault/pkg/vector"
)

var (
	searchCollection string
	searchVector     string
	searchLimit      int
	searchThreshold  float32
	searchOffset     uint64
	searchFilters    []string
	searchJSON       bool
	searchContext    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a collection with a text query",
	Long: `Embeds the query with the text model and returns the closest points.
Use --vector caption to search the caption slot of the media collection, and
--filter key=value (repeatable) to match payload keywords.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "collection to search (default: text collection)")
	searchCmd.Flags().StringVar(&searchVector, "vector", "", "named vector slot, e.g. caption")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().Uint64Var(&searchOffset, "offset", 0, "skip this many results")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "payload filter key=value")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print results as an LLM context block")
	rootCmd.AddCommand(searchCmd)
}

// parseFilters turns key=value pairs into a keyword match filter.
func parseFilters(pairs []string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", pair)
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	fields, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}
	collection := searchCollection
	if collection == "" {
		collection = cfg.Collections.Text
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	provider, err := newProvider(cfg, false)
	if err != nil {
		return err
	}

	svc := retrieval.NewService(provider, store, retrieval.Config{
		Collection:     collection,
		VectorName:     searchVector,
		MaxResults:     searchLimit,
		ScoreThreshold: searchThreshold,
		Offset:         searchOffset,
	})
	results, err := svc.SearchByText(cmd.Context(), args[0], searchLimit, vector.MustMatch(fields))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch {
	case searchJSON:
		return outputSearchJSON(cmd, results)
	case searchContext:
		cmd.Println(svc.GetRetrievalContext(results))
		return nil
	default:
		outputSearchTable(cmd, results)
		return nil
	}
}

func outputSearchJSON(cmd *cobra.Command, results []models.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []models.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		source := r.Source()
		if source == "" {
			source = r.ID
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, source, r.Score)
		if text := snippet(r.Text(), 160); text != "" {
			cmd.Printf("      %s\n", text)
		}
		cmd.Println()
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
