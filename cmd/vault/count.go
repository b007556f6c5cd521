package main

import (
	"github.com/spf13/cobra"

	"github.com/andrew/rag-vault/pkg/vector"
)

var (
	countExact   bool
	countFilters []string
)

var countCmd = &cobra.Command{
	Use:   "count [collection]",
	Short: "Count the points in a collection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCount,
}

func init() {
	countCmd.Flags().BoolVar(&countExact, "exact", true, "exact count instead of an estimate")
	countCmd.Flags().StringArrayVar(&countFilters, "filter", nil, "payload filter key=value")
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	fields, err := parseFilters(countFilters)
	if err != nil {
		return err
	}
	collections := []string{cfg.Collections.Text, cfg.Collections.Media}
	if len(args) == 1 {
		collections = args
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range collections {
		n, err := store.Count(cmd.Context(), name, countExact, vector.MustMatch(fields))
		if err != nil {
			return err
		}
		cmd.Printf("%s: %d\n", name, n)
	}
	return nil
}
