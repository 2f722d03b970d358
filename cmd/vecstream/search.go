package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// jsonResult is the CLI's --json search output shape.
type jsonResult struct {
	ID         string         `json:"id"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func newSearchCmd(dbPath, collectionName *string, jsonOutput *bool) *cobra.Command {
	var vectorRaw, textRaw, model, filterRaw string
	var k int
	var threshold float64
	var withMetadata bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search a collection for similar vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := resolveVector(vectorRaw, textRaw, model)
			if err != nil {
				return err
			}
			pred, err := parseFilter(filterRaw)
			if err != nil {
				return err
			}

			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			c, err := m.GetCollection(*collectionName)
			if err != nil {
				return err
			}

			var thresholdPtr *float64
			if cmd.Flags().Changed("threshold") {
				thresholdPtr = &threshold
			}

			results, err := c.SearchSimilar(vec, k, 0, pred, thresholdPtr, withMetadata)
			if err != nil {
				return err
			}

			if *jsonOutput {
				out := make([]jsonResult, len(results))
				for i, r := range results {
					out[i] = jsonResult{ID: r.ID, Similarity: r.Similarity, Metadata: r.Metadata}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, r := range results {
				fmt.Printf("%s\t%.4f\n", r.ID, r.Similarity)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vectorRaw, "vector", "", "JSON array of floats")
	cmd.Flags().StringVar(&textRaw, "text", "", "text to embed via a registered embedder")
	cmd.Flags().StringVar(&model, "model", "", "embedding model name, if --text is used")
	cmd.Flags().StringVar(&filterRaw, "filter", "", "JSON object metadata predicate")
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity to include")
	cmd.Flags().BoolVar(&withMetadata, "with-metadata", false, "include metadata in results")
	return cmd
}
