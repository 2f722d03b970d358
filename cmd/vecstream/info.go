package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInfoCmd(dbPath, collectionName *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show statistics for a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			stats, err := m.CollectionStats(*collectionName)
			if err != nil {
				return err
			}

			if *jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Printf("collection:       %s\n", stats.Name)
			fmt.Printf("count:            %d\n", stats.Count)
			fmt.Printf("dimension:        %d\n", stats.Dimension)
			fmt.Printf("entry point:      %s\n", stats.EntryPoint)
			fmt.Printf("dirty:            %v\n", stats.Dirty)
			fmt.Printf("deleted fraction: %.2f\n", stats.DeletedFraction)
			fmt.Printf("hnsw.m:           %d\n", stats.HNSW.M)
			fmt.Printf("hnsw.ef_search:   %d\n", stats.HNSW.EfSearch)
			return nil
		},
	}
	return cmd
}
