package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newGetCmd(dbPath, collectionName *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a stored vector and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			c, err := m.GetCollection(*collectionName)
			if err != nil {
				return err
			}

			vec, meta, err := c.GetVectorWithMetadata(id)
			if err != nil {
				return err
			}

			if *jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"id": id, "vector": vec, "metadata": meta})
			}

			fmt.Printf("id: %s\nvector: %v\nmetadata: %v\n", id, vec, meta)
			return nil
		},
	}
	return cmd
}
