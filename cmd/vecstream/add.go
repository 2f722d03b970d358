package main

import (
	"github.com/spf13/cobra"
)

func newAddCmd(dbPath, collectionName *string) *cobra.Command {
	var vectorRaw, metadataRaw, textRaw, model string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a vector to a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			vec, err := resolveVector(vectorRaw, textRaw, model)
			if err != nil {
				return err
			}
			meta, err := parseMetadata(metadataRaw)
			if err != nil {
				return err
			}

			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			c, err := m.GetCollection(*collectionName)
			if err != nil {
				c, err = m.CreateCollection(*collectionName)
				if err != nil {
					return err
				}
			}
			if err := c.AddVector(id, vec, meta); err != nil {
				return err
			}
			return c.Save()
		},
	}
	cmd.Flags().StringVar(&vectorRaw, "vector", "", "JSON array of floats")
	cmd.Flags().StringVar(&textRaw, "text", "", "text to embed via a registered embedder")
	cmd.Flags().StringVar(&model, "model", "", "embedding model name, if --text is used")
	cmd.Flags().StringVar(&metadataRaw, "metadata", "", "JSON object attached to the vector")
	return cmd
}
