package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd(dbPath, collectionName *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a vector from a collection",
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
			if err := c.RemoveVector(id); err != nil {
				return err
			}
			if err := c.Save(); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", id)
			return nil
		},
	}
	return cmd
}
