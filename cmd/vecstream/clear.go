package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(dbPath, collectionName *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all vectors in a collection by recreating it empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			if _, err := m.GetCollection(*collectionName); err == nil {
				if err := m.DeleteCollection(*collectionName); err != nil {
					return err
				}
			}
			if _, err := m.CreateCollection(*collectionName); err != nil {
				return err
			}
			fmt.Printf("cleared %s\n", *collectionName)
			return nil
		},
	}
	return cmd
}
