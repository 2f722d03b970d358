package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectionCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			c, err := m.CreateCollection(args[0])
			if err != nil {
				return err
			}
			return c.Save()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			for _, name := range m.ListCollections() {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection and its backing directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(resolveDBPath(*dbPath))
			if err != nil {
				return err
			}
			return m.DeleteCollection(args[0])
		},
	})

	return cmd
}
