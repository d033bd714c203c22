package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the objects_detection and vehicles_status tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		recordStore, err := openStore()
		if err != nil {
			return err
		}
		defer recordStore.Close()

		return recordStore.Migrate(cmd.Context())
	},
}
