package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	givety "github.com/givety/givety-indexer/sdk/go"
)

func newStatusCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the indexing progress of a running indexer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := givety.NewClient(givety.Config{Endpoint: endpoint})
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8080", "Indexer base URL")
	return cmd
}
