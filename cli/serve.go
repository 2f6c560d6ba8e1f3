package main

import (
	"github.com/spf13/cobra"

	"github.com/givety/givety-indexer/services/indexer"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the deployment from the RPC node and serve the query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			daemon, err := indexer.NewDaemon(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			runErr := daemon.Start(cmd.Context())
			if err := daemon.Close(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	addStoreFlags(cmd)
	cmd.Flags().String("rpc-url", "", "Ethereum JSON-RPC endpoint")
	cmd.Flags().String("deployment", "", "Deployment JSON file")
	cmd.Flags().Uint64("start-block", 0, "First block to index (defaults to the deployment start block)")
	return cmd
}
