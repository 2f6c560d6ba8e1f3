package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/givety/givety-indexer/services/indexer"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>...",
		Short: "Project recorded events into the entity store",
		Long: `Replay reads JSON-lines event records, validates them and applies them in
order. Events already applied are skipped, so replaying a file twice is safe.
Replay does not move the index cursor: a later serve still indexes from the
start block and skips the replayed events.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			daemon, err := indexer.NewDaemon(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer daemon.Close()

			total := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				events, err := indexer.ReadEvents(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				applied, err := daemon.Replay(cmd.Context(), events)
				total += applied
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events, %d applied\n", path, len(events), applied)
			}

			status, err := daemon.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d events, %d open troves, %d redemptions\n",
				total, status.Global.NumberOfOpenTroves, status.Global.RedemptionCount)

			if serve {
				return daemon.Start(cmd.Context())
			}
			return nil
		},
	}
	addStoreFlags(cmd)
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the query API after replaying")
	return cmd
}
