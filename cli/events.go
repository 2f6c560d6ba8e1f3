package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/givety/givety-indexer/deployment"
	"github.com/givety/givety-indexer/schemas"
	"github.com/givety/givety-indexer/services/indexer"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Work with recorded event files",
	}
	cmd.AddCommand(newEventsFetchCmd(opts))
	cmd.AddCommand(newEventsValidateCmd())
	return cmd
}

func newEventsFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to uint64
		out      string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the deployment's events from the RPC node into a JSON-lines file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			dep, err := deployment.Load(cfg.Deployment)
			if err != nil {
				return err
			}
			decoder, err := indexer.NewDecoder(dep.ContractAddresses())
			if err != nil {
				return err
			}
			client, err := ethclient.DialContext(cmd.Context(), cfg.RPCURL)
			if err != nil {
				return fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
			}
			defer client.Close()

			source := indexer.NewRPCSource(client, decoder, cfg.Confirmations)
			if from == 0 {
				from = dep.StartBlock
			}
			if to == 0 {
				if to, err = source.SafeHead(cmd.Context()); err != nil {
					return err
				}
			}
			if to < from {
				return fmt.Errorf("empty range %d-%d", from, to)
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			count := 0
			for start := from; start <= to; start += cfg.BatchSize {
				end := start + cfg.BatchSize - 1
				if end > to {
					end = to
				}
				events, err := source.Fetch(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				records := make([]schemas.EventRecord, 0, len(events))
				for _, ev := range events {
					rec, err := indexer.RecordFromEvent(ev)
					if err != nil {
						return err
					}
					records = append(records, rec)
				}
				if err := schemas.WriteEventRecords(w, records); err != nil {
					return err
				}
				count += len(records)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "fetched %d events from blocks %d-%d\n", count, from, to)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First block (defaults to the deployment start block)")
	cmd.Flags().Uint64Var(&to, "to", 0, "Last block (defaults to the safe head)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().String("rpc-url", "", "Ethereum JSON-RPC endpoint")
	cmd.Flags().String("deployment", "", "Deployment JSON file")
	return cmd
}

func newEventsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <events.jsonl>...",
		Short: "Validate recorded event files without applying them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
				for _, ev := range events {
					if err := ev.Validate(); err != nil {
						return fmt.Errorf("%s: %s: %w", path, ev.EventID(), err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events ok\n", path, len(events))
			}
			return nil
		},
	}
}
