package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/givety/givety-indexer/deployment"
)

func newDeploymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Inspect deployment files and maintain the deployment state",
	}
	cmd.AddCommand(newDeploymentShowCmd())
	cmd.AddCommand(newDeploymentValidateCmd())
	cmd.AddCommand(newDeploymentRecordCmd())
	cmd.AddCommand(newDeploymentExportCmd())
	return cmd
}

func newDeploymentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <deployment.json>",
		Short: "Print the indexed contracts of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deployment.Load(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "chain %d, version %s, start block %d\n", d.ChainID, d.Version, d.StartBlock)
			for _, key := range []string{"borrowerOperations", "troveManager", "stabilityPool", "gvtyStaking", "priceFeed"} {
				fmt.Fprintf(w, "  %-20s %s\n", deployment.IndexedContracts[key], d.Addresses[key])
			}
			return nil
		},
	}
}

func newDeploymentValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <deployment.json>...",
		Short: "Validate deployment files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if _, err := deployment.Load(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return nil
		},
	}
}

func newDeploymentRecordCmd() *cobra.Command {
	var statePath, address, txHash string
	cmd := &cobra.Command{
		Use:   "record <contract>",
		Short: "Record a deployed contract in the deployment state",
		Long: `Record adds a contract to the deployment-state file. Recording the same
address and transaction again is a no-op; a different address is an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := deployment.LoadState(statePath)
			if err != nil {
				return err
			}
			changed, err := state.Record(args[0], deployment.Entry{Address: address, TxHash: txHash})
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already recorded\n", args[0])
				return nil
			}
			if err := state.Save(statePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s at %s\n", args[0], address)
			return nil
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "deployment-state.json", "Deployment state file")
	cmd.Flags().StringVar(&address, "address", "", "Deployed contract address")
	cmd.Flags().StringVar(&txHash, "tx", "", "Deployment transaction hash")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func newDeploymentExportCmd() *cobra.Command {
	var (
		statePath, out, version string
		chainID, startBlock     uint64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a deployment JSON from the deployment state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := deployment.LoadState(statePath)
			if err != nil {
				return err
			}
			d, err := state.Export(deployment.ExportOptions{
				ChainID:        chainID,
				Version:        version,
				DeploymentDate: time.Now().UnixMilli(),
				StartBlock:     startBlock,
			})
			if err != nil {
				return err
			}
			data, err := d.JSON()
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "deployment-state.json", "Deployment state file")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&version, "version", "dev", "Deployment version")
	cmd.Flags().Uint64Var(&chainID, "chain-id", 1, "Chain id")
	cmd.Flags().Uint64Var(&startBlock, "start-block", 0, "Block of the first deployment transaction")
	return cmd
}
