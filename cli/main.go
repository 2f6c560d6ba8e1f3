package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/givety/givety-indexer/logger"
	"github.com/givety/givety-indexer/services/indexer"
)

type rootOptions struct {
	configPath string
	v          *viper.Viper
}

// flagKeys maps command flags onto config keys.
var flagKeys = map[string]string{
	"listen-addr":  indexer.KeyListenAddr,
	"rpc-url":      indexer.KeyRPCURL,
	"deployment":   indexer.KeyDeployment,
	"store-driver": indexer.KeyStoreDriver,
	"store-path":   indexer.KeyStorePath,
	"start-block":  indexer.KeyStartBlock,
}

// config loads the indexer configuration for cmd: defaults, then the config
// file, then GIVETY_INDEXER_* variables, then the flags cmd declares.
func (o *rootOptions) config(cmd *cobra.Command) (indexer.Config, error) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := o.v.BindPFlag(key, f); err != nil {
				return indexer.Config{}, err
			}
		}
	}
	return indexer.LoadConfig(o.v, o.configPath)
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: indexer.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "givety",
		Short:         "CLI for the Givety indexer",
		Long:          `Run and replay the Givety event indexer, query its status, and manage deployment files`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure(logger.Options{
				Level:  opts.v.GetString(indexer.KeyLogLevel),
				Format: opts.v.GetString(indexer.KeyLogFormat),
				File:   opts.v.GetString(indexer.KeyLogFile),
			})
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	_ = opts.v.BindPFlag(indexer.KeyLogLevel, flags.Lookup("log-level"))
	_ = opts.v.BindPFlag(indexer.KeyLogFormat, flags.Lookup("log-format"))

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newReplayCmd(opts))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newEventsCmd(opts))
	rootCmd.AddCommand(newDeploymentCmd())
	return rootCmd
}

// addStoreFlags adds the flags shared by serve and replay.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store-driver", "", "Entity store driver (memory, sqlite, leveldb)")
	cmd.Flags().String("store-path", "", "Entity store path")
	cmd.Flags().String("listen-addr", "", "HTTP listen address")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
