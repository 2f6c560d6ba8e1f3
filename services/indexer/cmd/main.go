package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/givety/givety-indexer/logger"
	"github.com/givety/givety-indexer/services/indexer"
)

func main() {
	flags := pflag.NewFlagSet("givety-indexerd", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	flags.String("listen-addr", "", "HTTP listen address")
	flags.String("rpc-url", "", "Ethereum JSON-RPC endpoint")
	flags.String("deployment", "", "Deployment JSON file")
	flags.String("store-driver", "", "Entity store driver (memory, sqlite, leveldb)")
	flags.String("store-path", "", "Entity store path")
	flags.Uint64("start-block", 0, "First block to index (defaults to the deployment start block)")
	_ = flags.Parse(os.Args[1:])

	v := indexer.NewViper()
	for key, flag := range map[string]string{
		indexer.KeyListenAddr:  "listen-addr",
		indexer.KeyRPCURL:      "rpc-url",
		indexer.KeyDeployment:  "deployment",
		indexer.KeyStoreDriver: "store-driver",
		indexer.KeyStorePath:   "store-path",
		indexer.KeyStartBlock:  "start-block",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}

	cfg, err := indexer.LoadConfig(v, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Configure(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.Logger.WithContext(ctx)

	daemon, err := indexer.NewDaemon(ctx, cfg, true)
	if err != nil {
		log.Fatal().Err(err).Msg("indexer failed to start")
	}
	defer func() {
		if err := daemon.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("store", cfg.Store.Driver).Msg("starting indexer")
	if err := daemon.Start(ctx); err != nil {
		log.Error().Err(err).Msg("indexer stopped")
		_ = daemon.Close()
		os.Exit(1)
	}
	log.Info().Msg("indexer stopped")
}
