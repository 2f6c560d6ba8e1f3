package indexer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/givety/givety-indexer/deployment"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// Daemon is a Service together with the resources it owns.
type Daemon struct {
	*Service
	Store      store.Store
	Deployment *deployment.Deployment
	client     *ethclient.Client
}

// Close releases the store and the RPC connection.
func (d *Daemon) Close() error {
	var result *multierror.Error
	if d.client != nil {
		d.client.Close()
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// OpenStore opens the configured entity store.
func OpenStore(cfg StoreConfig) (store.Store, error) {
	st, err := store.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

// NewDaemon wires a Service from configuration. With live set it dials the
// RPC node and indexes the deployment's contracts; otherwise the service only
// serves queries and replays.
func NewDaemon(ctx context.Context, cfg Config, live bool) (*Daemon, error) {
	st, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Store: st}

	opts := Options{
		ListenAddr:    cfg.ListenAddr,
		StartBlock:    cfg.StartBlock,
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		Confirmations: cfg.Confirmations,
	}

	var source EventSource
	if live {
		dep, err := deployment.Load(cfg.Deployment)
		if err != nil {
			return nil, multierror.Append(err, d.Close()).ErrorOrNil()
		}
		d.Deployment = dep
		if opts.StartBlock == 0 {
			opts.StartBlock = dep.StartBlock
		}

		decoder, err := NewDecoder(dep.ContractAddresses())
		if err != nil {
			return nil, multierror.Append(err, d.Close()).ErrorOrNil()
		}
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, multierror.Append(fmt.Errorf("dial %s: %w", cfg.RPCURL, err), d.Close()).ErrorOrNil()
		}
		d.client = client

		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, multierror.Append(fmt.Errorf("chain id: %w", err), d.Close()).ErrorOrNil()
		}
		if chainID.Uint64() != dep.ChainID {
			return nil, multierror.Append(fmt.Errorf("node chain %s does not match deployment chain %d", chainID, dep.ChainID), d.Close()).ErrorOrNil()
		}
		source = NewRPCSource(client, decoder, cfg.Confirmations)
		log.Info().
			Uint64("chain", dep.ChainID).
			Str("version", dep.Version).
			Uint64("start", opts.StartBlock).
			Msg("indexing deployment")
	}

	d.Service = NewService(st, source, opts)
	return d, nil
}
