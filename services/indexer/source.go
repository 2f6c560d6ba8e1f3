package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// EventSource produces decoded events in chain order.
type EventSource interface {
	// SafeHead is the highest block the source will serve.
	SafeHead(ctx context.Context) (uint64, error)
	// Fetch returns the events of blocks [from, to] ordered by block and log
	// index.
	Fetch(ctx context.Context, from, to uint64) ([]Event, error)
}

// EthClient is the subset of the Ethereum RPC used by RPCSource.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// RPCSource reads contract logs from a JSON-RPC node.
type RPCSource struct {
	client        EthClient
	decoder       *Decoder
	confirmations uint64

	signer     types.Signer
	timestamps map[uint64]uint64
	senders    map[common.Hash]common.Address
}

var _ EventSource = (*RPCSource)(nil)

func NewRPCSource(client EthClient, decoder *Decoder, confirmations uint64) *RPCSource {
	return &RPCSource{
		client:        client,
		decoder:       decoder,
		confirmations: confirmations,
		timestamps:    make(map[uint64]uint64),
		senders:       make(map[common.Hash]common.Address),
	}
}

func (s *RPCSource) SafeHead(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	if head < s.confirmations {
		return 0, nil
	}
	return head - s.confirmations, nil
}

func (s *RPCSource) Fetch(ctx context.Context, from, to uint64) ([]Event, error) {
	logger := zerolog.Ctx(ctx)
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.decoder.Addresses(),
		Topics:    [][]common.Hash{s.decoder.Topics()},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := s.decoder.Decode(lg)
		if errors.Is(err, ErrUnknownEvent) {
			logger.Debug().Err(err).Uint64("block", lg.BlockNumber).Msg("skipping log")
			continue
		}
		if err != nil {
			return nil, err
		}
		if ev.Timestamp, err = s.timestamp(ctx, lg.BlockNumber); err != nil {
			return nil, err
		}
		if ev.From, err = s.sender(ctx, lg.TxHash); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	// Caches only need to span one range.
	if len(s.timestamps) > 4096 {
		s.timestamps = make(map[uint64]uint64)
	}
	if len(s.senders) > 4096 {
		s.senders = make(map[common.Hash]common.Address)
	}
	return events, nil
}

func (s *RPCSource) timestamp(ctx context.Context, block uint64) (uint64, error) {
	if ts, ok := s.timestamps[block]; ok {
		return ts, nil
	}
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", block, err)
	}
	s.timestamps[block] = header.Time
	return header.Time, nil
}

func (s *RPCSource) sender(ctx context.Context, hash common.Hash) (common.Address, error) {
	if from, ok := s.senders[hash]; ok {
		return from, nil
	}
	if s.signer == nil {
		chainID, err := s.client.ChainID(ctx)
		if err != nil {
			return common.Address{}, fmt.Errorf("chain id: %w", err)
		}
		s.signer = types.LatestSignerForChainID(chainID)
	}
	tx, _, err := s.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return common.Address{}, fmt.Errorf("transaction %s not found", hash.Hex())
		}
		return common.Address{}, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("sender of %s: %w", hash.Hex(), err)
	}
	s.senders[hash] = from
	return from, nil
}
