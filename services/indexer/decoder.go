package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// contractABIs lists the indexed events of each contract.
var contractABIs = map[string]string{
	ContractBorrowerOperations: `[
		{"type":"event","name":"TroveUpdated","anonymous":false,"inputs":[
			{"name":"_borrower","type":"address","indexed":true},
			{"name":"_debt","type":"uint256","indexed":false},
			{"name":"_coll","type":"uint256","indexed":false},
			{"name":"stake","type":"uint256","indexed":false},
			{"name":"operation","type":"uint8","indexed":false}]},
		{"type":"event","name":"GUSDBorrowingFeePaid","anonymous":false,"inputs":[
			{"name":"_borrower","type":"address","indexed":true},
			{"name":"_GUSDFee","type":"uint256","indexed":false}]}
	]`,
	ContractTroveManager: `[
		{"type":"event","name":"TroveUpdated","anonymous":false,"inputs":[
			{"name":"_borrower","type":"address","indexed":true},
			{"name":"_debt","type":"uint256","indexed":false},
			{"name":"_coll","type":"uint256","indexed":false},
			{"name":"_stake","type":"uint256","indexed":false},
			{"name":"_operation","type":"uint8","indexed":false}]},
		{"type":"event","name":"TroveLiquidated","anonymous":false,"inputs":[
			{"name":"_borrower","type":"address","indexed":true},
			{"name":"_debt","type":"uint256","indexed":false},
			{"name":"_coll","type":"uint256","indexed":false},
			{"name":"_operation","type":"uint8","indexed":false}]},
		{"type":"event","name":"Liquidation","anonymous":false,"inputs":[
			{"name":"_liquidatedDebt","type":"uint256","indexed":false},
			{"name":"_liquidatedColl","type":"uint256","indexed":false},
			{"name":"_collGasCompensation","type":"uint256","indexed":false},
			{"name":"_GUSDGasCompensation","type":"uint256","indexed":false}]},
		{"type":"event","name":"Redemption","anonymous":false,"inputs":[
			{"name":"_attemptedGUSDAmount","type":"uint256","indexed":false},
			{"name":"_actualGUSDAmount","type":"uint256","indexed":false},
			{"name":"_GIVESent","type":"uint256","indexed":false},
			{"name":"_GIVEFee","type":"uint256","indexed":false}]}
	]`,
	ContractStabilityPool: `[
		{"type":"event","name":"UserDepositChanged","anonymous":false,"inputs":[
			{"name":"_depositor","type":"address","indexed":true},
			{"name":"_newDeposit","type":"uint256","indexed":false}]},
		{"type":"event","name":"GIVEGainWithdrawn","anonymous":false,"inputs":[
			{"name":"_depositor","type":"address","indexed":true},
			{"name":"_GIVE","type":"uint256","indexed":false},
			{"name":"_GUSDLoss","type":"uint256","indexed":false}]}
	]`,
	ContractStaking: `[
		{"type":"event","name":"StakeChanged","anonymous":false,"inputs":[
			{"name":"staker","type":"address","indexed":true},
			{"name":"newStake","type":"uint256","indexed":false}]},
		{"type":"event","name":"StakingGainsWithdrawn","anonymous":false,"inputs":[
			{"name":"staker","type":"address","indexed":true},
			{"name":"GUSDGain","type":"uint256","indexed":false},
			{"name":"GIVEGain","type":"uint256","indexed":false}]}
	]`,
	ContractPriceFeed: `[
		{"type":"event","name":"LastGoodPriceUpdated","anonymous":false,"inputs":[
			{"name":"_lastGoodPrice","type":"uint256","indexed":false}]}
	]`,
}

// Decoder turns raw logs of the deployed contracts into events.
type Decoder struct {
	contracts map[common.Address]string
	abis      map[string]abi.ABI
}

// NewDecoder builds a decoder for contracts keyed by address. Values are
// contract names (ContractTroveManager, ...).
func NewDecoder(contracts map[common.Address]string) (*Decoder, error) {
	d := &Decoder{
		contracts: make(map[common.Address]string, len(contracts)),
		abis:      make(map[string]abi.ABI, len(contractABIs)),
	}
	for name, raw := range contractABIs {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s ABI: %w", name, err)
		}
		d.abis[name] = parsed
	}
	for addr, name := range contracts {
		if _, ok := d.abis[name]; !ok {
			return nil, fmt.Errorf("no ABI for contract %s", name)
		}
		d.contracts[addr] = name
	}
	return d, nil
}

// Addresses returns the contract addresses the decoder understands.
func (d *Decoder) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(d.contracts))
	for addr := range d.contracts {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Topics returns every indexed event signature, for use as topic[0] filter.
func (d *Decoder) Topics() []common.Hash {
	seen := make(map[common.Hash]struct{})
	var topics []common.Hash
	for _, parsed := range d.abis {
		for _, ev := range parsed.Events {
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}
			topics = append(topics, ev.ID)
		}
	}
	return topics
}

// Decode decodes a log. Timestamp and From are left for the caller, which
// has access to the block and transaction.
func (d *Decoder) Decode(lg types.Log) (Event, error) {
	contract, ok := d.contracts[lg.Address]
	if !ok {
		return Event{}, fmt.Errorf("%w: log from %s", ErrUnknownEvent, lg.Address.Hex())
	}
	if len(lg.Topics) == 0 {
		return Event{}, fmt.Errorf("%w: anonymous log from %s", ErrUnknownEvent, contract)
	}
	parsed := d.abis[contract]
	ev, err := parsed.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s topic %s", ErrUnknownEvent, contract, lg.Topics[0].Hex())
	}

	args := make(map[string]any)
	if len(lg.Data) > 0 {
		if err := parsed.UnpackIntoMap(args, ev.Name, lg.Data); err != nil {
			return Event{}, fmt.Errorf("%w: unpack %s.%s: %v", ErrMalformedEvent, contract, ev.Name, err)
		}
	}
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return Event{}, fmt.Errorf("%w: topics %s.%s: %v", ErrMalformedEvent, contract, ev.Name, err)
	}

	payload, err := buildPayload(contract, ev.Name, args)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Position: Position{
			BlockNumber: lg.BlockNumber,
			BlockHash:   lg.BlockHash,
			TxHash:      lg.TxHash,
			TxIndex:     lg.TxIndex,
			LogIndex:    lg.Index,
		},
		Contract: contract,
		Payload:  payload,
	}, nil
}
