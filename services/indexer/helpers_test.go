package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givety/givety-indexer/logger"
	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// ether converts a decimal token amount to its 18-decimal integer.
func ether(amount string) *big.Int {
	return decimal.RequireFromString(amount).Shift(tokenDecimals).BigInt()
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// chain hands out event positions: every tx call starts a new transaction in
// a new block, every event call appends a log to it.
type chain struct {
	block uint64
	txs   int64
	tx    common.Hash
	from  common.Address
	log   uint
}

func newChain() *chain {
	return &chain{block: 100}
}

func (c *chain) begin(from common.Address) *chain {
	c.block++
	c.txs++
	c.tx = common.BigToHash(big.NewInt(c.txs))
	c.from = from
	c.log = 0
	return c
}

func (c *chain) event(contract string, p Payload) Event {
	ev := Event{
		Position: Position{
			BlockNumber: c.block,
			BlockHash:   common.BigToHash(new(big.Int).SetUint64(c.block)),
			Timestamp:   1_700_000_000 + c.block*12,
			TxHash:      c.tx,
			LogIndex:    c.log,
			From:        c.from,
		},
		Contract: contract,
		Payload:  p,
	}
	c.log++
	return ev
}

func (c *chain) troveUpdated(borrower common.Address, op entities.TroveOperation, coll, debt string) Event {
	contract := ContractBorrowerOperations
	if op == entities.AccrueRewards || op.IsLiquidation() || op.IsRedemption() {
		contract = ContractTroveManager
	}
	return c.event(contract, TroveUpdatedEvent{
		Borrower:  borrower,
		Debt:      ether(debt),
		Coll:      ether(coll),
		Stake:     ether(coll),
		Operation: op,
	})
}

func (c *chain) redemption(attempted, actual, sent, fee string) Event {
	return c.event(ContractTroveManager, RedemptionEvent{
		AttemptedAmount: ether(attempted),
		ActualAmount:    ether(actual),
		CollateralSent:  ether(sent),
		CollateralFee:   ether(fee),
	})
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.MemoryStore
	svc    *Service
	reader *StoreReadModel
	chain  *chain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.ConfigureTestLogging(t)
	st := store.NewMemoryStore()
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  st,
		svc:    NewService(st, nil, Options{}),
		reader: NewStoreReadModel(st),
		chain:  newChain(),
	}
}

func (f *fixture) apply(events ...Event) {
	f.t.Helper()
	for _, ev := range events {
		_, err := f.svc.Apply(f.ctx, ev)
		require.NoError(f.t, err, "apply %s", ev.Name())
	}
}

func (f *fixture) global() *entities.Global {
	f.t.Helper()
	g, err := f.reader.Global(f.ctx)
	require.NoError(f.t, err)
	return g
}

func (f *fixture) trove(owner common.Address) *entities.Trove {
	f.t.Helper()
	tr, err := f.reader.Trove(f.ctx, owner.Hex())
	require.NoError(f.t, err)
	return tr
}

func (f *fixture) troveChanges(owner common.Address) []entities.TroveChange {
	f.t.Helper()
	changes, err := f.reader.TroveChanges(f.ctx, owner.Hex(), Page{})
	require.NoError(f.t, err)
	return changes
}
