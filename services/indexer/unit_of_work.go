package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// Entity collections.
const (
	KindGlobal                 store.Kind = "global"
	KindTransaction            store.Kind = "transaction"
	KindUser                   store.Kind = "user"
	KindTrove                  store.Kind = "trove"
	KindTroveChange            store.Kind = "troveChange"
	KindRedemption             store.Kind = "redemption"
	KindLiquidation            store.Kind = "liquidation"
	KindStake                  store.Kind = "stake"
	KindStakeChange            store.Kind = "stakeChange"
	KindStabilityDeposit       store.Kind = "stabilityDeposit"
	KindStabilityDepositChange store.Kind = "stabilityDepositChange"
)

const tokenDecimals = 18

// decimalize converts an 18-decimal on-chain integer to an exact decimal.
func decimalize(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -tokenDecimals)
}

func addressID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func txID(ev Event) string {
	return strings.ToLower(ev.TxHash.Hex())
}

func sequenceID(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// EntityRef names one entity written by an event.
type EntityRef struct {
	Kind store.Kind `json:"kind"`
	ID   string     `json:"id"`
}

type entityKey struct {
	kind store.Kind
	id   string
}

// unitOfWork is the working set of one event: entities read through it are
// cached, entities saved through it are written by commit in one batch.
type unitOfWork struct {
	ctx   context.Context
	store store.Store
	event Event

	cache map[entityKey]any
	dirty map[entityKey]bool
	order []entityKey
}

func newUnitOfWork(ctx context.Context, st store.Store, ev Event) *unitOfWork {
	return &unitOfWork{
		ctx:   ctx,
		store: st,
		event: ev,
		cache: make(map[entityKey]any),
		dirty: make(map[entityKey]bool),
	}
}

// load reads an entity, preferring any version already in the working set.
func load[T any](u *unitOfWork, kind store.Kind, id string) (*T, bool, error) {
	key := entityKey{kind: kind, id: id}
	if cached, ok := u.cache[key]; ok {
		return cached.(*T), true, nil
	}
	data, err := u.store.Get(u.ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s/%s: %w", kind, id, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	u.cache[key] = &v
	return &v, true, nil
}

func (u *unitOfWork) save(kind store.Kind, id string, v any) {
	key := entityKey{kind: kind, id: id}
	u.cache[key] = v
	if !u.dirty[key] {
		u.dirty[key] = true
		u.order = append(u.order, key)
	}
}

func (u *unitOfWork) global() (*entities.Global, error) {
	g, found, err := load[entities.Global](u, KindGlobal, entities.GlobalID)
	if err != nil {
		return nil, err
	}
	if !found {
		g = entities.NewGlobal()
		u.save(KindGlobal, g.ID, g)
	}
	return g, nil
}

// nextSequence issues the next global sequence number.
func (u *unitOfWork) nextSequence() (uint64, error) {
	g, err := u.global()
	if err != nil {
		return 0, err
	}
	g.SequenceNumber++
	u.save(KindGlobal, g.ID, g)
	return g.SequenceNumber, nil
}

// transaction returns the Transaction of the current event, creating it on
// first reference.
func (u *unitOfWork) transaction() (*entities.Transaction, error) {
	id := txID(u.event)
	tx, found, err := load[entities.Transaction](u, KindTransaction, id)
	if err != nil || found {
		return tx, err
	}
	seq, err := u.nextSequence()
	if err != nil {
		return nil, err
	}
	g, err := u.global()
	if err != nil {
		return nil, err
	}
	g.TransactionCount++

	tx = &entities.Transaction{
		ID:             id,
		SequenceNumber: seq,
		BlockNumber:    u.event.BlockNumber,
		BlockHash:      strings.ToLower(u.event.BlockHash.Hex()),
		Timestamp:      u.event.Timestamp,
		From:           addressID(u.event.From),
	}
	u.save(KindTransaction, id, tx)
	return tx, nil
}

// user returns the User for an address, creating it on first reference.
func (u *unitOfWork) user(addr common.Address) (*entities.User, error) {
	id := addressID(addr)
	usr, found, err := load[entities.User](u, KindUser, id)
	if err != nil || found {
		return usr, err
	}
	usr = &entities.User{ID: id}
	u.save(KindUser, id, usr)
	return usr, nil
}

// commit writes every saved entity and the applied marker. The cursor is left
// to the index loop, which only advances it over fully fetched ranges.
func (u *unitOfWork) commit() ([]EntityRef, error) {
	batch := store.Batch{
		Records: make([]store.Record, 0, len(u.order)),
		EventID: u.event.EventID(),
	}
	refs := make([]EntityRef, 0, len(u.order))
	for _, key := range u.order {
		data, err := json.Marshal(u.cache[key])
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", key.kind, key.id, err)
		}
		batch.Records = append(batch.Records, store.Record{Kind: key.kind, ID: key.id, Data: data})
		refs = append(refs, EntityRef{Kind: key.kind, ID: key.id})
	}
	if err := u.store.Commit(u.ctx, batch); err != nil {
		return nil, fmt.Errorf("commit %s: %w", batch.EventID, err)
	}
	return refs, nil
}
