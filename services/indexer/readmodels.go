package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// DefaultPageSize bounds list queries that do not ask for a size.
const DefaultPageSize = 100

// MaxPageSize is the largest page a list query returns.
const MaxPageSize = 1000

// Page selects a window of a list ordered by sequence number or id.
type Page struct {
	First int
	Skip  int
}

func (p Page) normalize() Page {
	if p.First <= 0 {
		p.First = DefaultPageSize
	}
	if p.First > MaxPageSize {
		p.First = MaxPageSize
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

func window[T any](items []T, p Page) []T {
	p = p.normalize()
	if p.Skip >= len(items) {
		return []T{}
	}
	end := p.Skip + p.First
	if end > len(items) {
		end = len(items)
	}
	return items[p.Skip:end]
}

// ReadModel is the query side of the indexer.
type ReadModel interface {
	Global(ctx context.Context) (*entities.Global, error)
	Redemptions(ctx context.Context, page Page) ([]entities.Redemption, error)
	Redemption(ctx context.Context, id string) (*entities.Redemption, error)
	Liquidations(ctx context.Context, page Page) ([]entities.Liquidation, error)
	Liquidation(ctx context.Context, id string) (*entities.Liquidation, error)
	Troves(ctx context.Context, status entities.TroveStatus, page Page) ([]entities.Trove, error)
	Trove(ctx context.Context, id string) (*entities.Trove, error)
	TroveChanges(ctx context.Context, troveID string, page Page) ([]entities.TroveChange, error)
	User(ctx context.Context, id string) (*entities.User, error)
	Transaction(ctx context.Context, id string) (*entities.Transaction, error)
	Stake(ctx context.Context, id string) (*entities.Stake, error)
	StakeChanges(ctx context.Context, stakeID string, page Page) ([]entities.StakeChange, error)
	StabilityDeposit(ctx context.Context, id string) (*entities.StabilityDeposit, error)
	StabilityDepositChanges(ctx context.Context, depositID string, page Page) ([]entities.StabilityDepositChange, error)
}

// StoreReadModel answers queries from committed store state.
type StoreReadModel struct {
	store store.Store
}

var _ ReadModel = (*StoreReadModel)(nil)

func NewStoreReadModel(st store.Store) *StoreReadModel {
	return &StoreReadModel{store: st}
}

func getEntity[T any](ctx context.Context, st store.Store, kind store.Kind, id string) (*T, error) {
	data, err := st.Get(ctx, kind, strings.ToLower(id))
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return &v, nil
}

func listEntities[T any](ctx context.Context, st store.Store, kind store.Kind, keep func(*T) bool) ([]T, error) {
	records, err := st.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kind, rec.ID, err)
		}
		if keep == nil || keep(&v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// bySequence orders sequence-keyed entities numerically; store ids sort as text.
func bySequence[T any](items []T, seq func(*T) uint64) {
	sort.Slice(items, func(i, j int) bool { return seq(&items[i]) < seq(&items[j]) })
}

func (m *StoreReadModel) Global(ctx context.Context) (*entities.Global, error) {
	g, err := getEntity[entities.Global](ctx, m.store, KindGlobal, entities.GlobalID)
	if errors.Is(err, store.ErrNotFound) {
		return entities.NewGlobal(), nil
	}
	return g, err
}

func (m *StoreReadModel) Redemptions(ctx context.Context, page Page) ([]entities.Redemption, error) {
	items, err := listEntities[entities.Redemption](ctx, m.store, KindRedemption, nil)
	if err != nil {
		return nil, err
	}
	bySequence(items, func(r *entities.Redemption) uint64 { return r.SequenceNumber })
	return window(items, page), nil
}

func (m *StoreReadModel) Redemption(ctx context.Context, id string) (*entities.Redemption, error) {
	return getEntity[entities.Redemption](ctx, m.store, KindRedemption, id)
}

func (m *StoreReadModel) Liquidations(ctx context.Context, page Page) ([]entities.Liquidation, error) {
	items, err := listEntities[entities.Liquidation](ctx, m.store, KindLiquidation, nil)
	if err != nil {
		return nil, err
	}
	bySequence(items, func(l *entities.Liquidation) uint64 { return l.SequenceNumber })
	return window(items, page), nil
}

func (m *StoreReadModel) Liquidation(ctx context.Context, id string) (*entities.Liquidation, error) {
	return getEntity[entities.Liquidation](ctx, m.store, KindLiquidation, id)
}

// Troves lists troves by owner address, optionally only those in status.
func (m *StoreReadModel) Troves(ctx context.Context, status entities.TroveStatus, page Page) ([]entities.Trove, error) {
	var keep func(*entities.Trove) bool
	if status != "" {
		keep = func(t *entities.Trove) bool { return t.Status == status }
	}
	items, err := listEntities(ctx, m.store, KindTrove, keep)
	if err != nil {
		return nil, err
	}
	return window(items, page), nil
}

func (m *StoreReadModel) Trove(ctx context.Context, id string) (*entities.Trove, error) {
	return getEntity[entities.Trove](ctx, m.store, KindTrove, id)
}

// TroveChanges lists the changes of one trove in sequence order.
func (m *StoreReadModel) TroveChanges(ctx context.Context, troveID string, page Page) ([]entities.TroveChange, error) {
	if _, err := m.Trove(ctx, troveID); err != nil {
		return nil, err
	}
	troveID = strings.ToLower(troveID)
	items, err := listEntities(ctx, m.store, KindTroveChange, func(c *entities.TroveChange) bool {
		return c.Trove == troveID
	})
	if err != nil {
		return nil, err
	}
	bySequence(items, func(c *entities.TroveChange) uint64 { return c.SequenceNumber })
	return window(items, page), nil
}

func (m *StoreReadModel) User(ctx context.Context, id string) (*entities.User, error) {
	return getEntity[entities.User](ctx, m.store, KindUser, id)
}

func (m *StoreReadModel) Transaction(ctx context.Context, id string) (*entities.Transaction, error) {
	return getEntity[entities.Transaction](ctx, m.store, KindTransaction, id)
}

func (m *StoreReadModel) Stake(ctx context.Context, id string) (*entities.Stake, error) {
	return getEntity[entities.Stake](ctx, m.store, KindStake, id)
}

func (m *StoreReadModel) StakeChanges(ctx context.Context, stakeID string, page Page) ([]entities.StakeChange, error) {
	if _, err := m.Stake(ctx, stakeID); err != nil {
		return nil, err
	}
	stakeID = strings.ToLower(stakeID)
	items, err := listEntities(ctx, m.store, KindStakeChange, func(c *entities.StakeChange) bool {
		return c.Stake == stakeID
	})
	if err != nil {
		return nil, err
	}
	bySequence(items, func(c *entities.StakeChange) uint64 { return c.SequenceNumber })
	return window(items, page), nil
}

func (m *StoreReadModel) StabilityDeposit(ctx context.Context, id string) (*entities.StabilityDeposit, error) {
	return getEntity[entities.StabilityDeposit](ctx, m.store, KindStabilityDeposit, id)
}

func (m *StoreReadModel) StabilityDepositChanges(ctx context.Context, depositID string, page Page) ([]entities.StabilityDepositChange, error) {
	if _, err := m.StabilityDeposit(ctx, depositID); err != nil {
		return nil, err
	}
	depositID = strings.ToLower(depositID)
	items, err := listEntities(ctx, m.store, KindStabilityDepositChange, func(c *entities.StabilityDepositChange) bool {
		return c.StabilityDeposit == depositID
	})
	if err != nil {
		return nil, err
	}
	bySequence(items, func(c *entities.StabilityDepositChange) uint64 { return c.SequenceNumber })
	return window(items, page), nil
}
