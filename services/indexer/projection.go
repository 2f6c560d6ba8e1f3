package indexer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// Update describes the entities written by one committed event. It is what the
// change feed publishes.
type Update struct {
	EventID     string      `json:"eventId"`
	Event       string      `json:"event"`
	Contract    string      `json:"contract"`
	BlockNumber uint64      `json:"blockNumber"`
	Entities    []EntityRef `json:"entities"`
}

// Projector folds events into entities. It is not safe for concurrent use;
// Service serialises calls.
type Projector struct {
	store   store.Store
	metrics *Metrics
}

func NewProjector(st store.Store, metrics *Metrics) *Projector {
	return &Projector{store: st, metrics: metrics}
}

// HandleEvent projects one event and commits the result. A nil Update with a
// nil error means the event had already been applied.
func (p *Projector) HandleEvent(ctx context.Context, ev Event) (*Update, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("event", ev.Name()).
		Str("id", ev.EventID()).
		Uint64("block", ev.BlockNumber).
		Logger()

	if err := ev.Validate(); err != nil {
		p.metrics.ProjectionFailed(ev.Name())
		return nil, err
	}

	applied, err := p.store.Applied(ctx, ev.EventID())
	if err != nil {
		return nil, fmt.Errorf("check applied %s: %w", ev.EventID(), err)
	}
	if applied {
		logger.Debug().Msg("event already applied")
		p.metrics.EventSkipped(ev.Name())
		return nil, nil
	}

	u := newUnitOfWork(ctx, p.store, ev)
	if err := p.dispatch(u, ev); err != nil {
		p.metrics.ProjectionFailed(ev.Name())
		return nil, fmt.Errorf("project %s %s: %w", ev.Name(), ev.EventID(), err)
	}
	refs, err := u.commit()
	if err != nil {
		p.metrics.ProjectionFailed(ev.Name())
		return nil, err
	}

	p.metrics.EventProcessed(ev.Name(), ev.BlockNumber)
	if g, ok := u.cache[entityKey{kind: KindGlobal, id: entities.GlobalID}]; ok {
		p.metrics.SetOpenRedemption(g.(*entities.Global).CurrentRedemption != nil)
	}
	logger.Debug().Int("entities", len(refs)).Msg("event projected")

	return &Update{
		EventID:     ev.EventID(),
		Event:       ev.Name(),
		Contract:    ev.Contract,
		BlockNumber: ev.BlockNumber,
		Entities:    refs,
	}, nil
}

func (p *Projector) dispatch(u *unitOfWork, ev Event) error {
	switch e := ev.Payload.(type) {
	case TroveUpdatedEvent:
		return u.updateTrove(e.Borrower, e.Operation, decimalize(e.Coll), decimalize(e.Debt), decimalize(e.Stake))
	case TroveLiquidatedEvent:
		return u.liquidateTrove(e)
	case BorrowingFeePaidEvent:
		return u.payBorrowingFee(e)
	case LiquidationEvent:
		return u.finishLiquidation(e)
	case RedemptionEvent:
		return u.finishRedemption(e)
	case StakeChangedEvent:
		return u.updateStake(e)
	case StakingGainsWithdrawnEvent:
		return u.withdrawStakeGains(e)
	case UserDepositChangedEvent:
		return u.updateDeposit(e)
	case CollateralGainWithdrawnEvent:
		return u.withdrawCollateralGain(e)
	case PriceUpdatedEvent:
		return u.updatePrice(e)
	}
	return fmt.Errorf("%w: no projection for %T", ErrMalformedEvent, ev.Payload)
}
