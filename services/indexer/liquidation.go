package indexer

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// errDangling marks a Global pointer to an entity that does not exist.
var errDangling = errors.New("dangling reference")

func (u *unitOfWork) currentLiquidation() (*entities.Liquidation, error) {
	g, err := u.global()
	if err != nil {
		return nil, err
	}
	if g.CurrentLiquidation != nil {
		l, found, err := load[entities.Liquidation](u, KindLiquidation, *g.CurrentLiquidation)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("current liquidation %s: %w", *g.CurrentLiquidation, errDangling)
		}
		return l, nil
	}

	tx, err := u.transaction()
	if err != nil {
		return nil, err
	}
	liquidator, err := u.sender()
	if err != nil {
		return nil, err
	}
	seq, err := u.nextSequence()
	if err != nil {
		return nil, err
	}
	l := &entities.Liquidation{
		ID:                   sequenceID(seq),
		SequenceNumber:       seq,
		Transaction:          tx.ID,
		Liquidator:           liquidator,
		LiquidatedDebt:       decimal.Zero,
		LiquidatedCollateral: decimal.Zero,
		CollGasCompensation:  decimal.Zero,
		TokenGasCompensation: decimal.Zero,
	}
	u.save(KindLiquidation, l.ID, l)

	g.LiquidationCount++
	g.CurrentLiquidation = &l.ID
	u.save(KindGlobal, g.ID, g)
	return l, nil
}

func (u *unitOfWork) finishLiquidation(e LiquidationEvent) error {
	l, err := u.currentLiquidation()
	if err != nil {
		return err
	}
	l.LiquidatedDebt = decimalize(e.LiquidatedDebt)
	l.LiquidatedCollateral = decimalize(e.LiquidatedColl)
	l.CollGasCompensation = decimalize(e.CollGasCompensation)
	l.TokenGasCompensation = decimalize(e.TokenGasCompensation)
	l.Finished = true
	u.save(KindLiquidation, l.ID, l)

	g, err := u.global()
	if err != nil {
		return err
	}
	g.CurrentLiquidation = nil
	g.TotalLiquidatedDebt = g.TotalLiquidatedDebt.Add(l.LiquidatedDebt)
	g.TotalLiquidatedCollateral = g.TotalLiquidatedCollateral.Add(l.LiquidatedCollateral)
	u.save(KindGlobal, g.ID, g)
	return nil
}
