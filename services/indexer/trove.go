package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// updateTrove applies a new (collateral, debt, stake) triple reported for a
// borrower's trove.
func (u *unitOfWork) updateTrove(borrower common.Address, op entities.TroveOperation, coll, debt, stake decimal.Decimal) error {
	id := addressID(borrower)
	trove, found, err := load[entities.Trove](u, KindTrove, id)
	if err != nil {
		return err
	}
	if !found {
		trove = &entities.Trove{
			ID:         id,
			Owner:      id,
			Status:     entities.TroveOpen,
			Collateral: decimal.Zero,
			Debt:       decimal.Zero,
			Stake:      decimal.Zero,
		}
	}

	unchanged := coll.Equal(trove.Collateral) && debt.Equal(trove.Debt) && stake.Equal(trove.Stake)
	if unchanged && ((found && trove.Status.Closed()) || (!op.IsLiquidation() && !op.IsRedemption())) {
		return nil
	}

	g, err := u.global()
	if err != nil {
		return err
	}
	if !found {
		owner, err := u.user(borrower)
		if err != nil {
			return err
		}
		owner.Trove = &trove.ID
		u.save(KindUser, owner.ID, owner)
		g.TotalNumberOfTroves++
		g.NumberOfOpenTroves++
	}

	c, err := u.beginChange()
	if err != nil {
		return err
	}
	tc := &entities.TroveChange{
		ID:               c.id,
		SequenceNumber:   c.seq,
		Transaction:      c.tx,
		Trove:            trove.ID,
		Operation:        op,
		CollateralBefore: trove.Collateral,
		CollateralChange: coll.Sub(trove.Collateral),
		CollateralAfter:  coll,
		DebtBefore:       trove.Debt,
		DebtChange:       debt.Sub(trove.Debt),
		DebtAfter:        debt,
	}
	switch {
	case op.IsLiquidation():
		l, err := u.currentLiquidation()
		if err != nil {
			return err
		}
		tc.Liquidation = &l.ID
	case op.IsRedemption():
		r, err := u.currentRedemption()
		if err != nil {
			return err
		}
		tc.Redemption = &r.ID
	}
	u.save(KindTroveChange, tc.ID, tc)

	switch {
	case coll.IsZero() && !trove.Status.Closed():
		trove.Status = op.ClosedStatus()
		g.NumberOfOpenTroves--
		switch trove.Status {
		case entities.TroveClosedByLiquidation:
			g.NumberOfLiquidatedTroves++
		case entities.TroveClosedByRedemption:
			g.NumberOfRedeemedTroves++
		default:
			g.NumberOfTrovesClosedByOwner++
		}
	case !coll.IsZero() && trove.Status.Closed():
		trove.Status = entities.TroveOpen
		g.NumberOfOpenTroves++
	}

	trove.Collateral = coll
	trove.Debt = debt
	trove.Stake = stake
	trove.ChangeCount++
	u.save(KindTrove, trove.ID, trove)

	g.LastTroveChange = &tc.ID
	u.save(KindGlobal, g.ID, g)
	return nil
}

// liquidateTrove records a trove emptied by a liquidation.
func (u *unitOfWork) liquidateTrove(e TroveLiquidatedEvent) error {
	return u.updateTrove(e.Borrower, e.Operation, decimal.Zero, decimal.Zero, decimal.Zero)
}

// payBorrowingFee counts the fee and attaches it to the last trove change
// when that change belongs to the same transaction and borrower.
func (u *unitOfWork) payBorrowingFee(e BorrowingFeePaidEvent) error {
	g, err := u.global()
	if err != nil {
		return err
	}
	fee := decimalize(e.Fee)
	g.TotalBorrowingFeesPaid = g.TotalBorrowingFeesPaid.Add(fee)
	u.save(KindGlobal, g.ID, g)

	if g.LastTroveChange == nil {
		return nil
	}
	tc, found, err := load[entities.TroveChange](u, KindTroveChange, *g.LastTroveChange)
	if err != nil || !found {
		return err
	}
	if tc.Transaction == txID(u.event) && tc.Trove == addressID(e.Borrower) {
		tc.BorrowingFee = &fee
		u.save(KindTroveChange, tc.ID, tc)
	}
	return nil
}
