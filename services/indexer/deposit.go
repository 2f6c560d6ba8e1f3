package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

func (u *unitOfWork) depositOf(addr common.Address) (*entities.StabilityDeposit, error) {
	id := addressID(addr)
	deposit, found, err := load[entities.StabilityDeposit](u, KindStabilityDeposit, id)
	if err != nil || found {
		return deposit, err
	}
	owner, err := u.user(addr)
	if err != nil {
		return nil, err
	}
	deposit = &entities.StabilityDeposit{ID: id, Owner: owner.ID, DepositedAmount: decimal.Zero}
	owner.StabilityDeposit = &deposit.ID
	u.save(KindUser, owner.ID, owner)
	u.save(KindStabilityDeposit, deposit.ID, deposit)
	return deposit, nil
}

// changeDeposit records a move of the deposit to next. Calls that leave the
// deposit where it is and carry no gain or loss record nothing.
func (u *unitOfWork) changeDeposit(d *entities.StabilityDeposit, op entities.DepositOperation, next, gain, loss decimal.Decimal) error {
	if next.Equal(d.DepositedAmount) && gain.IsZero() && loss.IsZero() {
		return nil
	}
	c, err := u.beginChange()
	if err != nil {
		return err
	}
	dc := &entities.StabilityDepositChange{
		ID:                    c.id,
		SequenceNumber:        c.seq,
		Transaction:           c.tx,
		StabilityDeposit:      d.ID,
		Operation:             op,
		DepositedAmountBefore: d.DepositedAmount,
		DepositedAmountChange: next.Sub(d.DepositedAmount),
		DepositedAmountAfter:  next,
		CollateralGain:        gain,
		TokenLoss:             loss,
	}
	u.save(KindStabilityDepositChange, dc.ID, dc)

	d.DepositedAmount = next
	u.save(KindStabilityDeposit, d.ID, d)
	return nil
}

func (u *unitOfWork) updateDeposit(e UserDepositChangedEvent) error {
	next := decimalize(e.NewDeposit)
	// Read before creating so an unchanged zero deposit leaves no trace.
	id := addressID(e.Depositor)
	existing, found, err := load[entities.StabilityDeposit](u, KindStabilityDeposit, id)
	if err != nil {
		return err
	}
	if (!found && next.IsZero()) || (found && next.Equal(existing.DepositedAmount)) {
		return nil
	}
	d, err := u.depositOf(e.Depositor)
	if err != nil {
		return err
	}
	op := entities.DepositTokens
	if next.LessThan(d.DepositedAmount) {
		op = entities.WithdrawTokens
	}
	return u.changeDeposit(d, op, next, decimal.Zero, decimal.Zero)
}

func (u *unitOfWork) withdrawCollateralGain(e CollateralGainWithdrawnEvent) error {
	if e.CollateralGain.Sign() == 0 && e.TokenLoss.Sign() == 0 {
		return nil
	}
	d, err := u.depositOf(e.Depositor)
	if err != nil {
		return err
	}
	loss := decimalize(e.TokenLoss)
	next := d.DepositedAmount.Sub(loss)
	if next.IsNegative() {
		next = decimal.Zero
	}
	return u.changeDeposit(d, entities.WithdrawCollateralGain, next, decimalize(e.CollateralGain), loss)
}
