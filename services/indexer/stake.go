package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// stakeOf returns the staker's stake, creating an empty one on first sight.
// created reports whether the stake did not exist before.
func (u *unitOfWork) stakeOf(addr common.Address) (stake *entities.Stake, created bool, err error) {
	id := addressID(addr)
	stake, found, err := load[entities.Stake](u, KindStake, id)
	if err != nil || found {
		return stake, false, err
	}
	owner, err := u.user(addr)
	if err != nil {
		return nil, false, err
	}
	stake = &entities.Stake{ID: id, Owner: owner.ID, Amount: decimal.Zero}
	owner.Stake = &stake.ID
	u.save(KindUser, owner.ID, owner)
	u.save(KindStake, stake.ID, stake)
	return stake, true, nil
}

func stakeOperation(before, after decimal.Decimal) entities.StakeOperation {
	switch {
	case before.IsZero() && after.IsPositive():
		return entities.StakeCreated
	case after.GreaterThan(before):
		return entities.StakeIncreased
	case after.IsZero():
		return entities.StakeRemoved
	default:
		return entities.StakeDecreased
	}
}

func (u *unitOfWork) updateStake(e StakeChangedEvent) error {
	next := decimalize(e.NewStake)
	// An unchanged stake records nothing, so removal always follows an active
	// stake.
	existing, found, err := load[entities.Stake](u, KindStake, addressID(e.Staker))
	if err != nil {
		return err
	}
	if (!found && next.IsZero()) || (found && next.Equal(existing.Amount)) {
		return nil
	}
	stake, created, err := u.stakeOf(e.Staker)
	if err != nil {
		return err
	}

	c, err := u.beginChange()
	if err != nil {
		return err
	}
	sc := &entities.StakeChange{
		ID:                 c.id,
		SequenceNumber:     c.seq,
		Transaction:        c.tx,
		Stake:              stake.ID,
		Operation:          stakeOperation(stake.Amount, next),
		StakedAmountBefore: stake.Amount,
		StakedAmountChange: next.Sub(stake.Amount),
		StakedAmountAfter:  next,
		IssuanceGain:       decimal.Zero,
		RedemptionGain:     decimal.Zero,
	}
	u.save(KindStakeChange, sc.ID, sc)

	g, err := u.global()
	if err != nil {
		return err
	}
	switch sc.Operation {
	case entities.StakeCreated:
		if created {
			g.TotalNumberOfStakes++
		}
		g.NumberOfActiveStakes++
	case entities.StakeRemoved:
		g.NumberOfActiveStakes--
	}
	u.save(KindGlobal, g.ID, g)

	stake.Amount = next
	u.save(KindStake, stake.ID, stake)
	return nil
}

func (u *unitOfWork) withdrawStakeGains(e StakingGainsWithdrawnEvent) error {
	if e.TokenGain.Sign() == 0 && e.CollateralGain.Sign() == 0 {
		return nil
	}
	stake, _, err := u.stakeOf(e.Staker)
	if err != nil {
		return err
	}
	c, err := u.beginChange()
	if err != nil {
		return err
	}
	sc := &entities.StakeChange{
		ID:                 c.id,
		SequenceNumber:     c.seq,
		Transaction:        c.tx,
		Stake:              stake.ID,
		Operation:          entities.GainsWithdrawn,
		StakedAmountBefore: stake.Amount,
		StakedAmountChange: decimal.Zero,
		StakedAmountAfter:  stake.Amount,
		IssuanceGain:       decimalize(e.TokenGain),
		RedemptionGain:     decimalize(e.CollateralGain),
	}
	u.save(KindStakeChange, sc.ID, sc)
	return nil
}
