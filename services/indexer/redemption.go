package indexer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// currentRedemption returns the open redemption, opening one if Global points
// at none.
func (u *unitOfWork) currentRedemption() (*entities.Redemption, error) {
	g, err := u.global()
	if err != nil {
		return nil, err
	}
	if g.CurrentRedemption != nil {
		r, found, err := load[entities.Redemption](u, KindRedemption, *g.CurrentRedemption)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("current redemption %s: %w", *g.CurrentRedemption, errDangling)
		}
		return r, nil
	}

	tx, err := u.transaction()
	if err != nil {
		return nil, err
	}
	redeemer, err := u.sender()
	if err != nil {
		return nil, err
	}
	seq, err := u.nextSequence()
	if err != nil {
		return nil, err
	}
	r := &entities.Redemption{
		ID:                      sequenceID(seq),
		SequenceNumber:          seq,
		Transaction:             tx.ID,
		Redeemer:                redeemer,
		TokensAttemptedToRedeem: decimal.Zero,
		TokensActuallyRedeemed:  decimal.Zero,
		CollateralRedeemed:      decimal.Zero,
		Fee:                     decimal.Zero,
	}
	u.save(KindRedemption, r.ID, r)

	g.RedemptionCount++
	g.CurrentRedemption = &r.ID
	u.save(KindGlobal, g.ID, g)
	return r, nil
}

// finishRedemption fills the open redemption from the Redemption event and
// detaches it from Global.
func (u *unitOfWork) finishRedemption(e RedemptionEvent) error {
	r, err := u.currentRedemption()
	if err != nil {
		return err
	}
	fee := decimalize(e.CollateralFee)
	r.TokensAttemptedToRedeem = decimalize(e.AttemptedAmount)
	r.TokensActuallyRedeemed = decimalize(e.ActualAmount)
	r.CollateralRedeemed = decimalize(e.CollateralSent)
	r.Partial = e.ActualAmount.Cmp(e.AttemptedAmount) < 0
	r.Fee = fee
	r.Finished = true
	u.save(KindRedemption, r.ID, r)

	g, err := u.global()
	if err != nil {
		return err
	}
	g.CurrentRedemption = nil
	g.TotalRedemptionFeesPaid = g.TotalRedemptionFeesPaid.Add(fee)
	g.TotalTokensRedeemed = g.TotalTokensRedeemed.Add(r.TokensActuallyRedeemed)
	g.TotalCollateralRedeemed = g.TotalCollateralRedeemed.Add(r.CollateralRedeemed)
	u.save(KindGlobal, g.ID, g)
	return nil
}
