package indexer

import (
	"encoding/json"
	"math/big"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

func TestProjector_OpenTrove(t *testing.T) {
	f := newFixture(t)
	c := f.chain.begin(alice)
	f.apply(c.troveUpdated(alice, entities.OpenTrove, "10", "2000"))

	g := f.global()
	assert.Equal(t, uint64(1), g.TotalNumberOfTroves)
	assert.Equal(t, uint64(1), g.NumberOfOpenTroves)
	assert.Equal(t, uint64(1), g.TransactionCount)
	assert.Equal(t, uint64(1), g.ChangeCount)
	assert.Equal(t, uint64(2), g.SequenceNumber)

	trove := f.trove(alice)
	assert.Equal(t, entities.TroveOpen, trove.Status)
	assertDecimal(t, "10", trove.Collateral)
	assertDecimal(t, "2000", trove.Debt)
	assert.Equal(t, uint64(1), trove.ChangeCount)

	changes := f.troveChanges(alice)
	require.Len(t, changes, 1)
	tc := changes[0]
	assert.Equal(t, "2", tc.ID)
	assert.Equal(t, entities.OpenTrove, tc.Operation)
	assertDecimal(t, "0", tc.CollateralBefore)
	assertDecimal(t, "10", tc.CollateralChange)
	assertDecimal(t, "2000", tc.DebtAfter)
	assert.Nil(t, tc.BorrowingFee)
	require.NotNil(t, g.LastTroveChange)
	assert.Equal(t, tc.ID, *g.LastTroveChange)

	tx, err := f.reader.Transaction(f.ctx, tc.Transaction)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.SequenceNumber)
	assert.Equal(t, c.block, tx.BlockNumber)
	assert.Equal(t, addressID(alice), tx.From)

	user, err := f.reader.User(f.ctx, alice.Hex())
	require.NoError(t, err)
	require.NotNil(t, user.Trove)
	assert.Equal(t, trove.ID, *user.Trove)
}

func TestProjector_TroveLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(alice).troveUpdated(alice, entities.AdjustTrove, "12", "2500"))
	f.apply(c.begin(alice).troveUpdated(alice, entities.CloseTrove, "0", "0"))

	g := f.global()
	assert.Equal(t, uint64(0), g.NumberOfOpenTroves)
	assert.Equal(t, uint64(1), g.NumberOfTrovesClosedByOwner)
	assert.Equal(t, entities.TroveClosedByOwner, f.trove(alice).Status)

	// Reopening reuses the trove.
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "5", "1000"))

	g = f.global()
	assert.Equal(t, uint64(1), g.TotalNumberOfTroves)
	assert.Equal(t, uint64(1), g.NumberOfOpenTroves)
	assert.Equal(t, uint64(1), g.NumberOfTrovesClosedByOwner)

	trove := f.trove(alice)
	assert.Equal(t, entities.TroveOpen, trove.Status)
	assert.Equal(t, uint64(4), trove.ChangeCount)

	changes := f.troveChanges(alice)
	require.Len(t, changes, 4)
	ops := make([]entities.TroveOperation, 0, len(changes))
	for _, tc := range changes {
		ops = append(ops, tc.Operation)
	}
	assert.Equal(t, []entities.TroveOperation{entities.OpenTrove, entities.AdjustTrove, entities.CloseTrove, entities.OpenTrove}, ops)
	assertDecimal(t, "-12", changes[2].CollateralChange)
}

func TestProjector_UnchangedTroveRecordsNothing(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	before := f.global()

	update, err := f.svc.Apply(f.ctx, c.begin(alice).troveUpdated(alice, entities.AccrueRewards, "10", "2000"))
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Empty(t, update.Entities)

	assert.Equal(t, before, f.global())
	assert.Len(t, f.troveChanges(alice), 1)
}

func TestProjector_BorrowingFee(t *testing.T) {
	f := newFixture(t)
	c := f.chain.begin(alice)
	f.apply(
		c.troveUpdated(alice, entities.OpenTrove, "10", "2000"),
		c.event(ContractBorrowerOperations, BorrowingFeePaidEvent{Borrower: alice, Fee: ether("10")}),
	)

	changes := f.troveChanges(alice)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].BorrowingFee)
	assertDecimal(t, "10", *changes[0].BorrowingFee)

	// A fee from another transaction is counted but attached to nothing.
	f.apply(f.chain.begin(bob).event(ContractBorrowerOperations, BorrowingFeePaidEvent{Borrower: alice, Fee: ether("2.5")}))

	assertDecimal(t, "12.5", f.global().TotalBorrowingFeesPaid)
	changes = f.troveChanges(alice)
	require.NotNil(t, changes[0].BorrowingFee)
	assertDecimal(t, "10", *changes[0].BorrowingFee)
}

func TestProjector_Redemption(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(bob).troveUpdated(bob, entities.OpenTrove, "1", "50"))

	c.begin(carol)
	f.apply(
		c.troveUpdated(bob, entities.RedeemCollateral, "0", "0"),
		c.troveUpdated(alice, entities.RedeemCollateral, "9.5", "1970"),
	)

	g := f.global()
	require.NotNil(t, g.CurrentRedemption, "redemption stays open until its Redemption event")
	open, err := f.reader.Redemption(f.ctx, *g.CurrentRedemption)
	require.NoError(t, err)
	assert.False(t, open.Finished)

	f.apply(c.redemption("100", "80", "0.5", "2"))

	g = f.global()
	assert.Nil(t, g.CurrentRedemption)
	assert.Equal(t, uint64(1), g.RedemptionCount)
	assertDecimal(t, "2", g.TotalRedemptionFeesPaid)
	assertDecimal(t, "80", g.TotalTokensRedeemed)
	assertDecimal(t, "0.5", g.TotalCollateralRedeemed)
	assert.Equal(t, uint64(1), g.NumberOfRedeemedTroves)
	assert.Equal(t, uint64(1), g.NumberOfOpenTroves)
	assert.Equal(t, entities.TroveClosedByRedemption, f.trove(bob).Status)

	r, err := f.reader.Redemption(f.ctx, open.ID)
	require.NoError(t, err)
	assert.True(t, r.Finished)
	assert.True(t, r.Partial)
	assertDecimal(t, "2", r.Fee)
	assertDecimal(t, "100", r.TokensAttemptedToRedeem)
	assertDecimal(t, "80", r.TokensActuallyRedeemed)
	assert.Equal(t, addressID(carol), r.Redeemer)

	for _, owner := range []string{alice.Hex(), bob.Hex()} {
		changes, err := f.reader.TroveChanges(f.ctx, owner, Page{})
		require.NoError(t, err)
		last := changes[len(changes)-1]
		require.NotNil(t, last.Redemption)
		assert.Equal(t, r.ID, *last.Redemption)
		assert.Nil(t, last.Liquidation)
	}

	// A full redemption is not partial and adds its fee.
	c.begin(carol)
	f.apply(
		c.troveUpdated(alice, entities.RedeemCollateral, "9", "1920"),
		c.redemption("50", "50", "0.5", "1"),
	)

	g = f.global()
	assert.Equal(t, uint64(2), g.RedemptionCount)
	assertDecimal(t, "3", g.TotalRedemptionFeesPaid)

	redemptions, err := f.reader.Redemptions(f.ctx, Page{})
	require.NoError(t, err)
	require.Len(t, redemptions, 2)
	assert.True(t, redemptions[0].Partial)
	assert.False(t, redemptions[1].Partial)
	for _, r := range redemptions {
		assert.True(t, r.Finished)
	}
}

func TestProjector_RedemptionPartialFlag(t *testing.T) {
	tests := []struct {
		name              string
		attempted, actual string
		partial           bool
	}{
		{"less than attempted", "100", "80", true},
		{"equal", "100", "100", false},
		{"nothing redeemed", "100", "0", true},
		{"nothing attempted", "0", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.apply(f.chain.begin(carol).redemption(tt.attempted, tt.actual, "0", "0"))

			redemptions, err := f.reader.Redemptions(f.ctx, Page{})
			require.NoError(t, err)
			require.Len(t, redemptions, 1)
			assert.Equal(t, tt.partial, redemptions[0].Partial)
		})
	}
}

func TestProjector_Liquidation(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(bob).troveUpdated(bob, entities.OpenTrove, "3", "900"))

	c.begin(carol)
	f.apply(
		c.event(ContractTroveManager, TroveLiquidatedEvent{
			Borrower: bob, Debt: ether("900"), Coll: ether("3"), Operation: entities.LiquidateInNormalMode,
		}),
		c.event(ContractTroveManager, LiquidationEvent{
			LiquidatedDebt:       ether("900"),
			LiquidatedColl:       ether("2.985"),
			CollGasCompensation:  ether("0.015"),
			TokenGasCompensation: ether("200"),
		}),
	)

	g := f.global()
	assert.Nil(t, g.CurrentLiquidation)
	assert.Equal(t, uint64(1), g.LiquidationCount)
	assert.Equal(t, uint64(1), g.NumberOfLiquidatedTroves)
	assert.Equal(t, uint64(1), g.NumberOfOpenTroves)
	assertDecimal(t, "900", g.TotalLiquidatedDebt)
	assertDecimal(t, "2.985", g.TotalLiquidatedCollateral)

	trove := f.trove(bob)
	assert.Equal(t, entities.TroveClosedByLiquidation, trove.Status)
	assertDecimal(t, "0", trove.Collateral)

	liquidations, err := f.reader.Liquidations(f.ctx, Page{})
	require.NoError(t, err)
	require.Len(t, liquidations, 1)
	l := liquidations[0]
	assert.True(t, l.Finished)
	assert.Equal(t, addressID(carol), l.Liquidator)
	assertDecimal(t, "200", l.TokenGasCompensation)

	changes := f.troveChanges(bob)
	last := changes[len(changes)-1]
	assert.Equal(t, entities.LiquidateInNormalMode, last.Operation)
	require.NotNil(t, last.Liquidation)
	assert.Equal(t, l.ID, *last.Liquidation)
}

func TestProjector_Stake(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	stakeTo := func(amount string) Event {
		return c.begin(alice).event(ContractStaking, StakeChangedEvent{Staker: alice, NewStake: ether(amount)})
	}

	f.apply(stakeTo("100"), stakeTo("150"), stakeTo("50"), stakeTo("0"))
	g := f.global()
	assert.Equal(t, uint64(1), g.TotalNumberOfStakes)
	assert.Equal(t, uint64(0), g.NumberOfActiveStakes)

	f.apply(stakeTo("20"))
	g = f.global()
	assert.Equal(t, uint64(1), g.TotalNumberOfStakes)
	assert.Equal(t, uint64(1), g.NumberOfActiveStakes)

	// Empty gains are not recorded.
	f.apply(c.begin(alice).event(ContractStaking, StakingGainsWithdrawnEvent{Staker: alice, TokenGain: big.NewInt(0), CollateralGain: big.NewInt(0)}))
	f.apply(c.begin(alice).event(ContractStaking, StakingGainsWithdrawnEvent{Staker: alice, TokenGain: ether("5"), CollateralGain: ether("0.1")}))

	changes, err := f.reader.StakeChanges(f.ctx, alice.Hex(), Page{})
	require.NoError(t, err)
	ops := make([]entities.StakeOperation, 0, len(changes))
	for _, sc := range changes {
		ops = append(ops, sc.Operation)
	}
	assert.Equal(t, []entities.StakeOperation{
		entities.StakeCreated,
		entities.StakeIncreased,
		entities.StakeDecreased,
		entities.StakeRemoved,
		entities.StakeCreated,
		entities.GainsWithdrawn,
	}, ops)

	gains := changes[len(changes)-1]
	assertDecimal(t, "5", gains.IssuanceGain)
	assertDecimal(t, "0.1", gains.RedemptionGain)
	assertDecimal(t, "20", gains.StakedAmountAfter)
	assertDecimal(t, "0", gains.StakedAmountChange)

	stake, err := f.reader.Stake(f.ctx, alice.Hex())
	require.NoError(t, err)
	assertDecimal(t, "20", stake.Amount)

	// Unchanged stakes record nothing and never take the active count below zero.
	f.apply(stakeTo("0"), stakeTo("0"))
	f.apply(c.begin(bob).event(ContractStaking, StakeChangedEvent{Staker: bob, NewStake: big.NewInt(0)}))
	g = f.global()
	assert.Equal(t, uint64(1), g.TotalNumberOfStakes)
	assert.Zero(t, g.NumberOfActiveStakes)

	changes, err = f.reader.StakeChanges(f.ctx, alice.Hex(), Page{})
	require.NoError(t, err)
	require.Len(t, changes, 7)
	assert.Equal(t, entities.StakeRemoved, changes[6].Operation)

	_, err = f.reader.Stake(f.ctx, bob.Hex())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProjector_EventsWithoutSender(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	nobody := common.Address{}
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(bob).troveUpdated(bob, entities.OpenTrove, "3", "900"))

	c.begin(nobody)
	f.apply(
		c.troveUpdated(alice, entities.RedeemCollateral, "9", "1900"),
		c.redemption("100", "100", "1", "0"),
	)
	c.begin(nobody)
	f.apply(
		c.event(ContractTroveManager, TroveLiquidatedEvent{
			Borrower: bob, Debt: ether("900"), Coll: ether("3"), Operation: entities.LiquidateInNormalMode,
		}),
		c.event(ContractTroveManager, LiquidationEvent{
			LiquidatedDebt:       ether("900"),
			LiquidatedColl:       ether("2.985"),
			CollGasCompensation:  ether("0.015"),
			TokenGasCompensation: ether("200"),
		}),
	)

	redemptions, err := f.reader.Redemptions(f.ctx, Page{})
	require.NoError(t, err)
	require.Len(t, redemptions, 1)
	assert.Empty(t, redemptions[0].Redeemer)

	liquidations, err := f.reader.Liquidations(f.ctx, Page{})
	require.NoError(t, err)
	require.Len(t, liquidations, 1)
	assert.Empty(t, liquidations[0].Liquidator)

	_, err = f.reader.User(f.ctx, nobody.Hex())
	assert.ErrorIs(t, err, store.ErrNotFound, "the zero address is never registered as a user")
}

func TestProjector_StabilityDeposit(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	depositTo := func(amount string) Event {
		return c.begin(bob).event(ContractStabilityPool, UserDepositChangedEvent{Depositor: bob, NewDeposit: ether(amount)})
	}

	f.apply(depositTo("0"))
	_, err := f.reader.StabilityDeposit(f.ctx, bob.Hex())
	assert.ErrorIs(t, err, store.ErrNotFound, "an empty first deposit leaves no trace")

	f.apply(depositTo("100"), depositTo("60"), depositTo("60"))
	f.apply(c.begin(bob).event(ContractStabilityPool, CollateralGainWithdrawnEvent{Depositor: bob, CollateralGain: ether("1"), TokenLoss: ether("10")}))
	f.apply(c.begin(bob).event(ContractStabilityPool, CollateralGainWithdrawnEvent{Depositor: bob, CollateralGain: big.NewInt(0), TokenLoss: big.NewInt(0)}))

	changes, err := f.reader.StabilityDepositChanges(f.ctx, bob.Hex(), Page{})
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, entities.DepositTokens, changes[0].Operation)
	assertDecimal(t, "100", changes[0].DepositedAmountChange)
	assert.Equal(t, entities.WithdrawTokens, changes[1].Operation)
	assertDecimal(t, "-40", changes[1].DepositedAmountChange)
	assert.Equal(t, entities.WithdrawCollateralGain, changes[2].Operation)
	assertDecimal(t, "60", changes[2].DepositedAmountBefore)
	assertDecimal(t, "50", changes[2].DepositedAmountAfter)
	assertDecimal(t, "1", changes[2].CollateralGain)
	assertDecimal(t, "10", changes[2].TokenLoss)

	deposit, err := f.reader.StabilityDeposit(f.ctx, bob.Hex())
	require.NoError(t, err)
	assertDecimal(t, "50", deposit.DepositedAmount)

	user, err := f.reader.User(f.ctx, bob.Hex())
	require.NoError(t, err)
	require.NotNil(t, user.StabilityDeposit)
	assert.Equal(t, deposit.ID, *user.StabilityDeposit)
}

func TestProjector_Price(t *testing.T) {
	f := newFixture(t)
	ev := f.chain.begin(carol).event(ContractPriceFeed, PriceUpdatedEvent{Price: ether("1850.25")})
	f.apply(ev)

	g := f.global()
	assertDecimal(t, "1850.25", g.Price)
	assert.Equal(t, ev.BlockNumber, g.PriceUpdatedAtBlock)
	assert.Equal(t, uint64(0), g.SequenceNumber, "price updates are not sequenced")
}

func TestProjector_SequenceNumbersAreUniqueAndIncreasing(t *testing.T) {
	f := newFixture(t)
	c := f.chain
	f.apply(c.begin(alice).troveUpdated(alice, entities.OpenTrove, "10", "2000"))
	f.apply(c.begin(bob).troveUpdated(bob, entities.OpenTrove, "2", "300"))
	c.begin(carol)
	f.apply(
		c.troveUpdated(bob, entities.RedeemCollateral, "0", "0"),
		c.redemption("300", "300", "2", "0.1"),
	)
	f.apply(c.begin(alice).event(ContractStaking, StakeChangedEvent{Staker: alice, NewStake: ether("7")}))
	f.apply(c.begin(bob).event(ContractStabilityPool, UserDepositChangedEvent{Depositor: bob, NewDeposit: ether("300")}))

	var seqs []uint64
	collect := func(kind store.Kind) {
		records, err := f.store.List(f.ctx, kind)
		require.NoError(t, err)
		for _, rec := range records {
			var v struct {
				SequenceNumber uint64 `json:"sequenceNumber"`
			}
			require.NoError(t, json.Unmarshal(rec.Data, &v))
			seqs = append(seqs, v.SequenceNumber)
		}
	}
	for _, kind := range []store.Kind{KindTransaction, KindTroveChange, KindRedemption, KindLiquidation, KindStakeChange, KindStabilityDepositChange} {
		collect(kind)
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	g := f.global()
	require.Len(t, seqs, int(g.SequenceNumber))
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}

	// A redemption is numbered after the change that opened it.
	changes := f.troveChanges(bob)
	last := changes[len(changes)-1]
	r, err := f.reader.Redemption(f.ctx, *last.Redemption)
	require.NoError(t, err)
	tx, err := f.reader.Transaction(f.ctx, last.Transaction)
	require.NoError(t, err)
	assert.Less(t, tx.SequenceNumber, last.SequenceNumber)
	assert.Less(t, last.SequenceNumber, r.SequenceNumber)
}

func TestProjector_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := f.chain.begin(alice)
	open := c.troveUpdated(alice, entities.OpenTrove, "10", "2000")
	fee := c.event(ContractBorrowerOperations, BorrowingFeePaidEvent{Borrower: alice, Fee: ether("10")})
	f.apply(open, fee)
	before := f.global()

	for _, ev := range []Event{open, fee} {
		update, err := f.svc.Apply(f.ctx, ev)
		require.NoError(t, err)
		assert.Nil(t, update)
	}

	assert.Equal(t, before, f.global())
	assert.Len(t, f.troveChanges(alice), 1)
}

func TestProjector_MalformedEventCommitsNothing(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"missing amount", TroveUpdatedEvent{Borrower: alice, Coll: ether("1"), Stake: ether("1"), Operation: entities.OpenTrove}},
		{"negative amount", PriceUpdatedEvent{Price: big.NewInt(-1)}},
		{"missing operation", TroveUpdatedEvent{Borrower: alice, Debt: ether("1"), Coll: ether("1"), Stake: ether("1")}},
		{"liquidation without liquidation operation", TroveLiquidatedEvent{Borrower: alice, Debt: ether("1"), Coll: ether("1"), Operation: entities.CloseTrove}},
		{"no payload", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ev := f.chain.begin(alice).event(ContractTroveManager, tt.payload)

			update, err := f.svc.Apply(f.ctx, ev)
			require.ErrorIs(t, err, ErrMalformedEvent)
			assert.Nil(t, update)

			applied, err := f.store.Applied(f.ctx, ev.EventID())
			require.NoError(t, err)
			assert.False(t, applied)
			_, err = f.store.Get(f.ctx, KindGlobal, entities.GlobalID)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestProjector_DanglingRedemption(t *testing.T) {
	f := newFixture(t)
	g := entities.NewGlobal()
	missing := "42"
	g.CurrentRedemption = &missing
	data, err := json.Marshal(g)
	require.NoError(t, err)
	require.NoError(t, f.store.Commit(f.ctx, store.Batch{Records: []store.Record{{Kind: KindGlobal, ID: g.ID, Data: data}}}))

	_, err = f.svc.Apply(f.ctx, f.chain.begin(carol).redemption("1", "1", "0", "0"))
	require.ErrorIs(t, err, errDangling)
}
