package indexer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

var (
	// ErrMalformedEvent is returned for events that cannot be projected.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownEvent is returned for logs that are not part of the indexed
	// event set. Sources skip them.
	ErrUnknownEvent = errors.New("unknown event")
)

// Contract names as they appear in event records.
const (
	ContractBorrowerOperations = "BorrowerOperations"
	ContractTroveManager       = "TroveManager"
	ContractStabilityPool      = "StabilityPool"
	ContractStaking            = "GVTYStaking"
	ContractPriceFeed          = "PriceFeed"
)

// Event names as declared in the contract ABIs.
const (
	EventTroveUpdated            = "TroveUpdated"
	EventTroveLiquidated         = "TroveLiquidated"
	EventBorrowingFeePaid        = "GUSDBorrowingFeePaid"
	EventLiquidation             = "Liquidation"
	EventRedemption              = "Redemption"
	EventStakeChanged            = "StakeChanged"
	EventStakingGainsWithdrawn   = "StakingGainsWithdrawn"
	EventUserDepositChanged      = "UserDepositChanged"
	EventCollateralGainWithdrawn = "GIVEGainWithdrawn"
	EventPriceUpdated            = "LastGoodPriceUpdated"
)

// Position locates an event on chain.
type Position struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
	// From is the sender of the transaction that emitted the event.
	From common.Address
}

// EventID is the stable identity of the event: tx hash and log index.
func (p Position) EventID() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(p.TxHash.Hex()), p.LogIndex)
}

// Payload is the decoded body of a contract event.
type Payload interface {
	EventName() string
	Validate() error
}

// Event is a decoded contract event at its chain position.
type Event struct {
	Position
	Contract string
	Payload  Payload
}

// Name returns the payload's event name, or "" when there is no payload.
func (e Event) Name() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventName()
}

// Validate checks the event carries everything the projection needs.
func (e Event) Validate() error {
	if e.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}
	if (e.TxHash == common.Hash{}) {
		return fmt.Errorf("%w: %s missing transaction hash", ErrMalformedEvent, e.Name())
	}
	return e.Payload.Validate()
}

// TroveUpdatedEvent is emitted by BorrowerOperations and TroveManager
// whenever a trove's collateral, debt or stake changes.
type TroveUpdatedEvent struct {
	Borrower  common.Address
	Debt      *big.Int
	Coll      *big.Int
	Stake     *big.Int
	Operation entities.TroveOperation
}

func (TroveUpdatedEvent) EventName() string { return EventTroveUpdated }

func (e TroveUpdatedEvent) Validate() error {
	if e.Operation == "" {
		return fmt.Errorf("%w: %s missing operation", ErrMalformedEvent, EventTroveUpdated)
	}
	return requireAmounts(EventTroveUpdated, e.Debt, e.Coll, e.Stake)
}

// TroveLiquidatedEvent is emitted once per trove closed by a liquidation.
type TroveLiquidatedEvent struct {
	Borrower  common.Address
	Debt      *big.Int
	Coll      *big.Int
	Operation entities.TroveOperation
}

func (TroveLiquidatedEvent) EventName() string { return EventTroveLiquidated }

func (e TroveLiquidatedEvent) Validate() error {
	if !e.Operation.IsLiquidation() {
		return fmt.Errorf("%w: %s with operation %q", ErrMalformedEvent, EventTroveLiquidated, e.Operation)
	}
	return requireAmounts(EventTroveLiquidated, e.Debt, e.Coll)
}

type BorrowingFeePaidEvent struct {
	Borrower common.Address
	Fee      *big.Int
}

func (BorrowingFeePaidEvent) EventName() string { return EventBorrowingFeePaid }

func (e BorrowingFeePaidEvent) Validate() error {
	return requireAmounts(EventBorrowingFeePaid, e.Fee)
}

// LiquidationEvent closes the current liquidation.
type LiquidationEvent struct {
	LiquidatedDebt       *big.Int
	LiquidatedColl       *big.Int
	CollGasCompensation  *big.Int
	TokenGasCompensation *big.Int
}

func (LiquidationEvent) EventName() string { return EventLiquidation }

func (e LiquidationEvent) Validate() error {
	return requireAmounts(EventLiquidation, e.LiquidatedDebt, e.LiquidatedColl, e.CollGasCompensation, e.TokenGasCompensation)
}

// RedemptionEvent closes the current redemption.
type RedemptionEvent struct {
	AttemptedAmount *big.Int
	ActualAmount    *big.Int
	CollateralSent  *big.Int
	CollateralFee   *big.Int
}

func (RedemptionEvent) EventName() string { return EventRedemption }

func (e RedemptionEvent) Validate() error {
	return requireAmounts(EventRedemption, e.AttemptedAmount, e.ActualAmount, e.CollateralSent, e.CollateralFee)
}

type StakeChangedEvent struct {
	Staker   common.Address
	NewStake *big.Int
}

func (StakeChangedEvent) EventName() string { return EventStakeChanged }

func (e StakeChangedEvent) Validate() error {
	return requireAmounts(EventStakeChanged, e.NewStake)
}

type StakingGainsWithdrawnEvent struct {
	Staker         common.Address
	TokenGain      *big.Int
	CollateralGain *big.Int
}

func (StakingGainsWithdrawnEvent) EventName() string { return EventStakingGainsWithdrawn }

func (e StakingGainsWithdrawnEvent) Validate() error {
	return requireAmounts(EventStakingGainsWithdrawn, e.TokenGain, e.CollateralGain)
}

type UserDepositChangedEvent struct {
	Depositor  common.Address
	NewDeposit *big.Int
}

func (UserDepositChangedEvent) EventName() string { return EventUserDepositChanged }

func (e UserDepositChangedEvent) Validate() error {
	return requireAmounts(EventUserDepositChanged, e.NewDeposit)
}

type CollateralGainWithdrawnEvent struct {
	Depositor      common.Address
	CollateralGain *big.Int
	TokenLoss      *big.Int
}

func (CollateralGainWithdrawnEvent) EventName() string { return EventCollateralGainWithdrawn }

func (e CollateralGainWithdrawnEvent) Validate() error {
	return requireAmounts(EventCollateralGainWithdrawn, e.CollateralGain, e.TokenLoss)
}

type PriceUpdatedEvent struct {
	Price *big.Int
}

func (PriceUpdatedEvent) EventName() string { return EventPriceUpdated }

func (e PriceUpdatedEvent) Validate() error {
	return requireAmounts(EventPriceUpdated, e.Price)
}

func requireAmounts(event string, amounts ...*big.Int) error {
	for i, amount := range amounts {
		if amount == nil {
			return fmt.Errorf("%w: %s amount %d missing", ErrMalformedEvent, event, i)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("%w: %s amount %d negative", ErrMalformedEvent, event, i)
		}
	}
	return nil
}

// BorrowerOperation maps the BorrowerOperations operation code.
func BorrowerOperation(code uint8) (entities.TroveOperation, error) {
	switch code {
	case 0:
		return entities.OpenTrove, nil
	case 1:
		return entities.CloseTrove, nil
	case 2:
		return entities.AdjustTrove, nil
	}
	return "", fmt.Errorf("%w: unknown borrower operation %d", ErrMalformedEvent, code)
}

// TroveManagerOperation maps the TroveManager operation code.
func TroveManagerOperation(code uint8) (entities.TroveOperation, error) {
	switch code {
	case 0:
		return entities.AccrueRewards, nil
	case 1:
		return entities.LiquidateInNormalMode, nil
	case 2:
		return entities.LiquidateInRecoveryMode, nil
	case 3:
		return entities.RedeemCollateral, nil
	}
	return "", fmt.Errorf("%w: unknown trove manager operation %d", ErrMalformedEvent, code)
}
