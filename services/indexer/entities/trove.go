package entities

import "github.com/shopspring/decimal"

// TroveStatus is the lifecycle state of a trove.
type TroveStatus string

const (
	TroveOpen                TroveStatus = "open"
	TroveClosedByOwner       TroveStatus = "closedByOwner"
	TroveClosedByLiquidation TroveStatus = "closedByLiquidation"
	TroveClosedByRedemption  TroveStatus = "closedByRedemption"
)

// Closed reports whether the status is one of the closed states.
func (s TroveStatus) Closed() bool {
	switch s {
	case TroveClosedByOwner, TroveClosedByLiquidation, TroveClosedByRedemption:
		return true
	}
	return false
}

// TroveOperation is the contract operation behind a trove change.
type TroveOperation string

const (
	OpenTrove               TroveOperation = "openTrove"
	CloseTrove              TroveOperation = "closeTrove"
	AdjustTrove             TroveOperation = "adjustTrove"
	AccrueRewards           TroveOperation = "accrueRewards"
	LiquidateInNormalMode   TroveOperation = "liquidateInNormalMode"
	LiquidateInRecoveryMode TroveOperation = "liquidateInRecoveryMode"
	RedeemCollateral        TroveOperation = "redeemCollateral"
)

func (o TroveOperation) IsLiquidation() bool {
	return o == LiquidateInNormalMode || o == LiquidateInRecoveryMode
}

func (o TroveOperation) IsRedemption() bool {
	return o == RedeemCollateral
}

// ClosedStatus is the status a trove ends up in when this operation empties it.
func (o TroveOperation) ClosedStatus() TroveStatus {
	switch {
	case o.IsLiquidation():
		return TroveClosedByLiquidation
	case o.IsRedemption():
		return TroveClosedByRedemption
	default:
		return TroveClosedByOwner
	}
}

// Trove is the collateralized debt position of one borrower. A borrower has
// at most one trove; reopening reuses it.
type Trove struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Status      TroveStatus     `json:"status"`
	Collateral  decimal.Decimal `json:"collateral"`
	Debt        decimal.Decimal `json:"debt"`
	Stake       decimal.Decimal `json:"stake"`
	ChangeCount uint64          `json:"changeCount"`
}

// TroveChange records one state transition of a trove.
type TroveChange struct {
	ID               string           `json:"id"`
	SequenceNumber   uint64           `json:"sequenceNumber"`
	Transaction      string           `json:"transaction"`
	Trove            string           `json:"trove"`
	Operation        TroveOperation   `json:"troveOperation"`
	CollateralBefore decimal.Decimal  `json:"collateralBefore"`
	CollateralChange decimal.Decimal  `json:"collateralChange"`
	CollateralAfter  decimal.Decimal  `json:"collateralAfter"`
	DebtBefore       decimal.Decimal  `json:"debtBefore"`
	DebtChange       decimal.Decimal  `json:"debtChange"`
	DebtAfter        decimal.Decimal  `json:"debtAfter"`
	BorrowingFee     *decimal.Decimal `json:"borrowingFee"`
	Redemption       *string          `json:"redemption"`
	Liquidation      *string          `json:"liquidation"`
}
