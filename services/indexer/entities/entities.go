// Package entities defines the documents maintained by the event projection
// and served by the query API. Amounts are exact decimals of the 18-decimal
// on-chain integers; references to other entities are ids.
package entities

import (
	"github.com/shopspring/decimal"
)

// GlobalID is the id of the Global singleton.
const GlobalID = "only"

// Global holds protocol-wide counters, running totals and the pointers to the
// currently open batch operations.
type Global struct {
	ID string `json:"id"`

	// SequenceNumber is the last issued sequence number. Every sequenced
	// entity (transactions, changes, redemptions, liquidations) draws from it.
	SequenceNumber uint64 `json:"sequenceNumber"`

	CurrentRedemption  *string `json:"currentRedemption"`
	CurrentLiquidation *string `json:"currentLiquidation"`
	LastTroveChange    *string `json:"lastTroveChange"`

	TransactionCount uint64 `json:"transactionCount"`
	ChangeCount      uint64 `json:"changeCount"`
	RedemptionCount  uint64 `json:"redemptionCount"`
	LiquidationCount uint64 `json:"liquidationCount"`

	TotalNumberOfTroves         uint64 `json:"totalNumberOfTroves"`
	NumberOfOpenTroves          uint64 `json:"numberOfOpenTroves"`
	NumberOfTrovesClosedByOwner uint64 `json:"numberOfTrovesClosedByOwner"`
	NumberOfLiquidatedTroves    uint64 `json:"numberOfLiquidatedTroves"`
	NumberOfRedeemedTroves      uint64 `json:"numberOfRedeemedTroves"`

	TotalNumberOfStakes  uint64 `json:"totalNumberOfStakes"`
	NumberOfActiveStakes uint64 `json:"numberOfActiveStakes"`

	TotalRedemptionFeesPaid   decimal.Decimal `json:"totalRedemptionFeesPaid"`
	TotalBorrowingFeesPaid    decimal.Decimal `json:"totalBorrowingFeesPaid"`
	TotalTokensRedeemed       decimal.Decimal `json:"totalTokensRedeemed"`
	TotalCollateralRedeemed   decimal.Decimal `json:"totalCollateralRedeemed"`
	TotalLiquidatedDebt       decimal.Decimal `json:"totalLiquidatedDebt"`
	TotalLiquidatedCollateral decimal.Decimal `json:"totalLiquidatedCollateral"`

	Price               decimal.Decimal `json:"price"`
	PriceUpdatedAtBlock uint64          `json:"priceUpdatedAtBlock"`
}

// NewGlobal returns the initial Global state.
func NewGlobal() *Global {
	return &Global{
		ID:                        GlobalID,
		TotalRedemptionFeesPaid:   decimal.Zero,
		TotalBorrowingFeesPaid:    decimal.Zero,
		TotalTokensRedeemed:       decimal.Zero,
		TotalCollateralRedeemed:   decimal.Zero,
		TotalLiquidatedDebt:       decimal.Zero,
		TotalLiquidatedCollateral: decimal.Zero,
		Price:                     decimal.Zero,
	}
}

// Transaction is an on-chain transaction that produced at least one change.
type Transaction struct {
	ID             string `json:"id"`
	SequenceNumber uint64 `json:"sequenceNumber"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockHash      string `json:"blockHash"`
	Timestamp      uint64 `json:"timestamp"`
	From           string `json:"from"`
}

// User is an address that owns a trove, a stake or a stability deposit, or
// that sent a redemption or liquidation.
type User struct {
	ID               string  `json:"id"`
	Trove            *string `json:"trove"`
	Stake            *string `json:"stake"`
	StabilityDeposit *string `json:"stabilityDeposit"`
}

// Redemption is one redeemCollateral call, possibly touching several troves.
type Redemption struct {
	ID                      string          `json:"id"`
	SequenceNumber          uint64          `json:"sequenceNumber"`
	Transaction             string          `json:"transaction"`
	Redeemer                string          `json:"redeemer"`
	TokensAttemptedToRedeem decimal.Decimal `json:"tokensAttemptedToRedeem"`
	TokensActuallyRedeemed  decimal.Decimal `json:"tokensActuallyRedeemed"`
	CollateralRedeemed      decimal.Decimal `json:"collateralRedeemed"`
	Partial                 bool            `json:"partial"`
	Fee                     decimal.Decimal `json:"fee"`
	Finished                bool            `json:"finished"`
}

// Liquidation is one liquidate or batchLiquidateTroves call.
type Liquidation struct {
	ID                   string          `json:"id"`
	SequenceNumber       uint64          `json:"sequenceNumber"`
	Transaction          string          `json:"transaction"`
	Liquidator           string          `json:"liquidator"`
	LiquidatedDebt       decimal.Decimal `json:"liquidatedDebt"`
	LiquidatedCollateral decimal.Decimal `json:"liquidatedCollateral"`
	CollGasCompensation  decimal.Decimal `json:"collGasCompensation"`
	TokenGasCompensation decimal.Decimal `json:"tokenGasCompensation"`
	Finished             bool            `json:"finished"`
}
