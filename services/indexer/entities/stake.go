package entities

import "github.com/shopspring/decimal"

// StakeOperation classifies a change of a reward-token stake.
type StakeOperation string

const (
	StakeCreated   StakeOperation = "stakeCreated"
	StakeIncreased StakeOperation = "stakeIncreased"
	StakeDecreased StakeOperation = "stakeDecreased"
	StakeRemoved   StakeOperation = "stakeRemoved"
	GainsWithdrawn StakeOperation = "gainsWithdrawn"
)

// Stake is the reward-token stake of one address.
type Stake struct {
	ID     string          `json:"id"`
	Owner  string          `json:"owner"`
	Amount decimal.Decimal `json:"amount"`
}

type StakeChange struct {
	ID                 string          `json:"id"`
	SequenceNumber     uint64          `json:"sequenceNumber"`
	Transaction        string          `json:"transaction"`
	Stake              string          `json:"stake"`
	Operation          StakeOperation  `json:"stakeOperation"`
	StakedAmountBefore decimal.Decimal `json:"stakedAmountBefore"`
	StakedAmountChange decimal.Decimal `json:"stakedAmountChange"`
	StakedAmountAfter  decimal.Decimal `json:"stakedAmountAfter"`
	IssuanceGain       decimal.Decimal `json:"issuanceGain"`
	RedemptionGain     decimal.Decimal `json:"redemptionGain"`
}

// DepositOperation classifies a change of a stability pool deposit.
type DepositOperation string

const (
	DepositTokens          DepositOperation = "depositTokens"
	WithdrawTokens         DepositOperation = "withdrawTokens"
	WithdrawCollateralGain DepositOperation = "withdrawCollateralGain"
)

// StabilityDeposit is the stability pool deposit of one address.
type StabilityDeposit struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	DepositedAmount decimal.Decimal `json:"depositedAmount"`
}

type StabilityDepositChange struct {
	ID                    string           `json:"id"`
	SequenceNumber        uint64           `json:"sequenceNumber"`
	Transaction           string           `json:"transaction"`
	StabilityDeposit      string           `json:"stabilityDeposit"`
	Operation             DepositOperation `json:"depositOperation"`
	DepositedAmountBefore decimal.Decimal  `json:"depositedAmountBefore"`
	DepositedAmountChange decimal.Decimal  `json:"depositedAmountChange"`
	DepositedAmountAfter  decimal.Decimal  `json:"depositedAmountAfter"`
	CollateralGain        decimal.Decimal  `json:"collateralGain"`
	TokenLoss             decimal.Decimal  `json:"tokenLoss"`
}
