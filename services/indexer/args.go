package indexer

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/givety/givety-indexer/services/indexer/entities"
)

// eventArgs holds named event arguments, either as unpacked by the ABI
// decoder (*big.Int, common.Address, uint8) or as read from a JSON event
// record (strings and json.Number).
type eventArgs map[string]any

func (a eventArgs) big(name string) (*big.Int, error) {
	raw, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: argument %s missing", ErrMalformedEvent, name)
	}
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("%w: argument %s is nil", ErrMalformedEvent, name)
		}
		return v, nil
	case json.Number:
		return parseBig(name, v.String())
	case string:
		return parseBig(name, v)
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		if v != math.Trunc(v) || v < 0 {
			return nil, fmt.Errorf("%w: argument %s is not an integer", ErrMalformedEvent, name)
		}
		return new(big.Int).SetUint64(uint64(v)), nil
	}
	return nil, fmt.Errorf("%w: argument %s has type %T", ErrMalformedEvent, name, raw)
}

func parseBig(name, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("%w: argument %s is not an integer: %q", ErrMalformedEvent, name, s)
	}
	return v, nil
}

func (a eventArgs) address(name string) (common.Address, error) {
	raw, ok := a[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: argument %s missing", ErrMalformedEvent, name)
	}
	switch v := raw.(type) {
	case common.Address:
		return v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("%w: argument %s is not an address: %q", ErrMalformedEvent, name, v)
		}
		return common.HexToAddress(v), nil
	}
	return common.Address{}, fmt.Errorf("%w: argument %s has type %T", ErrMalformedEvent, name, raw)
}

func (a eventArgs) uint8(name string) (uint8, error) {
	v, err := a.big(name)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint8 {
		return 0, fmt.Errorf("%w: argument %s out of range", ErrMalformedEvent, name)
	}
	return uint8(v.Uint64()), nil
}

// buildPayload turns named arguments into the typed payload for a contract
// event. Unknown (contract, event) pairs yield ErrUnknownEvent.
func buildPayload(contract, name string, args eventArgs) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch contract + "." + name {
	case ContractBorrowerOperations + "." + EventTroveUpdated:
		p, err = troveUpdated(args, "stake", "operation", BorrowerOperation)
	case ContractTroveManager + "." + EventTroveUpdated:
		p, err = troveUpdated(args, "_stake", "_operation", TroveManagerOperation)
	case ContractBorrowerOperations + "." + EventBorrowingFeePaid:
		var e BorrowingFeePaidEvent
		if e.Borrower, err = args.address("_borrower"); err == nil {
			e.Fee, err = args.big("_GUSDFee")
		}
		p = e
	case ContractTroveManager + "." + EventTroveLiquidated:
		var (
			e    TroveLiquidatedEvent
			code uint8
		)
		if e.Borrower, err = args.address("_borrower"); err != nil {
			break
		}
		if e.Debt, err = args.big("_debt"); err != nil {
			break
		}
		if e.Coll, err = args.big("_coll"); err != nil {
			break
		}
		if code, err = args.uint8("_operation"); err != nil {
			break
		}
		e.Operation, err = TroveManagerOperation(code)
		p = e
	case ContractTroveManager + "." + EventLiquidation:
		var e LiquidationEvent
		err = collect(args,
			field{"_liquidatedDebt", &e.LiquidatedDebt},
			field{"_liquidatedColl", &e.LiquidatedColl},
			field{"_collGasCompensation", &e.CollGasCompensation},
			field{"_GUSDGasCompensation", &e.TokenGasCompensation},
		)
		p = e
	case ContractTroveManager + "." + EventRedemption:
		var e RedemptionEvent
		err = collect(args,
			field{"_attemptedGUSDAmount", &e.AttemptedAmount},
			field{"_actualGUSDAmount", &e.ActualAmount},
			field{"_GIVESent", &e.CollateralSent},
			field{"_GIVEFee", &e.CollateralFee},
		)
		p = e
	case ContractStaking + "." + EventStakeChanged:
		var e StakeChangedEvent
		if e.Staker, err = args.address("staker"); err == nil {
			e.NewStake, err = args.big("newStake")
		}
		p = e
	case ContractStaking + "." + EventStakingGainsWithdrawn:
		var e StakingGainsWithdrawnEvent
		if e.Staker, err = args.address("staker"); err == nil {
			err = collect(args, field{"GUSDGain", &e.TokenGain}, field{"GIVEGain", &e.CollateralGain})
		}
		p = e
	case ContractStabilityPool + "." + EventUserDepositChanged:
		var e UserDepositChangedEvent
		if e.Depositor, err = args.address("_depositor"); err == nil {
			e.NewDeposit, err = args.big("_newDeposit")
		}
		p = e
	case ContractStabilityPool + "." + EventCollateralGainWithdrawn:
		var e CollateralGainWithdrawnEvent
		if e.Depositor, err = args.address("_depositor"); err == nil {
			err = collect(args, field{"_GIVE", &e.CollateralGain}, field{"_GUSDLoss", &e.TokenLoss})
		}
		p = e
	case ContractPriceFeed + "." + EventPriceUpdated:
		var e PriceUpdatedEvent
		e.Price, err = args.big("_lastGoodPrice")
		p = e
	default:
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownEvent, contract, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", contract, name, err)
	}
	return p, nil
}

func troveUpdated(args eventArgs, stakeArg, opArg string, op func(uint8) (entities.TroveOperation, error)) (Payload, error) {
	var (
		e   TroveUpdatedEvent
		err error
	)
	if e.Borrower, err = args.address("_borrower"); err != nil {
		return nil, err
	}
	err = collect(args, field{"_debt", &e.Debt}, field{"_coll", &e.Coll}, field{stakeArg, &e.Stake})
	if err != nil {
		return nil, err
	}
	code, err := args.uint8(opArg)
	if err != nil {
		return nil, err
	}
	if e.Operation, err = op(code); err != nil {
		return nil, err
	}
	return e, nil
}

type field struct {
	name string
	dst  **big.Int
}

func collect(args eventArgs, fields ...field) error {
	for _, f := range fields {
		v, err := args.big(f.name)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// payloadArgs is the inverse of buildPayload: it renders a payload as the
// named arguments of its contract event, amounts as decimal strings.
func payloadArgs(contract string, p Payload) (map[string]any, error) {
	num := func(x *big.Int) string { return x.String() }
	switch e := p.(type) {
	case TroveUpdatedEvent:
		stakeArg, opArg, decode := "stake", "operation", BorrowerOperation
		if contract == ContractTroveManager {
			stakeArg, opArg, decode = "_stake", "_operation", TroveManagerOperation
		}
		code, err := operationCode(e.Operation, decode)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"_borrower": addressID(e.Borrower),
			"_debt":     num(e.Debt),
			"_coll":     num(e.Coll),
			stakeArg:    num(e.Stake),
			opArg:       fmt.Sprint(code),
		}, nil
	case TroveLiquidatedEvent:
		code, err := operationCode(e.Operation, TroveManagerOperation)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"_borrower":  addressID(e.Borrower),
			"_debt":      num(e.Debt),
			"_coll":      num(e.Coll),
			"_operation": fmt.Sprint(code),
		}, nil
	case BorrowingFeePaidEvent:
		return map[string]any{"_borrower": addressID(e.Borrower), "_GUSDFee": num(e.Fee)}, nil
	case LiquidationEvent:
		return map[string]any{
			"_liquidatedDebt":      num(e.LiquidatedDebt),
			"_liquidatedColl":      num(e.LiquidatedColl),
			"_collGasCompensation": num(e.CollGasCompensation),
			"_GUSDGasCompensation": num(e.TokenGasCompensation),
		}, nil
	case RedemptionEvent:
		return map[string]any{
			"_attemptedGUSDAmount": num(e.AttemptedAmount),
			"_actualGUSDAmount":    num(e.ActualAmount),
			"_GIVESent":            num(e.CollateralSent),
			"_GIVEFee":             num(e.CollateralFee),
		}, nil
	case StakeChangedEvent:
		return map[string]any{"staker": addressID(e.Staker), "newStake": num(e.NewStake)}, nil
	case StakingGainsWithdrawnEvent:
		return map[string]any{"staker": addressID(e.Staker), "GUSDGain": num(e.TokenGain), "GIVEGain": num(e.CollateralGain)}, nil
	case UserDepositChangedEvent:
		return map[string]any{"_depositor": addressID(e.Depositor), "_newDeposit": num(e.NewDeposit)}, nil
	case CollateralGainWithdrawnEvent:
		return map[string]any{"_depositor": addressID(e.Depositor), "_GIVE": num(e.CollateralGain), "_GUSDLoss": num(e.TokenLoss)}, nil
	case PriceUpdatedEvent:
		return map[string]any{"_lastGoodPrice": num(e.Price)}, nil
	}
	return nil, fmt.Errorf("%w: payload %T", ErrUnknownEvent, p)
}

func operationCode(op entities.TroveOperation, decode func(uint8) (entities.TroveOperation, error)) (uint8, error) {
	for code := uint8(0); code < 8; code++ {
		if got, err := decode(code); err == nil && got == op {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: operation %q has no code", ErrMalformedEvent, op)
}
