// Package validate implements the Constraint Validator of spec §4.F as two
// pure functions with disjoint inputs: Phase1 runs before simulation,
// Phase2 after. Neither touches a store or clock beyond the timestamps
// passed in.
package validate

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/prerankio/preranking-engine/internal/domain"
)

// Result is what each phase returns: ok iff no error-severity entries.
type Result struct {
	OK     bool
	Errors []domain.ValidationError
}

func fail(errs []domain.ValidationError, field, msg string) []domain.ValidationError {
	return append(errs, domain.ValidationError{Field: field, Message: msg, Severity: "error"})
}

func warn(errs []domain.ValidationError, field, msg string) []domain.ValidationError {
	return append(errs, domain.ValidationError{Field: field, Message: msg, Severity: "warning"})
}

func okFrom(errs []domain.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return false
		}
	}
	return true
}

// ParsedSolution is the pre-parse view of a solution's transaction bytes
// (spec §4.F note): any field the pre-parser cannot determine is left nil,
// and the corresponding Phase-1 check is skipped rather than failed.
type ParsedSolution struct {
	Inputs    map[string]*uint256.Int // asset_id -> amount, nil if undeterminable
	Hops      *int
	Protocols []string // protocol identifiers touched, nil if undeterminable
}

// Phase1 runs the pre-simulation checks of spec §4.F.
func Phase1(intent domain.Intent, parsed ParsedSolution, submittedAtMs, windowEndMs int64) Result {
	var errs []domain.ValidationError

	// Pinned to windowEndMs; intent.Constraints.DeadlineMs is not consulted.
	if submittedAtMs > windowEndMs {
		errs = fail(errs, "deadline_ms", "solution submitted after window close")
	}

	for _, cap := range intent.Constraints.MaxInputs {
		if parsed.Inputs == nil {
			break // not determinable, Phase 2 only constrains what it can see
		}
		actual, ok := parsed.Inputs[cap.AssetID]
		if !ok || actual == nil {
			continue
		}
		if cap.Amount != nil && actual.Gt(cap.Amount) {
			errs = fail(errs, "max_inputs", "input "+cap.AssetID+" exceeds cap")
		}
	}

	if r := intent.Constraints.Routing; r != nil {
		if r.MaxHops != nil && parsed.Hops != nil {
			if uint32(*parsed.Hops) > *r.MaxHops {
				errs = fail(errs, "routing.max_hops", "hop count exceeds cap")
			}
		}
		if len(r.Blacklist) > 0 && parsed.Protocols != nil {
			blocked := make(map[string]struct{}, len(r.Blacklist))
			for _, p := range r.Blacklist {
				blocked[p] = struct{}{}
			}
			for _, p := range parsed.Protocols {
				if _, hit := blocked[p]; hit {
					errs = fail(errs, "routing.blacklist", "protocol "+p+" is blacklisted")
					break
				}
			}
		}
		if len(r.Whitelist) > 0 && parsed.Protocols != nil {
			allowed := make(map[string]struct{}, len(r.Whitelist))
			for _, p := range r.Whitelist {
				allowed[p] = struct{}{}
			}
			for _, p := range parsed.Protocols {
				if _, hit := allowed[p]; !hit {
					errs = fail(errs, "routing.whitelist", "protocol "+p+" is not whitelisted")
					break
				}
			}
		}
	}

	return Result{OK: okFrom(errs), Errors: errs}
}

// actualCredited sums positive balance changes of coinType credited to
// owner (spec §4.F min-outputs / limit-price).
func actualCredited(dryRun domain.DryRun, owner, coinType string) (*uint256.Int, bool) {
	sum := new(big.Int)
	found := false
	for _, bc := range dryRun.BalanceChanges {
		if bc.Owner != owner || bc.CoinType != coinType {
			continue
		}
		if bc.Amount == nil || bc.Amount.Sign() <= 0 {
			continue
		}
		sum.Add(sum, bc.Amount)
		found = true
	}
	if !found {
		return nil, false
	}
	out, overflow := uint256.FromBig(sum)
	if overflow {
		return nil, false
	}
	return out, true
}

// Phase2 runs the post-simulation checks of spec §4.F.
func Phase2(intent domain.Intent, solution domain.Solution, dryRun domain.DryRun) Result {
	var errs []domain.ValidationError

	for _, min := range intent.Constraints.MinOutputs {
		actual, ok := actualCredited(dryRun, intent.UserAddress, min.AssetID)
		if !ok || (min.Amount != nil && actual.Lt(min.Amount)) {
			errs = fail(errs, "min_outputs", "output "+min.AssetID+" below minimum")
		}
	}

	if intent.Constraints.MaxSlippageBp != nil && len(intent.Operation.ExpectedOutputs) > 0 {
		for _, expected := range intent.Operation.ExpectedOutputs {
			if expected.Value == nil || expected.Value.IsZero() {
				continue
			}
			actual, ok := actualCredited(dryRun, intent.UserAddress, expected.AssetID)
			if !ok {
				actual = uint256.NewInt(0)
			}
			if actual.Cmp(expected.Value) >= 0 {
				// Negative slippage (actual >= expected) never fails, per spec.
				continue
			}
			deficit := new(big.Int).Sub(expected.Value.ToBig(), actual.ToBig())
			numerator := new(big.Int).Mul(deficit, big.NewInt(10000))
			slippageBps := new(big.Int).Div(numerator, expected.Value.ToBig()) // floor division on bigints
			if slippageBps.Cmp(big.NewInt(int64(*intent.Constraints.MaxSlippageBp))) > 0 {
				errs = fail(errs, "max_slippage_bps", "slippage exceeds cap for "+expected.AssetID)
			}
		}
	}

	if intent.Constraints.MaxGasCost != nil {
		rebate := dryRun.Gas.Rebate
		if rebate == nil {
			rebate = uint256.NewInt(0)
		}
		total := new(uint256.Int).Add(safeU256(dryRun.Gas.Computation), safeU256(dryRun.Gas.Storage))
		if total.Cmp(rebate) >= 0 {
			total = new(uint256.Int).Sub(total, rebate)
		} else {
			total = uint256.NewInt(0)
		}
		if total.Cmp(uint256.NewInt(uint64(*intent.Constraints.MaxGasCost))) > 0 {
			errs = fail(errs, "max_gas_cost", "total gas exceeds cap")
		}
	}

	if lp := intent.Constraints.LimitPrice; lp != nil && len(intent.Operation.Inputs) > 0 {
		errs = checkLimitPrice(intent, dryRun, *lp, errs)
	}

	return Result{OK: okFrom(errs), Errors: errs}
}

func safeU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

func checkLimitPrice(intent domain.Intent, dryRun domain.DryRun, lp domain.LimitPrice, errs []domain.ValidationError) []domain.ValidationError {
	primaryInput := intent.Operation.Inputs[0]
	if len(intent.Operation.Outputs) == 0 {
		return errs
	}
	primaryOutput := intent.Operation.Outputs[0]

	if primaryInput.Value == nil {
		return errs
	}
	actualOutput, ok := actualCredited(dryRun, intent.UserAddress, primaryOutput.AssetID)
	if !ok {
		return errs
	}

	price, err := decimal.NewFromString(lp.Price)
	if err != nil {
		return warn(errs, "limit_price", "unparseable price string")
	}

	inNorm := decimal.NewFromBigInt(primaryInput.Value.ToBig(), -int32(primaryInput.Decimals))
	outNorm := decimal.NewFromBigInt(actualOutput.ToBig(), -int32(primaryOutput.Decimals))
	if outNorm.IsZero() || inNorm.IsZero() {
		return errs
	}

	var realised decimal.Decimal
	switch lp.PriceAsset {
	case primaryInput.AssetID:
		realised = inNorm.Div(outNorm)
	case primaryOutput.AssetID:
		realised = outNorm.Div(inNorm)
	default:
		return warn(errs, "limit_price", "price_asset matches neither input nor output asset")
	}

	switch lp.Comparison {
	case domain.ComparisonGTE:
		if realised.LessThan(price) {
			errs = fail(errs, "limit_price", "realised price below gte limit")
		}
	case domain.ComparisonLTE:
		if realised.GreaterThan(price) {
			errs = fail(errs, "limit_price", "realised price above lte limit")
		}
	}
	return errs
}
