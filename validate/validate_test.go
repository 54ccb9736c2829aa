package validate

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"github.com/prerankio/preranking-engine/internal/domain"
)

func u256(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestPhase1DeadlineExceeded(t *testing.T) {
	intent := domain.Intent{}
	result := Phase1(intent, ParsedSolution{}, 2000, 1000)
	if result.OK {
		t.Fatal("expected deadline failure")
	}
}

func TestPhase1SkipsUndeterminableFields(t *testing.T) {
	maxHops := uint32(2)
	intent := domain.Intent{
		Constraints: domain.Constraints{
			Routing: &domain.Routing{MaxHops: &maxHops},
		},
	}
	// parsed.Hops is nil: undeterminable, must not fail.
	result := Phase1(intent, ParsedSolution{}, 100, 1000)
	if !result.OK {
		t.Fatalf("expected ok with undeterminable hops, got errors: %+v", result.Errors)
	}
}

func TestPhase1MaxInputsCap(t *testing.T) {
	intent := domain.Intent{
		Constraints: domain.Constraints{
			MaxInputs: []domain.AssetAmount{{AssetID: "eth", Amount: u256(100)}},
		},
	}
	parsed := ParsedSolution{Inputs: map[string]*uint256.Int{"eth": u256(150)}}
	result := Phase1(intent, parsed, 100, 1000)
	if result.OK {
		t.Fatal("expected max_inputs failure")
	}
}

func TestPhase1RoutingBlacklist(t *testing.T) {
	intent := domain.Intent{
		Constraints: domain.Constraints{
			Routing: &domain.Routing{Blacklist: []string{"bad_protocol"}},
		},
	}
	parsed := ParsedSolution{Protocols: []string{"bad_protocol"}}
	result := Phase1(intent, parsed, 100, 1000)
	if result.OK {
		t.Fatal("expected blacklist failure")
	}
}

func TestPhase1RoutingWhitelist(t *testing.T) {
	intent := domain.Intent{
		Constraints: domain.Constraints{
			Routing: &domain.Routing{Whitelist: []string{"good_protocol"}},
		},
	}
	parsed := ParsedSolution{Protocols: []string{"other_protocol"}}
	result := Phase1(intent, parsed, 100, 1000)
	if result.OK {
		t.Fatal("expected whitelist failure")
	}
}

func dryRunWithCredit(owner, coinType string, amount int64) domain.DryRun {
	return domain.DryRun{
		Status: domain.RunOK,
		BalanceChanges: []domain.BalanceChange{
			{Owner: owner, CoinType: coinType, Amount: big.NewInt(amount)},
		},
	}
}

func TestPhase2MinOutputsSatisfied(t *testing.T) {
	intent := domain.Intent{
		UserAddress: "0xabc",
		Constraints: domain.Constraints{
			MinOutputs: []domain.AssetAmount{{AssetID: "usdc", Amount: u256(100)}},
		},
	}
	dryRun := dryRunWithCredit("0xabc", "usdc", 150)
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("expected ok, got %+v", result.Errors)
	}
}

func TestPhase2MinOutputsAbsentFails(t *testing.T) {
	intent := domain.Intent{
		UserAddress: "0xabc",
		Constraints: domain.Constraints{
			MinOutputs: []domain.AssetAmount{{AssetID: "usdc", Amount: u256(100)}},
		},
	}
	result := Phase2(intent, domain.Solution{}, domain.DryRun{})
	if result.OK {
		t.Fatal("expected failure when output is absent")
	}
}

func TestPhase2SlippageWithinBounds(t *testing.T) {
	maxBps := uint32(500) // 5%
	intent := domain.Intent{
		UserAddress: "0xabc",
		Operation: domain.Operation{
			ExpectedOutputs: []domain.Amount{{AssetID: "usdc", Value: u256(1000)}},
		},
		Constraints: domain.Constraints{MaxSlippageBp: &maxBps},
	}
	// actual = 960, deficit = 40, slippage_bps = floor(40*10000/1000) = 400 <= 500.
	dryRun := dryRunWithCredit("0xabc", "usdc", 960)
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("expected ok, got %+v", result.Errors)
	}
}

func TestPhase2SlippageExceedsCap(t *testing.T) {
	maxBps := uint32(200) // 2%
	intent := domain.Intent{
		UserAddress: "0xabc",
		Operation: domain.Operation{
			ExpectedOutputs: []domain.Amount{{AssetID: "usdc", Value: u256(1000)}},
		},
		Constraints: domain.Constraints{MaxSlippageBp: &maxBps},
	}
	dryRun := dryRunWithCredit("0xabc", "usdc", 960) // 400bps > 200bps cap
	result := Phase2(intent, domain.Solution{}, dryRun)
	if result.OK {
		t.Fatal("expected slippage failure")
	}
}

func TestPhase2NegativeSlippageNeverFails(t *testing.T) {
	maxBps := uint32(1) // near-zero tolerance
	intent := domain.Intent{
		UserAddress: "0xabc",
		Operation: domain.Operation{
			ExpectedOutputs: []domain.Amount{{AssetID: "usdc", Value: u256(1000)}},
		},
		Constraints: domain.Constraints{MaxSlippageBp: &maxBps},
	}
	dryRun := dryRunWithCredit("0xabc", "usdc", 1200) // actual > expected
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("negative slippage must never fail, got %+v", result.Errors)
	}
}

func TestPhase2MaxGasExceeded(t *testing.T) {
	maxGas := int64(100)
	intent := domain.Intent{Constraints: domain.Constraints{MaxGasCost: &maxGas}}
	dryRun := domain.DryRun{
		Gas: domain.GasInfo{Computation: u256(80), Storage: u256(40), Rebate: u256(0)},
	}
	result := Phase2(intent, domain.Solution{}, dryRun)
	if result.OK {
		t.Fatal("expected gas cap failure: 80+40-0=120 > 100")
	}
}

func TestPhase2MaxGasWithRebateUnderCap(t *testing.T) {
	maxGas := int64(100)
	intent := domain.Intent{Constraints: domain.Constraints{MaxGasCost: &maxGas}}
	dryRun := domain.DryRun{
		Gas: domain.GasInfo{Computation: u256(80), Storage: u256(40), Rebate: u256(30)},
	}
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("expected ok: 80+40-30=90 <= 100, got %+v", result.Errors)
	}
}

func TestPhase2LimitPriceGTESatisfied(t *testing.T) {
	intent := domain.Intent{
		UserAddress: "0xabc",
		Operation: domain.Operation{
			Inputs:  []domain.Amount{{AssetID: "eth", Value: u256(1e9), Decimals: 9}},
			Outputs: []domain.Amount{{AssetID: "usdc", Decimals: 6}},
		},
		Constraints: domain.Constraints{
			LimitPrice: &domain.LimitPrice{Price: "1800", Comparison: domain.ComparisonGTE, PriceAsset: "usdc"},
		},
	}
	// in_norm = 1e9/1e9 = 1, out_norm = 1850000000/1e6 = 1850; price_asset is the
	// output asset, so realised = out/in = 1850 >= 1800.
	dryRun := dryRunWithCredit("0xabc", "usdc", 1850000000)
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("expected gte limit satisfied, got %+v", result.Errors)
	}
}

func TestPhase2LimitPriceMismatchedAssetWarns(t *testing.T) {
	intent := domain.Intent{
		UserAddress: "0xabc",
		Operation: domain.Operation{
			Inputs:  []domain.Amount{{AssetID: "eth", Value: u256(1), Decimals: 0}},
			Outputs: []domain.Amount{{AssetID: "usdc", Decimals: 0}},
		},
		Constraints: domain.Constraints{
			LimitPrice: &domain.LimitPrice{Price: "10", Comparison: domain.ComparisonGTE, PriceAsset: "unrelated_asset"},
		},
	}
	dryRun := dryRunWithCredit("0xabc", "usdc", 5)
	result := Phase2(intent, domain.Solution{}, dryRun)
	if !result.OK {
		t.Fatalf("mismatched price_asset must warn, not fail: %+v", result.Errors)
	}
	foundWarning := false
	for _, e := range result.Errors {
		if e.Severity == "warning" {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Fatal("expected a warning entry for mismatched price_asset")
	}
}
