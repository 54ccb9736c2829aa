// Package domain holds the wire-level and in-memory shapes shared by every
// component of the pre-ranking engine: intents, solutions, constraints and
// the dry-run effects returned by the simulator.
package domain

import (
	"math/big"

	"github.com/holiman/uint256"
)

// AmountMode describes how an input or output amount is specified.
type AmountMode string

const (
	AmountExact AmountMode = "exact"
	AmountRange AmountMode = "range"
	AmountAll   AmountMode = "all"
)

// Amount is a bigint-backed quantity of an asset, optionally qualified by a
// decimals count used only for limit-price normalisation.
type Amount struct {
	AssetID  string       `json:"asset_id"`
	Mode     AmountMode   `json:"mode"`
	Value    *uint256.Int `json:"value,omitempty"`
	Min      *uint256.Int `json:"min,omitempty"`
	Max      *uint256.Int `json:"max,omitempty"`
	Decimals uint8        `json:"decimals"`
}

// OperationMode distinguishes the kind of trade an intent is requesting.
type OperationMode string

// Operation is the user's requested trade shape.
type Operation struct {
	Mode            OperationMode `json:"mode"`
	Inputs          []Amount      `json:"inputs"`
	Outputs         []Amount      `json:"outputs"`
	ExpectedOutputs []Amount      `json:"expected_outputs,omitempty"`
}

// PriceComparison is one side of a limit-price constraint.
type PriceComparison string

const (
	ComparisonGTE PriceComparison = "gte"
	ComparisonLTE PriceComparison = "lte"
)

// LimitPrice constrains the realised price of the primary input/output pair.
type LimitPrice struct {
	Price      string          `json:"price"` // decimal string, parsed with shopspring/decimal
	Comparison PriceComparison `json:"comparison"`
	PriceAsset string          `json:"price_asset"`
}

// Routing bounds the path a solution's execution may take.
type Routing struct {
	MaxHops   *uint32  `json:"max_hops,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
}

// AssetAmount pairs an asset with a bigint quantity, used by MinOutputs and
// MaxInputs.
type AssetAmount struct {
	AssetID string       `json:"asset_id"`
	Amount  *uint256.Int `json:"amount"`
}

// Constraints are all optional, per spec §3.
type Constraints struct {
	DeadlineMs    *int64        `json:"deadline_ms,omitempty"`
	MaxSlippageBp *uint32       `json:"max_slippage_bps,omitempty"`
	MinOutputs    []AssetAmount `json:"min_outputs,omitempty"`
	MaxInputs     []AssetAmount `json:"max_inputs,omitempty"`
	MaxGasCost    *int64        `json:"max_gas_cost,omitempty"`
	Routing       *Routing      `json:"routing,omitempty"`
	LimitPrice    *LimitPrice   `json:"limit_price,omitempty"`
}

// Intent is the user-declared trading request with a bounded solver access
// window (spec §3).
type Intent struct {
	IntentID      string      `json:"intent_id"`
	UserAddress   string      `json:"user_address"`
	WindowStartMs int64       `json:"window_start_ms"`
	WindowEndMs   int64       `json:"window_end_ms"`
	Operation     Operation   `json:"operation"`
	Constraints   Constraints `json:"constraints"`
}

// Solution is a candidate execution submitted by a solver.
type Solution struct {
	SolutionID       string `json:"solution_id"`
	IntentID         string `json:"intent_id"`
	SolverAddress    string `json:"solver_address"`
	SubmittedAtMs    int64  `json:"submitted_at_ms"`
	TransactionBytes []byte `json:"-"`
}

// GasInfo is the gas accounting returned by a dry run.
type GasInfo struct {
	Computation *uint256.Int `json:"computation"`
	Storage     *uint256.Int `json:"storage"`
	Rebate      *uint256.Int `json:"rebate"`
}

// BalanceChange is a single signed credit/debit observed during a dry run.
type BalanceChange struct {
	Owner    string   `json:"owner"`
	CoinType string   `json:"coin_type"`
	Amount   *big.Int `json:"amount"` // signed
}

// SimEvent is a structured event emitted by the dry run (fee accounting,
// protocol identifiers, etc).
type SimEvent struct {
	PackageID string                 `json:"package_id"`
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields"`
}

// ObjectChange records an object/resource mutation observed during the dry
// run, used only for best-effort hop/protocol estimation.
type ObjectChange struct {
	PackageID  string `json:"package_id"`
	ObjectID   string `json:"object_id"`
	ChangeType string `json:"change_type"`
}

// RunStatus is the top-level outcome of a dry run.
type RunStatus string

const (
	RunOK   RunStatus = "ok"
	RunFail RunStatus = "fail"
)

// DryRun is the Simulator Client's response (spec §4.E).
type DryRun struct {
	Status         RunStatus       `json:"status"`
	ErrorMsg       string          `json:"error_msg,omitempty"`
	Gas            GasInfo         `json:"gas"`
	Events         []SimEvent      `json:"events"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
	ObjectChanges  []ObjectChange  `json:"object_changes"`
}
