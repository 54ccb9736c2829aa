// Package pipeline implements the Pre-Ranking Pipeline of spec §4.G: the
// ordered, fast-fail, per-solution orchestration between fetch, Phase-1,
// simulate, Phase-2, and feature extraction.
package pipeline

import (
	"context"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/log"

	"github.com/prerankio/preranking-engine/blobstore"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/simulator"
	"github.com/prerankio/preranking-engine/validate"
)

// Parser extracts the pre-parse view of a solution's transaction bytes for
// Phase 1 (spec §4.F note). A nil field means "not determinable" and the
// corresponding check is skipped, never failed.
type Parser interface {
	Parse(transactionBytes []byte) validate.ParsedSolution
}

// Outcome is the pipeline's verdict for one solution.
type Outcome struct {
	Passed *domain.PassedRecord
	Failed *domain.FailedRecord
}

// Pipeline wires the fetch/validate/simulate stages together.
type Pipeline struct {
	fetcher   blobstore.Fetcher
	simulator simulator.Simulator
	parser    Parser
}

// New builds a Pipeline from its three collaborators.
func New(fetcher blobstore.Fetcher, sim simulator.Simulator, parser Parser) *Pipeline {
	return &Pipeline{fetcher: fetcher, simulator: sim, parser: parser}
}

// Run executes the five ordered steps of spec §4.G for one
// SolutionSubmitted event against intent, stopping at the first failing
// stage.
func (p *Pipeline) Run(ctx context.Context, intent domain.Intent, blobID string, submittedAtMs, windowEndMs int64) Outcome {
	solution, err := p.fetcher.FetchSolution(ctx, blobID)
	if err != nil {
		return Outcome{Failed: &domain.FailedRecord{
			Reason: domain.ReasonFetchFailed,
			Detail: err.Error(),
		}}
	}

	parsed := p.parser.Parse(solution.TransactionBytes)
	phase1 := validate.Phase1(intent, parsed, submittedAtMs, windowEndMs)
	if !phase1.OK {
		return Outcome{Failed: &domain.FailedRecord{
			SolutionID: solution.SolutionID,
			Reason:     domain.ReasonConstraintFailed,
			Errors:     phase1.Errors,
		}}
	}

	dryRun, err := p.simulator.DryRun(ctx, solution.TransactionBytes)
	if err != nil {
		return Outcome{Failed: &domain.FailedRecord{
			SolutionID: solution.SolutionID,
			Reason:     domain.ReasonDryRunFailed,
			Detail:     err.Error(),
		}}
	}
	if dryRun.Status == domain.RunFail {
		return Outcome{Failed: &domain.FailedRecord{
			SolutionID: solution.SolutionID,
			Reason:     domain.ReasonDryRunFailed,
			Detail:     dryRun.ErrorMsg,
		}}
	}

	phase2 := validate.Phase2(intent, solution, dryRun)
	if !phase2.OK {
		return Outcome{Failed: &domain.FailedRecord{
			SolutionID: solution.SolutionID,
			Reason:     domain.ReasonComplexConstraint,
			Errors:     phase2.Errors,
		}}
	}

	features := extractFeatures(intent, dryRun)
	return Outcome{Passed: &domain.PassedRecord{
		SolutionID: solution.SolutionID,
		Solution:   solution,
		Features:   features,
		DryRun:     dryRun,
	}}
}

// feeFieldNames are the structured-event keys treated as protocol fees
// during best-effort feature extraction (spec §4.G).
var feeFieldNames = []string{"fee", "protocol_fee", "platform_fee", "fee_amount"}

// extractFeatures is best-effort and never fails the solution: a missing
// or malformed sub-field leaves its default in place (0 for amounts, 1 for
// the hop and protocol counts); an unparseable fee field is logged.
func extractFeatures(intent domain.Intent, dryRun domain.DryRun) domain.Features {
	features := domain.Features{
		GasCost:        safeU256(dryRun.Gas.Computation),
		ProtocolFees:   uint256.NewInt(0),
		Surplus:        uint256.NewInt(0),
		TotalHops:      1,
		ProtocolsCount: 1,
	}

	fees := new(big.Int)
	for _, ev := range dryRun.Events {
		for _, name := range feeFieldNames {
			v, ok := ev.Fields[name]
			if !ok {
				continue
			}
			amt, ok := coerceToBigInt(v)
			if !ok {
				log.Debug("pipeline: unparseable fee field, skipping", "event_type", ev.Type, "field", name)
				continue
			}
			fees.Add(fees, amt)
		}
	}
	if feesU256, overflow := uint256.FromBig(fees); !overflow {
		features.ProtocolFees = feesU256
	}

	if len(intent.Operation.Outputs) > 0 {
		primary := intent.Operation.Outputs[0]
		if actual, ok := actualCredited(dryRun, intent.UserAddress, primary.AssetID); ok && primary.Min != nil {
			if actual.Cmp(primary.Min) > 0 {
				features.Surplus = new(uint256.Int).Sub(actual, primary.Min)
			}
		}
	}

	coinTypes := make(map[string]struct{})
	for _, bc := range dryRun.BalanceChanges {
		if bc.CoinType != "" && bc.CoinType != "native" {
			coinTypes[bc.CoinType] = struct{}{}
		}
	}
	if hops := len(coinTypes) - 1; hops > features.TotalHops {
		features.TotalHops = hops
	}
	objectChangeHops := estimateObjectChangeHops(dryRun.ObjectChanges)
	if objectChangeHops > features.TotalHops {
		features.TotalHops = objectChangeHops
	}

	protocols := make(map[string]struct{})
	for _, ev := range dryRun.Events {
		if pkg := firstSegment(ev.PackageID); pkg != "" && pkg != "system" {
			protocols[pkg] = struct{}{}
		}
	}
	for _, oc := range dryRun.ObjectChanges {
		if pkg := firstSegment(oc.PackageID); pkg != "" && pkg != "system" {
			protocols[pkg] = struct{}{}
		}
	}
	if len(protocols) > features.ProtocolsCount {
		features.ProtocolsCount = len(protocols)
	}

	return features
}

func firstSegment(packageID string) string {
	idx := strings.Index(packageID, "::")
	if idx < 0 {
		return packageID
	}
	return packageID[:idx]
}

func estimateObjectChangeHops(changes []domain.ObjectChange) int {
	distinct := make(map[string]struct{}, len(changes))
	for _, oc := range changes {
		distinct[oc.ObjectID] = struct{}{}
	}
	if hops := len(distinct) - 1; hops > 1 {
		return hops
	}
	return 1
}

func coerceToBigInt(v interface{}) (*big.Int, bool) {
	switch t := v.(type) {
	case float64:
		return big.NewInt(int64(t)), true
	case string:
		n, ok := new(big.Int).SetString(t, 0)
		return n, ok
	default:
		return nil, false
	}
}

func safeU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

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
