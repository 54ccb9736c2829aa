package domain

import "github.com/holiman/uint256"

// FailReason enumerates the pipeline's fast-fail stages (spec §4.G).
type FailReason string

const (
	ReasonFetchFailed       FailReason = "fetch_failed"
	ReasonConstraintFailed  FailReason = "constraint_validation_failed"
	ReasonDryRunFailed      FailReason = "dry_run_failed"
	ReasonComplexConstraint FailReason = "complex_validation_failed"
)

// ValidationError is a single constraint check failure or warning (spec
// §4.F).
type ValidationError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error" | "warning"
}

// Features are the best-effort enrichment fields extracted from a passed
// solution's dry run (spec §4.G).
type Features struct {
	GasCost        *uint256.Int `json:"gas_cost"`
	ProtocolFees   *uint256.Int `json:"protocol_fees"`
	Surplus        *uint256.Int `json:"surplus"`
	TotalHops      int          `json:"total_hops"`
	ProtocolsCount int          `json:"protocols_count"`
}

// PassedRecord is stored once per (intent_id, solution_id) that cleared
// the full pipeline.
type PassedRecord struct {
	SolutionID string   `json:"solution_id"`
	Solution   Solution `json:"solution"`
	Features   Features `json:"features"`
	DryRun     DryRun   `json:"dry_run"`
}

// FailedRecord is stored once per (intent_id, solution_id) that failed at
// any pipeline stage.
type FailedRecord struct {
	SolutionID string            `json:"solution_id"`
	Reason     FailReason        `json:"reason"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Detail     string            `json:"detail,omitempty"`
}

// RankingPayload is the structurally-idempotent flush payload handed to
// the Ranking Queue Publisher (spec §4.H step 3).
type RankingPayload struct {
	IntentID                string         `json:"intent_id"`
	Intent                  Intent         `json:"intent"`
	PassedSolutions         []PassedRecord `json:"passed_solutions"`
	TotalSolutionsSubmitted int            `json:"total_solutions_submitted"`
	WindowClosedAt          int64          `json:"window_closed_at"`
}
