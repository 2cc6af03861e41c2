// Package gates implements the four gate evaluators — CI, review-thread,
// deep-review, Carmack-review — and video-capture-outcome persistence, each
// sharing the same shape: upsert a head-SHA-keyed gate-run row inside a
// transaction, then drive the state machine via
// statemachine.PersistGuardedGateLoopState.
package gates

import (
	"sort"
	"strings"
)

// RequiredCheckSource records which input list the CI gate drew its
// required-check set from.
type RequiredCheckSource string

const (
	SourceRuleset          RequiredCheckSource = "ruleset"
	SourceBranchProtection RequiredCheckSource = "branch_protection"
	SourceAllowlist        RequiredCheckSource = "allowlist"
	SourceNoRequired       RequiredCheckSource = "no_required"
)

// CapabilityState mirrors the capability-state values a CI provider
// integration can report; anything other than "supported" is a capability
// error, never a blocked gate.
type CapabilityState string

const (
	CapabilitySupported      CapabilityState = "supported"
	CapabilityForbidden      CapabilityState = "forbidden"
	CapabilityUnsupported    CapabilityState = "unsupported"
	CapabilityTransientError CapabilityState = "transient_error"
)

// CIGateStatus is the persisted outcome of a CI gate evaluation.
type CIGateStatus string

const (
	CIStatusPassed          CIGateStatus = "passed"
	CIStatusBlocked         CIGateStatus = "blocked"
	CIStatusCapabilityError CIGateStatus = "capability_error"
)

// normalizeChecks trims, dedupes, and lexically sorts a list of check
// names, the fixed normalization every required-check input undergoes
// before comparison.
func normalizeChecks(checks []string) []string {
	seen := make(map[string]bool, len(checks))
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, x := range b {
		inB[x] = true
	}
	out := make([]string, 0)
	for _, x := range a {
		if inB[x] {
			out = append(out, x)
		}
	}
	return out
}

// CIGateEvaluationInput is the pure input to EvaluateCIGate.
type CIGateEvaluationInput struct {
	CapabilityState         CapabilityState
	RulesetChecks           []string
	BranchProtectionChecks  []string
	AllowlistChecks         []string
	FailingChecks           []string
}

// CIGateEvaluation is the pure, deterministic result of evaluating the CI
// gate inputs, prior to persistence.
type CIGateEvaluation struct {
	Status                 CIGateStatus
	GatePassed             bool
	RequiredChecks         []string
	FailingRequiredChecks  []string
	RequiredCheckSource    RequiredCheckSource
}

// EvaluateCIGate picks the required-check source by precedence ruleset →
// branch_protection → allowlist → no_required, intersects the normalized
// failing-checks list against the required-check set, and derives status:
// capability_error if the capability isn't supported; passed if there are
// no required checks or none of them are failing; blocked otherwise.
func EvaluateCIGate(in CIGateEvaluationInput) CIGateEvaluation {
	if in.CapabilityState != CapabilitySupported && in.CapabilityState != "" {
		return CIGateEvaluation{Status: CIStatusCapabilityError, GatePassed: false}
	}

	var required []string
	var source RequiredCheckSource
	switch {
	case len(in.RulesetChecks) > 0:
		required = normalizeChecks(in.RulesetChecks)
		source = SourceRuleset
	case len(in.BranchProtectionChecks) > 0:
		required = normalizeChecks(in.BranchProtectionChecks)
		source = SourceBranchProtection
	case len(in.AllowlistChecks) > 0:
		required = normalizeChecks(in.AllowlistChecks)
		source = SourceAllowlist
	default:
		required = nil
		source = SourceNoRequired
	}

	failingRequired := intersect(normalizeChecks(in.FailingChecks), required)

	gatePassed := len(required) == 0 || len(failingRequired) == 0
	status := CIStatusBlocked
	if gatePassed {
		status = CIStatusPassed
	}

	return CIGateEvaluation{
		Status:                status,
		GatePassed:            gatePassed,
		RequiredChecks:        required,
		FailingRequiredChecks: failingRequired,
		RequiredCheckSource:   source,
	}
}

// OptimisticCIPassInput is the snapshot a caller must supply to justify
// treating a single passing check as proof the PR is green.
type OptimisticCIPassInput struct {
	CISnapshotSource     string
	CISnapshotComplete   bool
	CISnapshotCheckNames []string
	KnownRequiredChecks  []string
}

// AcceptOptimisticCIPass implements the optimistic-pass policy: a pass
// signal is only trusted when it carries a snapshot source, is marked
// complete, and its check-name list is a superset of the known required
// checks. Otherwise the evaluator must be skipped entirely — no
// persistence, no transition.
func AcceptOptimisticCIPass(in OptimisticCIPassInput) bool {
	if in.CISnapshotSource == "" || !in.CISnapshotComplete {
		return false
	}
	have := make(map[string]bool, len(in.CISnapshotCheckNames))
	for _, c := range normalizeChecks(in.CISnapshotCheckNames) {
		have[c] = true
	}
	for _, req := range normalizeChecks(in.KnownRequiredChecks) {
		if !have[req] {
			return false
		}
	}
	return true
}
