package gates

import (
	"strings"

	"github.com/sdlcloop/controller/pkg/causeid"
)

// LLMReviewGateStatus is the persisted outcome of a deep-review or
// Carmack-review gate evaluation.
type LLMReviewGateStatus string

const (
	LLMReviewStatusPassed       LLMReviewGateStatus = "passed"
	LLMReviewStatusBlocked      LLMReviewGateStatus = "blocked"
	LLMReviewStatusInvalidOutput LLMReviewGateStatus = "invalid_output"
)

// FindingSeverity enumerates the severities a finding may carry.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
	SeverityLow      FindingSeverity = "low"
)

var validSeverities = map[FindingSeverity]bool{
	SeverityCritical: true, SeverityHigh: true, SeverityMedium: true, SeverityLow: true,
}

// RawFinding is the shape a blocking finding takes straight off the LLM
// output, before stable-id derivation.
type RawFinding struct {
	Title           string
	Severity        FindingSeverity
	Category        string
	Detail          string
	SuggestedFix    *string
	IsBlocking      bool
	StableFindingID string // caller-provided; derived when empty
}

// RawLLMOutput is the untrusted shape an LLM review call returns.
type RawLLMOutput struct {
	GatePassed       bool
	BlockingFindings []RawFinding
}

// ValidateLLMOutput validates the raw LLM output against the fixed schema:
// every finding must carry a non-empty title/category/detail and a
// recognized severity; isBlocking must be true for every entry in
// blockingFindings (the list is defined to only contain blocking findings).
// Returns false when the schema is violated — the caller must then persist
// status=invalid_output and not act on any finding in the payload.
func ValidateLLMOutput(out RawLLMOutput) bool {
	for _, f := range out.BlockingFindings {
		if strings.TrimSpace(f.Title) == "" || strings.TrimSpace(f.Category) == "" || strings.TrimSpace(f.Detail) == "" {
			return false
		}
		if !validSeverities[f.Severity] {
			return false
		}
		if !f.IsBlocking {
			return false
		}
	}
	return true
}

// NormalizedFinding is a RawFinding with its stable id resolved.
type NormalizedFinding struct {
	RawFinding
	ResolvedStableFindingID string
}

// NormalizeFindings dedupes findings by stableFindingId (deriving one from
// content where the caller didn't supply it) and returns the deduplicated
// set that should replace all findings at (loopId, headSha) for gateKind.
func NormalizeFindings(gateKind causeid.GateKind, findings []RawFinding) []NormalizedFinding {
	seen := make(map[string]bool, len(findings))
	out := make([]NormalizedFinding, 0, len(findings))
	for _, f := range findings {
		id := f.StableFindingID
		if id == "" {
			id = causeid.StableFindingID(gateKind, f.Title, string(f.Severity), f.Category, f.Detail)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, NormalizedFinding{RawFinding: f, ResolvedStableFindingID: id})
	}
	return out
}

// EvaluateLLMReviewGate applies the full decision: schema failure forces
// invalid_output (caller must delete all prior findings at this head SHA);
// otherwise the gate passes iff the model claims gatePassed and no blocking
// findings remain after normalization.
func EvaluateLLMReviewGate(gateKind causeid.GateKind, out RawLLMOutput) (status LLMReviewGateStatus, gatePassed bool, findings []NormalizedFinding) {
	if !ValidateLLMOutput(out) {
		return LLMReviewStatusInvalidOutput, false, nil
	}
	findings = NormalizeFindings(gateKind, out.BlockingFindings)
	gatePassed = out.GatePassed && len(findings) == 0
	status = LLMReviewStatusBlocked
	if gatePassed {
		status = LLMReviewStatusPassed
	}
	return status, gatePassed, findings
}

// CanRunCarmackReview reports whether the Carmack Gate may run at headSha:
// only when a prior Deep Review Gate row exists at the same head SHA with
// status=passed && gatePassed=true.
func CanRunCarmackReview(priorDeepReviewStatus LLMReviewGateStatus, priorDeepReviewGatePassed bool) bool {
	return priorDeepReviewStatus == LLMReviewStatusPassed && priorDeepReviewGatePassed
}
