// Package artifacts implements phase artifact supersession, plan-approval,
// plan-task replacement, and the task-completion gate that binds a loop
// state transition to an artifact's approval status and head SHA.
package artifacts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/phaseartifact"
	"github.com/sdlcloop/controller/ent/plantask"
	"github.com/sdlcloop/controller/pkg/statemachine"
)

var nonTerminalArtifactStatuses = []phaseartifact.Status{
	phaseartifact.StatusGenerated, phaseartifact.StatusApproved, phaseartifact.StatusAccepted,
}

// CreatePlanArtifactInput describes a new phase artifact to admit.
type CreatePlanArtifactInput struct {
	LoopID      string
	Phase       string
	HeadSha     *string
	LoopVersion int
	Status      string
	ArtifactType string
	GeneratedBy string
	Payload     map[string]any
	Now         time.Time
}

// ErrHeadShaNotAllowed is returned when a caller supplies a headSha for a
// phase that must never carry one (planning, pr_linking).
var ErrHeadShaNotAllowed = fmt.Errorf("artifacts: headSha not allowed for this phase")

func phaseRequiresNilHeadSha(phase string) bool {
	return phase == string(phaseartifact.PhasePlanning) || phase == string(phaseartifact.PhasePrLinking)
}

// CreatePlanArtifactForLoop supersedes every prior non-terminal artifact at
// (loopId, phase[, headSha]) and inserts the new one, all inside one
// transaction. planning and pr_linking artifacts never carry a headSha.
func CreatePlanArtifactForLoop(ctx context.Context, client *ent.Client, in CreatePlanArtifactInput) (*ent.PhaseArtifact, error) {
	if in.HeadSha != nil && phaseRequiresNilHeadSha(in.Phase) {
		return nil, ErrHeadShaNotAllowed
	}

	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: begin tx: %w", err)
	}
	defer tx.Rollback()

	predicates := []phaseartifact.Predicate{
		phaseartifact.LoopID(in.LoopID),
		phaseartifact.Phase(phaseartifact.Phase(in.Phase)),
		phaseartifact.StatusIn(nonTerminalArtifactStatuses...),
	}
	if in.HeadSha != nil {
		predicates = append(predicates, phaseartifact.HeadSha(*in.HeadSha))
	}

	priors, err := tx.PhaseArtifact.Query().Where(predicates...).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: query prior artifacts: %w", err)
	}
	for _, p := range priors {
		if _, err := tx.PhaseArtifact.UpdateOne(p).
			SetStatus(phaseartifact.StatusSuperseded).
			SetUpdatedAt(in.Now).
			Save(ctx); err != nil {
			return nil, fmt.Errorf("artifacts: supersede prior artifact %s: %w", p.ID, err)
		}
	}

	create := tx.PhaseArtifact.Create().
		SetID(uuid.NewString()).
		SetLoopID(in.LoopID).
		SetPhase(phaseartifact.Phase(in.Phase)).
		SetArtifactType(in.ArtifactType).
		SetLoopVersion(in.LoopVersion).
		SetGeneratedBy(in.GeneratedBy).
		SetPayload(in.Payload).
		SetCreatedAt(in.Now).
		SetUpdatedAt(in.Now)
	if in.Status != "" {
		create = create.SetStatus(phaseartifact.Status(in.Status))
	}
	if in.HeadSha != nil {
		create = create.SetHeadSha(*in.HeadSha)
	}

	row, err := create.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: create artifact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("artifacts: commit: %w", err)
	}
	return row, nil
}

var (
	// ErrArtifactNotFound is returned when no approvable artifact exists.
	ErrArtifactNotFound = fmt.Errorf("artifacts: artifact not found")
)

// ApprovePlanArtifactForLoop CAS-transitions a planning artifact from
// {generated, accepted} to approved, recording approvedByUserId.
func ApprovePlanArtifactForLoop(ctx context.Context, client *ent.Client, artifactID, approvedByUserID string, now time.Time) (*ent.PhaseArtifact, error) {
	updated, err := client.PhaseArtifact.UpdateOneID(artifactID).
		Where(phaseartifact.StatusIn(phaseartifact.StatusGenerated, phaseartifact.StatusAccepted)).
		SetStatus(phaseartifact.StatusApproved).
		SetApprovedByUserID(approvedByUserID).
		SetUpdatedAt(now).
		Save(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("artifacts: approve: %w", err)
	}
	return updated, nil
}

// ReplacePlanTasksForArtifact deletes every task for artifactID and
// re-inserts the deduplicated task list (deduplicated by stableTaskId,
// first occurrence wins).
func ReplacePlanTasksForArtifact(ctx context.Context, client *ent.Client, artifactID string, tasks []PlanTaskInput, now time.Time) ([]*ent.PlanTask, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.PlanTask.Delete().Where(plantask.ArtifactID(artifactID)).Exec(ctx); err != nil {
		return nil, fmt.Errorf("artifacts: delete prior tasks: %w", err)
	}

	seen := make(map[string]bool, len(tasks))
	out := make([]*ent.PlanTask, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.StableTaskID] {
			continue
		}
		seen[t.StableTaskID] = true
		create := tx.PlanTask.Create().
			SetID(uuid.NewString()).
			SetArtifactID(artifactID).
			SetStableTaskID(t.StableTaskID).
			SetTitle(t.Title).
			SetAcceptanceCriteria(t.AcceptanceCriteria).
			SetCreatedAt(now).
			SetUpdatedAt(now)
		if t.Description != "" {
			create = create.SetDescription(t.Description)
		}
		row, err := create.Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("artifacts: create task %s: %w", t.StableTaskID, err)
		}
		out = append(out, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("artifacts: commit: %w", err)
	}
	return out, nil
}

// PlanTaskInput is the caller-supplied shape of one task to (re)insert.
type PlanTaskInput struct {
	StableTaskID       string
	Title              string
	Description        string
	AcceptanceCriteria []string
}

// TaskCompletionResult is the outcome of VerifyPlanTaskCompletionForHead.
type TaskCompletionResult struct {
	GatePassed              bool
	IncompleteTaskIDs       []string
	InvalidEvidenceTaskIDs  []string
}

var incompleteStatuses = []plantask.Status{plantask.StatusTodo, plantask.StatusInProgress, plantask.StatusBlocked}

// VerifyPlanTaskCompletionForHead evaluates every task on artifactID
// against headSha: todo/in_progress/blocked tasks are incomplete; done
// tasks with missing or mismatched completionEvidence.headSha are invalid
// evidence; skipped tasks are exempt from both checks. The gate only
// passes when at least one task exists and neither list is non-empty.
func VerifyPlanTaskCompletionForHead(ctx context.Context, client *ent.Client, artifactID, headSha string) (TaskCompletionResult, error) {
	tasks, err := client.PlanTask.Query().Where(plantask.ArtifactID(artifactID)).All(ctx)
	if err != nil {
		return TaskCompletionResult{}, fmt.Errorf("artifacts: query tasks: %w", err)
	}

	var incomplete, invalidEvidence []string
	for _, t := range tasks {
		if isIncomplete(t.Status) {
			incomplete = append(incomplete, t.ID)
			continue
		}
		if t.Status == plantask.StatusSkipped {
			continue
		}
		if t.Status == plantask.StatusDone {
			evidenceHeadSha, ok := t.CompletionEvidence["headSha"].(string)
			if !ok || evidenceHeadSha != headSha {
				invalidEvidence = append(invalidEvidence, t.ID)
			}
		}
	}

	gatePassed := len(tasks) > 0 && len(incomplete) == 0 && len(invalidEvidence) == 0
	return TaskCompletionResult{
		GatePassed:             gatePassed,
		IncompleteTaskIDs:      incomplete,
		InvalidEvidenceTaskIDs: invalidEvidence,
	}, nil
}

func isIncomplete(s plantask.Status) bool {
	for _, i := range incompleteStatuses {
		if s == i {
			return true
		}
	}
	return false
}

// RequiredPlanApprovalStatus returns the artifact status required to
// advance out of planning for the given approval policy.
func RequiredPlanApprovalStatus(planApprovalPolicy string) phaseartifact.Status {
	if planApprovalPolicy == "human_required" {
		return phaseartifact.StatusApproved
	}
	return phaseartifact.StatusAccepted
}

// ArtifactTransitionOutcome extends statemachine.Outcome with the two
// artifact-specific rejection reasons.
type ArtifactTransitionOutcome string

const (
	ArtifactOutcomeUpdated            ArtifactTransitionOutcome = "updated"
	ArtifactOutcomeTerminalNoop       ArtifactTransitionOutcome = "terminal_noop"
	ArtifactOutcomeStaleNoop          ArtifactTransitionOutcome = "stale_noop"
	ArtifactOutcomeArtifactNotFound   ArtifactTransitionOutcome = "artifact_not_found"
	ArtifactOutcomeArtifactGateFailed ArtifactTransitionOutcome = "artifact_gate_failed"
)

// TransitionWithArtifactInput binds a state transition to an artifact.
type TransitionWithArtifactInput struct {
	LoopID          string
	ExpectedPhase   string
	RequiredStatus  phaseartifact.Status
	HeadSha         *string
	LoopVersion     int
	Event           statemachine.TransitionEvent
	ObservedState   statemachine.LoopState
	Now             time.Time
}

// TransitionSdlcLoopStateWithArtifact refuses to transition unless a
// matching, sufficiently-approved artifact exists for the expected phase,
// then delegates to statemachine.PersistGuardedGateLoopState.
func TransitionSdlcLoopStateWithArtifact(ctx context.Context, client *ent.Client, in TransitionWithArtifactInput) (ArtifactTransitionOutcome, error) {
	predicates := []phaseartifact.Predicate{
		phaseartifact.LoopID(in.LoopID),
		phaseartifact.Phase(phaseartifact.Phase(in.ExpectedPhase)),
	}
	if in.HeadSha != nil {
		predicates = append(predicates, phaseartifact.HeadSha(*in.HeadSha))
	}

	artifact, err := client.PhaseArtifact.Query().
		Where(predicates...).
		Order(ent.Desc(phaseartifact.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ArtifactOutcomeArtifactNotFound, nil
		}
		return "", fmt.Errorf("artifacts: query artifact: %w", err)
	}

	if artifact.Status != in.RequiredStatus || artifact.LoopVersion > in.LoopVersion {
		return ArtifactOutcomeArtifactGateFailed, nil
	}

	result, err := statemachine.PersistGuardedGateLoopState(ctx, client, statemachine.TransitionInput{
		LoopID:        in.LoopID,
		Event:         in.Event,
		Now:           in.Now,
		ObservedState: in.ObservedState,
		HeadSha:       in.HeadSha,
		LoopVersion:   &in.LoopVersion,
	})
	if err != nil {
		return "", err
	}
	return ArtifactTransitionOutcome(result.Outcome), nil
}
