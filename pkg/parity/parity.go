// Package parity implements parity telemetry: recording samples,
// bucketing them by (causeType, targetClass), and evaluating the
// cutover/rollback SLO the legacy-to-new coordinator migration gates on.
package parity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/paritymetricsample"
)

// RecordSampleInput describes one observation to append.
type RecordSampleInput struct {
	CauseType   string
	TargetClass string
	Matched     bool
	Eligible    bool // stored as given; leaving it unset records an ineligible sample
	ObservedAt  time.Time
}

// RecordParityMetricSample appends a sample to the append-only table.
func RecordParityMetricSample(ctx context.Context, client *ent.Client, in RecordSampleInput) (*ent.ParityMetricSample, error) {
	row, err := client.ParityMetricSample.Create().
		SetID(uuid.NewString()).
		SetCauseType(in.CauseType).
		SetTargetClass(in.TargetClass).
		SetMatched(in.Matched).
		SetEligible(in.Eligible).
		SetObservedAt(in.ObservedAt).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("parity: record sample: %w", err)
	}
	return row, nil
}

// BucketKey identifies one (causeType, targetClass) bucket.
type BucketKey struct {
	CauseType   string
	TargetClass string
}

// BucketStats is the computed parity for one bucket.
type BucketStats struct {
	Key           BucketKey
	MatchedCount  int
	EligibleCount int
	Parity        float64
}

// GetParityBucketStats groups every eligible sample observed in
// [windowStart, windowEnd) by (causeType, targetClass) and computes
// parity = matchedCount / eligibleCount (or 1 when eligibleCount==0).
func GetParityBucketStats(ctx context.Context, client *ent.Client, windowStart, windowEnd time.Time) ([]BucketStats, error) {
	samples, err := client.ParityMetricSample.Query().
		Where(
			paritymetricsample.ObservedAtGTE(windowStart),
			paritymetricsample.ObservedAtLT(windowEnd),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("parity: query samples: %w", err)
	}

	type accum struct {
		matched, eligible int
	}
	byKey := make(map[BucketKey]*accum)
	order := make([]BucketKey, 0)
	for _, s := range samples {
		if !s.Eligible {
			continue
		}
		key := BucketKey{CauseType: s.CauseType, TargetClass: s.TargetClass}
		a, ok := byKey[key]
		if !ok {
			a = &accum{}
			byKey[key] = a
			order = append(order, key)
		}
		a.eligible++
		if s.Matched {
			a.matched++
		}
	}

	out := make([]BucketStats, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		parity := 1.0
		if a.eligible > 0 {
			parity = float64(a.matched) / float64(a.eligible)
		}
		out = append(out, BucketStats{
			Key:           key,
			MatchedCount:  a.matched,
			EligibleCount: a.eligible,
			Parity:        parity,
		})
	}
	return out, nil
}

// DefaultCutoverThreshold and DefaultRollbackThreshold are the SLO
// thresholds used when the caller does not override them.
const (
	DefaultCutoverThreshold  = 0.999
	DefaultRollbackThreshold = 0.99
)

// SloEvaluationInput carries the bucket stats and thresholds for one
// cutover/rollback decision.
type SloEvaluationInput struct {
	BucketStats               []BucketStats
	CriticalInvariantViolation bool
	CutoverThreshold          float64 // 0 selects DefaultCutoverThreshold
	RollbackThreshold         float64 // 0 selects DefaultRollbackThreshold
}

// SloEvaluation is the cutover/rollback decision.
type SloEvaluation struct {
	CutoverEligible  bool
	RollbackRequired bool
}

// EvaluateParitySlo: cutoverEligible requires a non-empty bucket set where
// every bucket has eligibleCount>0, every bucket's parity meets the
// cutover threshold, and there is no critical invariant violation.
// rollbackRequired fires on a critical invariant violation or any bucket
// with eligibleCount>0 falling below the rollback threshold — rollback and
// cutover are not mutually exclusive outcomes; the caller checks rollback
// first.
func EvaluateParitySlo(in SloEvaluationInput) SloEvaluation {
	cutoverThreshold := in.CutoverThreshold
	if cutoverThreshold == 0 {
		cutoverThreshold = DefaultCutoverThreshold
	}
	rollbackThreshold := in.RollbackThreshold
	if rollbackThreshold == 0 {
		rollbackThreshold = DefaultRollbackThreshold
	}

	rollbackRequired := in.CriticalInvariantViolation
	cutoverEligible := len(in.BucketStats) > 0 && !in.CriticalInvariantViolation
	for _, b := range in.BucketStats {
		if b.EligibleCount == 0 {
			cutoverEligible = false
			continue
		}
		if b.Parity < cutoverThreshold {
			cutoverEligible = false
		}
		if b.Parity < rollbackThreshold {
			rollbackRequired = true
		}
	}

	return SloEvaluation{CutoverEligible: cutoverEligible, RollbackRequired: rollbackRequired}
}
