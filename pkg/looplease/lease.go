// Package looplease implements the per-loop mutex with TTL and monotonic
// epoch described by the loop lease: INSERT-on-conflict-DO-NOTHING to
// acquire a never-before-leased loop, falling back to a CAS UPDATE when the
// prior lease is owned by the same caller or has expired.
package looplease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AcquireReason is populated on a failed acquire.
type AcquireReason string

const ReasonHeldByOther AcquireReason = "held_by_other"

// AcquireResult is the outcome of Acquire.
type AcquireResult struct {
	Acquired       bool
	LeaseOwner     string
	LeaseEpoch     int
	LeaseExpiresAt time.Time
	Reason         AcquireReason
}

// Querier is satisfied by *sql.DB and *sql.Tx, matching the raw-SQL
// concurrency primitives this package needs (INSERT ... ON CONFLICT DO
// NOTHING, conditional UPDATE) that are awkward to express through a
// generated ORM builder.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Acquire implements the loop lease acquire algorithm:
//
//  1. INSERT ... ON CONFLICT (loop_id) DO NOTHING with leaseEpoch=1; if a
//     row was inserted, the lease is acquired fresh.
//  2. Else UPDATE ... WHERE (lease_owner = caller) OR (lease_expires_at IS
//     NULL OR lease_expires_at <= now); if rows touched, acquired with
//     leaseEpoch incremented.
//  3. Else return {acquired:false, reason:"held_by_other"} with the
//     observed owner/expiry.
func Acquire(ctx context.Context, q Querier, loopID, leaseOwner string, ttl time.Duration, now time.Time) (AcquireResult, error) {
	expiresAt := now.Add(ttl)

	var insertedEpoch int
	var insertedExpiresAt time.Time
	err := q.QueryRowContext(ctx, `
		INSERT INTO loop_leases (loop_id, lease_owner, lease_epoch, lease_expires_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (loop_id) DO NOTHING
		RETURNING lease_epoch, lease_expires_at
	`, loopID, leaseOwner, expiresAt).Scan(&insertedEpoch, &insertedExpiresAt)
	switch {
	case err == nil:
		return AcquireResult{Acquired: true, LeaseOwner: leaseOwner, LeaseEpoch: insertedEpoch, LeaseExpiresAt: insertedExpiresAt}, nil
	case errors.Is(err, sql.ErrNoRows):
		// loop lease row already exists; fall through to the CAS update.
	default:
		return AcquireResult{}, fmt.Errorf("looplease: insert attempt: %w", err)
	}

	var updatedEpoch int
	var updatedExpiresAt time.Time
	err = q.QueryRowContext(ctx, `
		UPDATE loop_leases
		SET lease_owner = $2, lease_epoch = lease_epoch + 1, lease_expires_at = $3
		WHERE loop_id = $1
		  AND (lease_owner = $2 OR lease_expires_at IS NULL OR lease_expires_at <= $4)
		RETURNING lease_epoch, lease_expires_at
	`, loopID, leaseOwner, expiresAt, now).Scan(&updatedEpoch, &updatedExpiresAt)
	switch {
	case err == nil:
		return AcquireResult{Acquired: true, LeaseOwner: leaseOwner, LeaseEpoch: updatedEpoch, LeaseExpiresAt: updatedExpiresAt}, nil
	case errors.Is(err, sql.ErrNoRows):
		var owner sql.NullString
		var observedExpiresAt sql.NullTime
		if qerr := q.QueryRowContext(ctx, `SELECT lease_owner, lease_expires_at FROM loop_leases WHERE loop_id = $1`, loopID).
			Scan(&owner, &observedExpiresAt); qerr != nil {
			return AcquireResult{}, fmt.Errorf("looplease: read contended lease: %w", qerr)
		}
		slog.Warn("loop lease held by other claimant", "loop_id", loopID, "caller", leaseOwner, "owner", owner.String)
		result := AcquireResult{Acquired: false, Reason: ReasonHeldByOther, LeaseOwner: owner.String}
		if observedExpiresAt.Valid {
			result.LeaseExpiresAt = observedExpiresAt.Time
		}
		return result, nil
	default:
		return AcquireResult{}, fmt.Errorf("looplease: CAS update: %w", err)
	}
}

// Release is CAS-gated on owner equality; it clears the owner and sets
// leaseExpiresAt to now so a subsequent Acquire by anyone succeeds
// immediately rather than waiting out the TTL. Returns whether a row was
// updated.
func Release(ctx context.Context, q Querier, loopID, leaseOwner string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE loop_leases
		SET lease_owner = NULL, lease_expires_at = $3
		WHERE loop_id = $1 AND lease_owner = $2
	`, loopID, leaseOwner, now)
	if err != nil {
		return false, fmt.Errorf("looplease: release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("looplease: release rows affected: %w", err)
	}
	return n > 0, nil
}
