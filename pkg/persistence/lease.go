package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoninja/pkg/throttle"
)

// LeaseStore implements throttle.LeaseStore on the supervisor database.
// Atomicity comes from a conditional UPDATE keyed on the previously observed
// timestamp: if another caller advanced the lease in between, zero rows match
// and the swap reports failure.
type LeaseStore struct {
	db *sql.DB
}

// NewLeaseStore creates a lease store over an open database.
func NewLeaseStore(db *sql.DB) *LeaseStore {
	return &LeaseStore{db: db}
}

// Load implements throttle.LeaseStore.
func (ls *LeaseStore) Load(ctx context.Context, scope string) (throttle.Lease, error) {
	var ns int64
	var caller string
	err := ls.db.QueryRowContext(ctx,
		`SELECT last_invocation_ns, last_caller FROM throttle_lease WHERE scope = ?`, scope,
	).Scan(&ns, &caller)
	if errors.Is(err, sql.ErrNoRows) {
		return throttle.Lease{}, nil
	}
	if err != nil {
		return throttle.Lease{}, fmt.Errorf("failed to load lease for scope %s: %w", scope, err)
	}
	return throttle.Lease{
		LastInvocation: time.Unix(0, ns).UTC(),
		Holder:         caller,
	}, nil
}

// CompareAndSwap implements throttle.LeaseStore.
func (ls *LeaseStore) CompareAndSwap(ctx context.Context, scope string, old, updated throttle.Lease) (bool, error) {
	updatedNs := updated.LastInvocation.UnixNano()

	if old.LastInvocation.IsZero() {
		// First claim for the scope. The primary key rejects a concurrent
		// first claim; treat the conflict as a lost swap, not an error.
		res, err := ls.db.ExecContext(ctx,
			`INSERT INTO throttle_lease (scope, last_invocation_ns, last_caller)
			 VALUES (?, ?, ?)
			 ON CONFLICT(scope) DO NOTHING`,
			scope, updatedNs, updated.Holder,
		)
		if err != nil {
			return false, fmt.Errorf("failed to claim lease for scope %s: %w", scope, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read lease claim result: %w", err)
		}
		return n == 1, nil
	}

	res, err := ls.db.ExecContext(ctx,
		`UPDATE throttle_lease
		 SET last_invocation_ns = ?, last_caller = ?
		 WHERE scope = ? AND last_invocation_ns = ?`,
		updatedNs, updated.Holder, scope, old.LastInvocation.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to swap lease for scope %s: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease swap result: %w", err)
	}
	return n == 1, nil
}
