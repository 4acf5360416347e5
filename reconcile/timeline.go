package reconcile

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWindowInverted signals an effective date after the expiration date.
	ErrWindowInverted = errors.New("reconcile: effective date after expiration date")
	// ErrWindowBeyondForever signals an expiration past the forever sentinel.
	ErrWindowBeyondForever = errors.New("reconcile: expiration beyond forever sentinel")
)

// AddRange reconciles a requested validity window against the current rows of
// one entity dimension. Rows whose window has not started yet are superseded
// and deleted; the row active today is truncated so the new window takes over
// without overlap; rows already expired are history and stay untouched. The
// requested row is inserted unless persisted state already matches it, in
// which case the result is empty so re-submitting a request converges to a
// no-op. A row sharing the requested fact key with a different window is
// rewritten in place: the buckets are disjoint by key, so a paired delete and
// insert of one key cannot share a change set. The current slice may arrive
// in any order.
func AddRange[F Fact[F]](today time.Time, requested F, current []F) (ChangeSet[F], error) {
	reqEff, reqExp := requested.Window()
	if reqExp.Before(reqEff) {
		return ChangeSet[F]{}, ErrWindowInverted
	}
	if reqExp.After(Forever) {
		return ChangeSet[F]{}, ErrWindowBeyondForever
	}

	// The active row is cut where the new window begins, or today when the
	// request is already in effect, so exactly one row covers today.
	cut := reqEff
	if cut.Before(today) {
		cut = today
	}

	var set ChangeSet[F]
	alreadyPresent := false
	for _, row := range current {
		eff, exp := row.Window()
		switch {
		case row.FactKey() == requested.FactKey() && eff.Equal(reqEff) && exp.Equal(reqExp):
			// Persisted state already matches the request.
			alreadyPresent = true
		case row.FactKey() == requested.FactKey():
			set.Updates = append(set.Updates, requested)
			alreadyPresent = true
		case eff.After(today):
			set.Deletes = append(set.Deletes, row)
		case exp.After(today):
			if exp.Equal(cut) {
				continue // already truncated by a previous run
			}
			set.Updates = append(set.Updates, row.WithExpiration(cut))
		}
	}

	if !alreadyPresent {
		set.Inserts = append(set.Inserts, requested)
	}

	if err := set.Validate(); err != nil {
		return ChangeSet[F]{}, fmt.Errorf("reconcile: add range: %w", err)
	}
	return set, nil
}

// EndRange terminates the first current row accepted by match. A row that has
// not started yet is deleted outright; an active row has its expiration moved
// to endDate. An end date at or before the row's effective date would leave
// an inverted window, so the row is deleted instead of updated. Ending a row
// that does not exist, or that already ends on the requested date, is a no-op
// rather than an error.
func EndRange[F Fact[F]](today, endDate time.Time, match func(F) bool, current []F) ChangeSet[F] {
	var set ChangeSet[F]
	for _, row := range current {
		if !match(row) {
			continue
		}
		eff, exp := row.Window()
		switch {
		case eff.After(today):
			set.Deletes = append(set.Deletes, row)
		case !endDate.After(eff):
			// Terminated at or before its own start: no day remains on
			// which the window holds.
			set.Deletes = append(set.Deletes, row)
		case exp.Equal(endDate):
			// already ended on the requested date
		default:
			set.Updates = append(set.Updates, row.WithExpiration(endDate))
		}
		break
	}
	return set
}
