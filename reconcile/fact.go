// Package reconcile computes the insert/update/delete deltas needed to make
// persisted master-data rows match a requested state. It never touches the
// database itself; callers read current rows, run a reconciler, and apply the
// resulting ChangeSet inside their own transaction.
package reconcile

import "time"

// Forever is the sentinel expiration date marking an open-ended row.
var Forever = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Keyed identifies a persisted row. FactKey is the structural identity of the
// row itself; EntityKey names the owning entity (a product, typically) so
// changes to many rows of one entity can be grouped.
type Keyed interface {
	FactKey() string
	EntityKey() string
}

// Fact is a Keyed row with a [effective, expiration) validity window.
// WithExpiration returns a copy with a shortened window; the original row is
// never mutated.
type Fact[F any] interface {
	Keyed
	Window() (effective, expiration time.Time)
	WithExpiration(expiration time.Time) F
}

// SameDay reports whether two timestamps fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
