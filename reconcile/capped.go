package reconcile

// TieBreak decides whether a new fact may still be inserted for an entity
// that already holds the maximum number of facts of this kind. The rule is
// business-specific and deliberately swappable; see the threshold package for
// the policy currently in force.
type TieBreak[F Keyed] func(requested F, current []F) bool

// TieBreakDrop always drops the request once the cap is reached.
func TieBreakDrop[F Keyed](F, []F) bool { return false }

// CappedUpsert reconciles a single keyed fact for an entity that may hold at
// most limit concurrent facts of this kind. A fact with the same key is always
// an update (or a no-op when equal reports the stored row already matches).
// Below the cap the request is an insert; at the cap the tie-break policy
// decides between inserting anyway and silently dropping the request.
func CappedUpsert[F Keyed](requested F, current []F, limit int, tiebreak TieBreak[F], equal func(a, b F) bool) ChangeSet[F] {
	var set ChangeSet[F]
	for _, row := range current {
		if row.FactKey() != requested.FactKey() {
			continue
		}
		if equal != nil && equal(row, requested) {
			return set
		}
		set.Updates = append(set.Updates, requested)
		return set
	}

	if len(current) < limit {
		set.Inserts = append(set.Inserts, requested)
		return set
	}

	if tiebreak != nil && tiebreak(requested, current) {
		set.Inserts = append(set.Inserts, requested)
	}
	return set
}
