package threshold

import "productmaster/reconcile"

// TieBreak decides whether a request for a product already at the cap is
// still inserted. The business rule here is unconfirmed: the legacy system
// allowed the insert whenever any existing threshold shared the requested
// quantity, and product owners have not signed off on whether that was
// intended. Both policies are kept as named values so the choice stays a
// one-line swap.
type TieBreak = reconcile.TieBreak[Fact]

// MatchQuantity permits the insert when any existing threshold for the
// product carries the same quantity. This mirrors the legacy behavior and is
// the default.
func MatchQuantity(requested Fact, current []Fact) bool {
	for _, row := range current {
		if row.Quantity == requested.Quantity {
			return true
		}
	}
	return false
}

// DropAtCap silently drops every request once the cap is reached.
func DropAtCap(requested Fact, current []Fact) bool {
	return reconcile.TieBreakDrop(requested, current)
}
