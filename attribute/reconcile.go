package attribute

import "productmaster/reconcile"

// reconcileValues diffs the requested value list against the stored rows by
// sequence number. A requested value at a sequence that already holds the
// same value is a no-op; a different value there is an update; sequences past
// the stored rows are inserts; stored rows past the requested list are
// deletes. Sequences therefore stay dense after every apply.
func reconcileValues(productID, attributeID, user string, values []string, current []Fact) reconcile.ChangeSet[Fact] {
	stored := make(map[int]Fact, len(current))
	for _, row := range current {
		stored[row.Sequence] = row
	}

	var set reconcile.ChangeSet[Fact]
	for i, value := range values {
		seq := i + 1
		requested := Fact{
			ProductID:   productID,
			AttributeID: attributeID,
			Sequence:    seq,
			Value:       value,
			UpdatedBy:   user,
		}
		row, ok := stored[seq]
		switch {
		case !ok:
			set.Inserts = append(set.Inserts, requested)
		case row.Value != value:
			set.Updates = append(set.Updates, requested)
		}
	}

	for _, row := range current {
		if row.Sequence > len(values) {
			row.UpdatedBy = user
			set.Deletes = append(set.Deletes, row)
		}
	}
	return set
}
