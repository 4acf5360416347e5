package claim

import "fmt"

// ChangeKind is the decided outcome of comparing a request against the stored
// claim. It is computed exactly once, before any write, so downstream code
// switches over it instead of re-deriving the decision from nullable fields.
type ChangeKind int

const (
	NoChange ChangeKind = iota
	Create
	Modify
)

func (k ChangeKind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case Create:
		return "create"
	case Modify:
		return "modify"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change pairs the decision with the fact to write. Fact is meaningful for
// Create and Modify only.
type Change struct {
	Kind ChangeKind
	Fact Fact
}

// Classify decides what an apply request means against the stored claim, if
// any.
func Classify(current *Fact, requested Fact) Change {
	if current == nil {
		return Change{Kind: Create, Fact: requested}
	}
	if current.Text == requested.Text {
		return Change{Kind: NoChange}
	}
	return Change{Kind: Modify, Fact: requested}
}
