// Package attribute maintains extended-attribute values on products. A
// single-valued attribute holds at most one value; a multi-valued one holds an
// ordered list addressed by sequence number, capped by its definition.
package attribute

import "fmt"

// Fact is one persisted attribute value. Sequence is 1-based and dense; a
// single-valued attribute always uses sequence 1.
type Fact struct {
	ProductID   string
	AttributeID string
	Sequence    int
	Value       string
	UpdatedBy   string
}

func (f Fact) FactKey() string {
	return fmt.Sprintf("%s|%s|%d", f.ProductID, f.AttributeID, f.Sequence)
}

func (f Fact) EntityKey() string { return f.ProductID }

// SetRequest replaces the full value list of one attribute on one product.
// An empty Values list clears the attribute.
type SetRequest struct {
	ProductID     string `validate:"required"`
	AttributeID   string `validate:"required"`
	Values        []string
	ActingUser    string
	ActingProgram string
}

// Result reports what one maintenance call changed.
type Result struct {
	Inserted     int64
	Updated      int64
	Deleted      int64
	EventsStaged int
}
