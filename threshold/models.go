// Package threshold maintains discount-threshold facts. A product holds at
// most MaxPerProduct concurrent thresholds; the tie-break applied once the cap
// is reached is configurable, see TieBreak.
package threshold

import "fmt"

// MaxPerProduct caps the number of concurrent thresholds one product may
// carry.
const MaxPerProduct = 5

// Fact is one persisted discount threshold.
type Fact struct {
	ProductID       string
	ThresholdType   string
	Quantity        int
	DiscountPercent float64
	UpdatedBy       string
}

func (f Fact) FactKey() string {
	return fmt.Sprintf("%s|%s|%d", f.ProductID, f.ThresholdType, f.Quantity)
}

func (f Fact) EntityKey() string { return f.ProductID }

// UpsertRequest creates or rewrites one threshold.
type UpsertRequest struct {
	ProductID       string  `validate:"required"`
	ThresholdType   string  `validate:"required"`
	Quantity        int     `validate:"gt=0"`
	DiscountPercent float64 `validate:"gt=0,lte=100"`
	ActingUser      string
	ActingProgram   string
}

func (r UpsertRequest) Fact() Fact {
	return Fact{
		ProductID:       r.ProductID,
		ThresholdType:   r.ThresholdType,
		Quantity:        r.Quantity,
		DiscountPercent: r.DiscountPercent,
		UpdatedBy:       r.ActingUser,
	}
}

// RemoveRequest deletes one threshold. Removing a threshold that does not
// exist is a no-op.
type RemoveRequest struct {
	ProductID     string `validate:"required"`
	ThresholdType string `validate:"required"`
	Quantity      int    `validate:"gt=0"`
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
