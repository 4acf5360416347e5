// Package claim maintains ecommerce marketing claims on products. A claim is
// a flag-style fact: a product either carries a claim code with its display
// text or it does not; there is no validity window.
package claim

// Fact is one persisted marketing claim.
type Fact struct {
	ProductID string
	ClaimCode string
	Text      string
	UpdatedBy string
}

func (f Fact) FactKey() string   { return f.ProductID + "|" + f.ClaimCode }
func (f Fact) EntityKey() string { return f.ProductID }

// ApplyRequest puts a claim on a product or rewrites its display text.
type ApplyRequest struct {
	ProductID     string `validate:"required"`
	ClaimCode     string `validate:"required"`
	Text          string `validate:"required"`
	ActingUser    string
	ActingProgram string
}

// RevokeRequest removes a claim. Revoking a claim the product does not carry
// is a no-op.
type RevokeRequest struct {
	ProductID     string `validate:"required"`
	ClaimCode     string `validate:"required"`
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
