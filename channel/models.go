// Package channel maintains the availability timelines of a product per
// sales channel and fulfillment channel. Each row is a validity window; the
// service reconciles requested windows against persisted ones so that no two
// rows of the same dimension overlap and at most one is active on any day.
package channel

import "time"

// Key identifies one timeline dimension of a product.
type Key struct {
	ProductID          string
	SalesChannel       string
	FulfillmentChannel string
}

func (k Key) String() string {
	return k.ProductID + "|" + k.SalesChannel + "|" + k.FulfillmentChannel
}

// Fact is one persisted timeline row.
type Fact struct {
	Key        Key
	Effective  time.Time
	Expiration time.Time
	UpdatedBy  string
}

// FactKey includes the effective date; rows of one dimension are told apart
// by when their window starts.
func (f Fact) FactKey() string {
	return f.Key.String() + "|" + f.Effective.UTC().Format("2006-01-02")
}

func (f Fact) EntityKey() string { return f.Key.ProductID }

func (f Fact) Window() (time.Time, time.Time) { return f.Effective, f.Expiration }

func (f Fact) WithExpiration(expiration time.Time) Fact {
	f.Expiration = expiration
	return f
}

// AddRequest asks for a new availability window on one dimension. A zero
// Expiration means open-ended.
type AddRequest struct {
	ProductID          string `validate:"required"`
	SalesChannel       string `validate:"required"`
	FulfillmentChannel string `validate:"required"`
	Effective          time.Time
	Expiration         time.Time
	ActingUser         string
	ActingProgram      string
}

// Key returns the timeline dimension addressed by the request.
func (r AddRequest) Key() Key {
	return Key{ProductID: r.ProductID, SalesChannel: r.SalesChannel, FulfillmentChannel: r.FulfillmentChannel}
}

// EndRequest terminates the window currently covering or following EndDate.
type EndRequest struct {
	ProductID          string `validate:"required"`
	SalesChannel       string `validate:"required"`
	FulfillmentChannel string `validate:"required"`
	EndDate            time.Time
	ActingUser         string
	ActingProgram      string
}

// Key returns the timeline dimension addressed by the request.
func (r EndRequest) Key() Key {
	return Key{ProductID: r.ProductID, SalesChannel: r.SalesChannel, FulfillmentChannel: r.FulfillmentChannel}
}

// Result reports what one maintenance call changed.
type Result struct {
	Inserted     int64
	Updated      int64
	Deleted      int64
	EventsStaged int
}
