// Package outbox stages legacy notification events in the same transaction as
// the data change they describe and relays committed events to Kafka. Events
// are delivered at least once; downstream consumers deduplicate by event id.
package outbox

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation mirrors the change-set bucket that produced an event.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Event codes for the fixed catalog of legacy notifications.
const (
	CodeChannelTimeline   = "CHANNEL_TIMELINE"
	CodeDiscountThreshold = "DISCOUNT_THRESHOLD"
	CodeExtendedAttribute = "EXTENDED_ATTRIBUTE"
	CodeMarketingClaim    = "MARKETING_CLAIM"
	CodeProductSummary    = "PRODUCT_SUMMARY"
)

// Event is one durable notification row. It records what changed, who changed
// it, and under which program the change ran.
type Event struct {
	ID         uuid.UUID
	Code       string
	EntityType string
	EntityID   string
	Operation  Operation
	Program    string
	User       string
	Payload    map[string]any
	CreatedAt  time.Time
}

// Topic derives the Kafka topic an event is relayed to from its code.
func (e Event) Topic() string {
	return "legacy." + strings.ToLower(e.Code)
}
