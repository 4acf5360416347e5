package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"productmaster/reconcile"
)

// Stager buffers events during request processing and flushes them in one
// batch at the end, inside the transaction that applies the data change. A
// failed flush therefore rolls back the data change as well; no event is ever
// visible without its corresponding committed row, and vice versa.
type Stager struct {
	program   string
	user      string
	now       func() time.Time
	events    []Event
	summaries map[string]struct{}
}

// NewStager creates a stager bound to the acting program and user of one
// request.
func NewStager(program, user string) *Stager {
	return &Stager{
		program:   program,
		user:      user,
		now:       time.Now,
		summaries: make(map[string]struct{}),
	}
}

// Fact stages one fact-level event.
func (s *Stager) Fact(code, entityType, entityID string, op Operation, payload map[string]any) {
	s.events = append(s.events, Event{
		ID:         uuid.New(),
		Code:       code,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Program:    s.program,
		User:       s.user,
		Payload:    payload,
		CreatedAt:  s.now().UTC(),
	})
}

// Summary stages one entity-summary event, deduplicated so any number of
// fact-level changes to the same entity within one request yields exactly one
// summary per entity.
func (s *Stager) Summary(entityType, entityID string) {
	key := entityType + "|" + entityID
	if _, ok := s.summaries[key]; ok {
		return
	}
	s.summaries[key] = struct{}{}
	s.events = append(s.events, Event{
		ID:         uuid.New(),
		Code:       CodeProductSummary,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  OpUpdate,
		Program:    s.program,
		User:       s.user,
		CreatedAt:  s.now().UTC(),
	})
}

// Events returns the buffered events in staging order.
func (s *Stager) Events() []Event { return s.events }

// Len returns the number of buffered events.
func (s *Stager) Len() int { return len(s.events) }

// Flush persists every buffered event inside tx. An empty buffer writes
// nothing. The buffer is cleared only on success; the enclosing transaction
// is expected to roll back on failure.
func (s *Stager) Flush(ctx context.Context, tx pgx.Tx) error {
	if len(s.events) == 0 {
		return nil
	}

	const insertSQL = `
INSERT INTO outbox_events (id, event_code, entity_type, entity_id, operation, program_name, acting_user, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

	batch := &pgx.Batch{}
	for _, e := range s.events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("outbox: marshal payload for %s: %w", e.ID, err)
		}
		batch.Queue(insertSQL, e.ID, e.Code, e.EntityType, e.EntityID, string(e.Operation), e.Program, e.User, payload, e.CreatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("outbox: flush event %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("outbox: close flush batch: %w", err)
	}

	s.events = nil
	s.summaries = make(map[string]struct{})
	return nil
}

// StageChangeSet stages one fact-level event per row in the set plus a single
// summary event per owning entity. Payload fields come from the supplied
// function; an empty set stages nothing.
func StageChangeSet[F reconcile.Keyed](s *Stager, code, entityType string, set reconcile.ChangeSet[F], payload func(F) map[string]any) {
	stage := func(rows []F, op Operation) {
		for _, row := range rows {
			var p map[string]any
			if payload != nil {
				p = payload(row)
			}
			s.Fact(code, entityType, row.EntityKey(), op, p)
		}
	}
	stage(set.Inserts, OpAdd)
	stage(set.Updates, OpUpdate)
	stage(set.Deletes, OpDelete)

	for _, entityID := range set.EntityKeys() {
		s.Summary(entityType, entityID)
	}
}
