package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingEvent is an outbox row awaiting relay, as read by the dispatcher.
type PendingEvent struct {
	ID        uuid.UUID
	Code      string
	EntityID  string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Topic derives the Kafka topic for a pending row; see Event.Topic.
func (e PendingEvent) Topic() string {
	return Event{Code: e.Code}.Topic()
}

// Repository reads and updates dispatch state on the outbox table. Staging
// happens through Stager inside the request transaction; the repository only
// serves the relay side.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pending returns up to limit unsent events in creation order.
func (r *Repository) Pending(ctx context.Context, limit int) ([]PendingEvent, error) {
	const query = `
SELECT id, event_code, entity_id, payload, attempts, created_at
FROM outbox_events
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: select pending: %w", err)
	}
	defer rows.Close()

	var events []PendingEvent
	for rows.Next() {
		var e PendingEvent
		if err := rows.Scan(&e.ID, &e.Code, &e.EntityID, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan pending: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkSent records a successful relay.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE outbox_events SET status = 'sent', sent_at = now() WHERE id = $1
`, id); err != nil {
		return fmt.Errorf("outbox: mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a relay failure and bumps the attempt counter; the row
// stays pending so the next cycle retries it.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1
`, id, reason); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}
