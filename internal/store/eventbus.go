package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventBus is a durable at-least-once bus on the bus_events table. A claimed
// event is leased until its visibility timeout; unacked events become due again.
type EventBus struct {
	db      *pgxpool.Pool
	busName string
}

func NewEventBus(db *pgxpool.Pool, busName string) *EventBus {
	return &EventBus{db: db, busName: busName}
}

// Publish inserts each entry on its own so one bad entry does not sink the batch.
func (b *EventBus) Publish(ctx context.Context, entries ...domain.BusEntry) ([]domain.PublishOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]domain.PublishOutcome, len(entries))
	for i, e := range entries {
		id := uuid.New()
		outcomes[i].EventID = id

		if e.DetailType == "" {
			outcomes[i].Err = fmt.Errorf("entry %d: detail type is required", i)
			continue
		}
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			outcomes[i].Err = fmt.Errorf("marshal %s detail: %w", e.DetailType, err)
			continue
		}

		if _, err := b.db.Exec(ctx,
			`INSERT INTO bus_events (id, bus_name, detail_type, source, detail)
			 VALUES ($1, $2, $3, $4, $5::jsonb)`,
			id, b.busName, e.DetailType, e.Source, string(detail),
		); err != nil {
			outcomes[i].Err = fmt.Errorf("insert %s event: %w", e.DetailType, err)
		}
	}
	return outcomes, nil
}

func (b *EventBus) Claim(ctx context.Context, detailTypes []string, limit int, lease time.Duration) ([]domain.BusEvent, error) {
	rows, err := b.db.Query(ctx,
		`WITH due AS (
		     SELECT id FROM bus_events
		     WHERE bus_name = $1
		       AND detail_type = ANY($2)
		       AND delivered_at IS NULL
		       AND dead_lettered_at IS NULL
		       AND available_at <= now()
		     ORDER BY published_at
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE bus_events e
		 SET available_at = now() + ($4::bigint * interval '1 millisecond'),
		     attempts = e.attempts + 1
		 FROM due
		 WHERE e.id = due.id
		 RETURNING e.id, e.bus_name, e.detail_type, e.source, e.detail, e.attempts, e.published_at`,
		b.busName, detailTypes, limit, lease.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim events: %w", err)
	}
	defer rows.Close()

	var events []domain.BusEvent
	for rows.Next() {
		var (
			ev     domain.BusEvent
			detail []byte
		)
		if err := rows.Scan(&ev.ID, &ev.BusName, &ev.DetailType, &ev.Source, &detail, &ev.Attempts, &ev.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan claimed event: %w", err)
		}
		ev.Detail = detail
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claimed event rows: %w", err)
	}
	return events, nil
}

func (b *EventBus) Ack(ctx context.Context, id uuid.UUID) error {
	_, err := b.db.Exec(ctx,
		`UPDATE bus_events SET delivered_at = now(), last_error = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("ack event %s: %w", id, err)
	}
	return nil
}

func (b *EventBus) Retry(ctx context.Context, id uuid.UUID, delay time.Duration, lastErr string) error {
	_, err := b.db.Exec(ctx,
		`UPDATE bus_events
		 SET available_at = now() + ($2::bigint * interval '1 millisecond'), last_error = $3
		 WHERE id = $1 AND delivered_at IS NULL`,
		id, delay.Milliseconds(), lastErr,
	)
	if err != nil {
		return fmt.Errorf("schedule retry for event %s: %w", id, err)
	}
	return nil
}

func (b *EventBus) DeadLetter(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := b.db.Exec(ctx,
		`UPDATE bus_events SET dead_lettered_at = now(), last_error = $2 WHERE id = $1`,
		id, lastErr,
	)
	if err != nil {
		return fmt.Errorf("dead-letter event %s: %w", id, err)
	}
	return nil
}
