package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangeFeed reads tenant_item_changes in seq order after a per-consumer
// checkpoint. Records stay readable until the checkpoint moves past them.
type ChangeFeed struct {
	db *pgxpool.Pool
}

func NewChangeFeed(db *pgxpool.Pool) *ChangeFeed {
	return &ChangeFeed{db: db}
}

func (f *ChangeFeed) ReadBatch(ctx context.Context, consumer string, limit int) ([]domain.ChangeRecord, error) {
	rows, err := f.db.Query(ctx,
		`SELECT c.seq, c.event_kind, c.pk, c.sk, c.old_image, c.new_image, c.committed_at
		 FROM tenant_item_changes c
		 WHERE c.seq > COALESCE((SELECT last_seq FROM stream_checkpoints WHERE consumer = $1), 0)
		 ORDER BY c.seq
		 LIMIT $2`,
		consumer, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read change batch: %w", err)
	}
	defer rows.Close()

	var records []domain.ChangeRecord
	for rows.Next() {
		var (
			rec      domain.ChangeRecord
			kind     string
			oldImage []byte
			newImage []byte
		)
		if err := rows.Scan(&rec.Seq, &kind, &rec.PartitionKey, &rec.SortKey, &oldImage, &newImage, &rec.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		rec.Kind = domain.ChangeKind(kind)
		rec.OldImage = oldImage
		rec.NewImage = newImage
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("change batch rows: %w", err)
	}
	return records, nil
}

// Checkpoint records seq as processed. It never moves a checkpoint backwards.
func (f *ChangeFeed) Checkpoint(ctx context.Context, consumer string, seq int64) error {
	_, err := f.db.Exec(ctx,
		`INSERT INTO stream_checkpoints (consumer, last_seq, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (consumer) DO UPDATE
		 SET last_seq = GREATEST(stream_checkpoints.last_seq, EXCLUDED.last_seq), updated_at = now()`,
		consumer, seq,
	)
	if err != nil {
		return fmt.Errorf("checkpoint %s at %d: %w", consumer, seq, err)
	}
	return nil
}
