package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veloura/marketplace/internal/orders"
)

// PGStore keeps item state in Postgres. The reservation predicate rides in a
// single conditional UPDATE so the row lock is the atomicity boundary; no
// SELECT-then-UPDATE window exists.
type PGStore struct {
	DB  *pgxpool.Pool
	Now func() time.Time // defaults to time.Now
}

func (s *PGStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PGStore) Add(ctx context.Context, it *orders.Item) error {
	status := it.Status
	if status == "" {
		status = orders.ItemAvailable
	}
	t := s.now()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO items (id, store_id, title, price_cents, status, reserved_by, reserved_until, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6,$6)`,
		it.ID, it.StoreID, it.Title, it.PriceCents, status, t,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, itemID string) (*orders.Item, error) {
	var it orders.Item
	var reservedBy *string
	err := s.DB.QueryRow(ctx, `
		SELECT id, store_id, title, price_cents, status, reserved_by, reserved_until, created_at, updated_at
		FROM items WHERE id=$1`, itemID,
	).Scan(&it.ID, &it.StoreID, &it.Title, &it.PriceCents, &it.Status, &reservedBy, &it.ReservedUntil, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reservedBy != nil {
		it.ReservedBy = *reservedBy
	}
	return &it, nil
}

func (s *PGStore) Reserve(ctx context.Context, itemID, buyerID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	// Two attempts: the second covers the race where classification saw a
	// reservation that was released before we re-ran the update.
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()
		ct, err := s.DB.Exec(ctx, `
			UPDATE items
			SET status='RESERVED', reserved_by=$2, reserved_until=$3, updated_at=$4
			WHERE id=$1 AND (
				status='AVAILABLE'
				OR (status='RESERVED' AND (reserved_by=$2 OR reserved_until < $4))
			)`,
			itemID, buyerID, now.Add(ttl), now,
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 1 {
			return nil
		}

		it, err := s.Get(ctx, itemID)
		if err != nil {
			return err
		}
		switch it.Status {
		case orders.ItemSold:
			return orders.ErrAlreadySold
		case orders.ItemWithdrawn:
			return orders.ErrItemWithdrawn
		case orders.ItemReserved:
			return orders.ErrReservedByOther
		}
		// AVAILABLE again: the holder released between the update and the
		// classify read. Loop and retry.
	}
	return orders.ErrReservedByOther
}

func (s *PGStore) Release(ctx context.Context, itemID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='AVAILABLE', reserved_by=NULL, reserved_until=NULL, updated_at=$2
		WHERE id=$1 AND status IN ('RESERVED','SOLD')`,
		itemID, s.now(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// No-op unless the item doesn't exist at all.
	_, err = s.Get(ctx, itemID)
	return err
}

func (s *PGStore) MarkSold(ctx context.Context, itemID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='SOLD', reserved_by=NULL, reserved_until=NULL, updated_at=$2
		WHERE id=$1`,
		itemID, s.now(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (s *PGStore) Withdraw(ctx context.Context, itemID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='WITHDRAWN', reserved_by=NULL, reserved_until=NULL, updated_at=$2
		WHERE id=$1 AND status <> 'SOLD'`,
		itemID, s.now(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	it, err := s.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if it.Status == orders.ItemSold {
		return orders.ErrAlreadySold
	}
	return nil
}

func (s *PGStore) SweepExpired(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE items SET status='AVAILABLE', reserved_by=NULL, reserved_until=NULL, updated_at=$1
		WHERE status='RESERVED' AND reserved_until < $1
		RETURNING id`, s.now(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swept []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		swept = append(swept, id)
	}
	return swept, rows.Err()
}
