package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepo stores orders and disputes in Postgres. Dispute messages live in
// their own table keyed by dispute id.
type PGRepo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, buyer_id, item_id, store_id, status, payment_status,
	subtotal_cents, shipping_cents, tax_cents, total_cents, platform_fee_cents,
	ship_name, ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
	tracking_number, carrier, shipped_at, delivered_at, dispute_deadline, created_at, updated_at`

func (r *PGRepo) CreateOrder(ctx context.Context, o *Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		o.ID, o.OrderNumber, o.BuyerID, o.ItemID, o.StoreID, o.Status, o.PaymentStatus,
		o.SubtotalCents, o.ShippingCents, o.TaxCents, o.TotalCents, o.PlatformFeeCents,
		o.Shipping.Address.Name, o.Shipping.Address.Line1, o.Shipping.Address.Line2,
		o.Shipping.Address.City, o.Shipping.Address.Region, o.Shipping.Address.PostalCode, o.Shipping.Address.Country,
		o.Shipping.TrackingNumber, o.Shipping.Carrier, o.Shipping.ShippedAt, o.Shipping.DeliveredAt,
		o.DisputeDeadline, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (r *PGRepo) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (r *PGRepo) ActiveOrderForItem(ctx context.Context, itemID string) (*Order, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE item_id=$1 AND status <> 'CANCELLED'`, itemID)
	return scanOrder(row)
}

func (r *PGRepo) UpdateOrder(ctx context.Context, o *Order) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3,
			tracking_number=$4, carrier=$5, shipped_at=$6, delivered_at=$7,
			dispute_deadline=$8, updated_at=$9
		WHERE id=$1`,
		o.ID, o.Status, o.PaymentStatus,
		o.Shipping.TrackingNumber, o.Shipping.Carrier, o.Shipping.ShippedAt, o.Shipping.DeliveredAt,
		o.DisputeDeadline, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) DeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status='DELIVERED' AND delivered_at < $1
		ORDER BY delivered_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.ItemID, &o.StoreID, &o.Status, &o.PaymentStatus,
		&o.SubtotalCents, &o.ShippingCents, &o.TaxCents, &o.TotalCents, &o.PlatformFeeCents,
		&o.Shipping.Address.Name, &o.Shipping.Address.Line1, &o.Shipping.Address.Line2,
		&o.Shipping.Address.City, &o.Shipping.Address.Region, &o.Shipping.Address.PostalCode, &o.Shipping.Address.Country,
		&o.Shipping.TrackingNumber, &o.Shipping.Carrier, &o.Shipping.ShippedAt, &o.Shipping.DeliveredAt,
		&o.DisputeDeadline, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) CreateDispute(ctx context.Context, d *Dispute) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO disputes (id, order_id, buyer_id, status, reason, resolution, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.OrderID, d.BuyerID, d.Status, d.Reason, d.Resolution, d.CreatedAt, d.ResolvedAt,
	)
	return err
}

func (r *PGRepo) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, order_id, buyer_id, status, reason, resolution, created_at, resolved_at
		FROM disputes WHERE id=$1`, id)
	return r.scanDispute(ctx, row)
}

func (r *PGRepo) DisputeForOrder(ctx context.Context, orderID string) (*Dispute, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, order_id, buyer_id, status, reason, resolution, created_at, resolved_at
		FROM disputes WHERE order_id=$1`, orderID)
	return r.scanDispute(ctx, row)
}

func (r *PGRepo) UpdateDispute(ctx context.Context, d *Dispute) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE disputes SET status=$2, resolution=$3, resolved_at=$4 WHERE id=$1`,
		d.ID, d.Status, d.Resolution, d.ResolvedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) AddDisputeMessage(ctx context.Context, disputeID string, m DisputeMessage) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, author_id, body, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		m.ID, disputeID, m.AuthorID, m.Body, m.CreatedAt,
	)
	return err
}

func (r *PGRepo) scanDispute(ctx context.Context, row pgx.Row) (*Dispute, error) {
	var d Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.Status, &d.Reason, &d.Resolution, &d.CreatedAt, &d.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, author_id, body, created_at FROM dispute_messages
		WHERE dispute_id=$1 ORDER BY created_at`, d.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m DisputeMessage
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		d.Messages = append(d.Messages, m)
	}
	return &d, rows.Err()
}
