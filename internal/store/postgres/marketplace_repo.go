package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keikkaduuni/internal/domain"
)

type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

var _ domain.BookingRepository = (*BookingRepo)(nil)

const bookingSelect = `
	SELECT b.id, b.service_id, b.customer_id, s.user_id, b.message, b.status,
	       b.is_read, b.payment_completed, b.created_at, b.updated_at
	FROM bookings b
	JOIN services s ON s.id = b.service_id
`

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.CustomerID, &b.OwnerID, &b.Message, &b.Status,
		&b.IsRead, &b.PaymentCompleted, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if b.Status == "" {
		b.Status = domain.StatusPending
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO bookings (service_id, customer_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, b.ServiceID, b.CustomerID, b.Message, b.Status).Scan(&id); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("booking %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *BookingRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, bookingSelect+`
		WHERE b.customer_id = $1 OR s.user_id = $1
		ORDER BY b.created_at DESC, b.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var res []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id int64, status domain.RequestStatus) error {
	return execOne(ctx, r.db, "booking", id,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (r *BookingRepo) MarkRead(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "booking", id, `UPDATE bookings SET is_read = TRUE WHERE id = $1`, id)
}

func (r *BookingRepo) MarkPaid(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET payment_completed = TRUE, updated_at = NOW()
		WHERE id = $1 AND payment_completed = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark booking paid: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *BookingRepo) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "booking", id, `DELETE FROM bookings WHERE id = $1`, id)
}

type OfferRepo struct {
	db *sql.DB
}

func NewOfferRepo(db *sql.DB) *OfferRepo {
	return &OfferRepo{db: db}
}

var _ domain.OfferRepository = (*OfferRepo)(nil)

const offerSelect = `
	SELECT o.id, o.tarve_id, o.provider_id, t.user_id, o.message, o.price_cents,
	       o.status, o.is_read, o.created_at, o.updated_at
	FROM offers o
	JOIN tarpeet t ON t.id = o.tarve_id
`

func scanOffer(row rowScanner) (*domain.Offer, error) {
	o := &domain.Offer{}
	err := row.Scan(
		&o.ID, &o.TarveID, &o.ProviderID, &o.OwnerID, &o.Message, &o.Price,
		&o.Status, &o.IsRead, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func (r *OfferRepo) Create(ctx context.Context, o *domain.Offer) error {
	if o.Status == "" {
		o.Status = domain.StatusPending
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO offers (tarve_id, provider_id, message, price_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id
	`, o.TarveID, o.ProviderID, o.Message, o.Price, o.Status).Scan(&id); err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*o = *created
	return nil
}

func (r *OfferRepo) GetByID(ctx context.Context, id int64) (*domain.Offer, error) {
	o, err := scanOffer(r.db.QueryRowContext(ctx, offerSelect+` WHERE o.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("offer %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (r *OfferRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Offer, error) {
	rows, err := r.db.QueryContext(ctx, offerSelect+`
		WHERE o.provider_id = $1 OR t.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var res []*domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r *OfferRepo) UpdateStatus(ctx context.Context, id int64, status domain.RequestStatus) error {
	return execOne(ctx, r.db, "offer", id,
		`UPDATE offers SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (r *OfferRepo) MarkRead(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "offer", id, `UPDATE offers SET is_read = TRUE WHERE id = $1`, id)
}

func (r *OfferRepo) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "offer", id, `DELETE FROM offers WHERE id = $1`, id)
}

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, message, link, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, n.UserID, n.Type, n.Message, n.Link).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepo) CreateOnce(ctx context.Context, n *domain.Notification) (bool, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, message, link, created_at, dedupe_key)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING id, created_at
	`, n.UserID, n.Type, n.Message, n.Link, n.DedupeKey).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return true, nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notification read: %w", err)
	}
	return res.RowsAffected()
}

func execOne(ctx context.Context, db *sql.DB, what string, id int64, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("%s %d", what, id)
	}
	return nil
}
