package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keikkaduuni/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	u.CreatedAt = now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (name, email, hashed_password, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.Name, u.Email, u.HashedPassword, u.PhotoURL, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT id, name, email, hashed_password, photo_url, created_at FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT id, name, email, hashed_password, photo_url, created_at FROM users WHERE email = ?`, email)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.HashedPassword,
		&u.PhotoURL,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

type ListingRepo struct {
	db *sql.DB
}

func NewListingRepo(db *sql.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

var _ domain.ListingRepository = (*ListingRepo)(nil)

func listingTable(kind domain.ListingKind) (string, error) {
	switch kind {
	case domain.ListingService:
		return "services", nil
	case domain.ListingTarve:
		return "tarpeet", nil
	}
	return "", domain.NewValidationError("kind", "unknown listing kind")
}

func (r *ListingRepo) Create(ctx context.Context, l *domain.Listing) error {
	table, err := listingTable(l.Kind)
	if err != nil {
		return err
	}
	l.CreatedAt = now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, title, created_at) VALUES (?, ?, ?)`,
		l.OwnerID, l.Title, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

func (r *ListingRepo) GetByID(ctx context.Context, kind domain.ListingKind, id int64) (*domain.Listing, error) {
	table, err := listingTable(kind)
	if err != nil {
		return nil, err
	}
	l := &domain.Listing{Kind: kind}
	err = r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM `+table+` WHERE id = ?`, id,
	).Scan(&l.ID, &l.OwnerID, &l.Title, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("%s %d", kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	return l, nil
}
