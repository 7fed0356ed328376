package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keikkaduuni/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `c.id, c.service_id, c.tarve_id, c.pair_key, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.ServiceID,
		&c.TarveID,
		&c.PairKey,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func (r *ConversationRepo) CreateWithParticipants(ctx context.Context, c *domain.Conversation, userIDs []int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (service_id, tarve_id, pair_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pair_key) DO NOTHING
	`, c.ServiceID, c.TarveID, c.PairKey, ts, ts)
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		existing, err := scanConversation(tx.QueryRowContext(ctx,
			`SELECT `+conversationColumns+` FROM conversations c WHERE c.pair_key = ?`, c.PairKey))
		if err != nil {
			return false, fmt.Errorf("load existing conversation: %w", err)
		}
		*c = *existing
		return false, tx.Commit()
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = ts
	c.UpdatedAt = ts

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, deleted, joined_at)
			VALUES (?, ?, 0, ?)
		`, uid, id, ts); err != nil {
			return false, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("conversation %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) GetByPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.pair_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("conversation %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation by pair key: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListVisibleForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ? AND cp.deleted = 0
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) ListIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT conversation_id FROM conversation_participants WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
