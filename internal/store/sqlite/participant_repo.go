package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keikkaduuni/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) Get(ctx context.Context, conversationID, userID int64) (*domain.ConversationParticipant, error) {
	p := &domain.ConversationParticipant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, conversation_id, last_seen_at, deleted, joined_at
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&p.UserID, &p.ConversationID, &p.LastSeenAt, &p.Deleted, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("participant %d in conversation %d", userID, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepo) ListProfiles(ctx context.Context, conversationID int64) ([]*domain.ParticipantProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.user_id, cp.conversation_id, cp.last_seen_at, cp.deleted, cp.joined_at, u.name, u.photo_url
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = ?
		ORDER BY cp.joined_at ASC, cp.user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var res []*domain.ParticipantProfile
	for rows.Next() {
		p := &domain.ParticipantProfile{}
		if err := rows.Scan(
			&p.UserID,
			&p.ConversationID,
			&p.LastSeenAt,
			&p.Deleted,
			&p.JoinedAt,
			&p.Name,
			&p.PhotoURL,
		); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ParticipantRepo) MarkSeen(ctx context.Context, conversationID, userID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_seen_at = ?
		WHERE conversation_id = ? AND user_id = ? AND deleted = 0
	`, at.UTC(), conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

func (r *ParticipantRepo) SoftDelete(ctx context.Context, conversationID, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET deleted = 1
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("soft delete participant: %w", err)
	}
	return res.RowsAffected()
}
