package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"keikkaduuni/internal/domain"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wires every PostgreSQL repository around db.
func NewStore(db *sql.DB) *domain.Store {
	return &domain.Store{
		Users:         NewUserRepo(db),
		Listings:      NewListingRepo(db),
		Conversations: NewConversationRepo(db),
		Participants:  NewParticipantRepo(db),
		Messages:      NewMessageRepo(db),
		Bookings:      NewBookingRepo(db),
		Offers:        NewOfferRepo(db),
		Notifications: NewNotificationRepo(db),
	}
}

// Migrate runs idempotent DDL migrations for the marketplace chat schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               BIGSERIAL    PRIMARY KEY,
			name             VARCHAR(100) NOT NULL,
			email            VARCHAR(255) UNIQUE NOT NULL,
			hashed_password  VARCHAR(255) NOT NULL,
			photo_url        TEXT,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			title      VARCHAR(200) NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS tarpeet (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			title      VARCHAR(200) NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id         BIGSERIAL    PRIMARY KEY,
			service_id BIGINT       REFERENCES services(id),
			tarve_id   BIGINT       REFERENCES tarpeet(id),
			pair_key   TEXT         UNIQUE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			CHECK (service_id IS NULL OR tarve_id IS NULL)
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id         BIGINT       NOT NULL REFERENCES users(id),
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id),
			last_seen_at    TIMESTAMPTZ,
			deleted         BOOLEAN      NOT NULL DEFAULT FALSE,
			joined_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, conversation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL    PRIMARY KEY,
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id),
			sender_id       BIGINT       NOT NULL REFERENCES users(id),
			content         TEXT         NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS message_attachments (
			message_id BIGINT  NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			position   INT     NOT NULL,
			url        TEXT    NOT NULL,
			PRIMARY KEY (message_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id                BIGSERIAL    PRIMARY KEY,
			service_id        BIGINT       NOT NULL REFERENCES services(id),
			customer_id       BIGINT       NOT NULL REFERENCES users(id),
			message           TEXT         NOT NULL DEFAULT '',
			status            VARCHAR(20)  NOT NULL DEFAULT 'pending',
			is_read           BOOLEAN      NOT NULL DEFAULT FALSE,
			payment_completed BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS offers (
			id          BIGSERIAL    PRIMARY KEY,
			tarve_id    BIGINT       NOT NULL REFERENCES tarpeet(id),
			provider_id BIGINT       NOT NULL REFERENCES users(id),
			message     TEXT         NOT NULL DEFAULT '',
			price_cents BIGINT       NOT NULL DEFAULT 0,
			status      VARCHAR(20)  NOT NULL DEFAULT 'pending',
			is_read     BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			type       VARCHAR(50)  NOT NULL,
			message    TEXT         NOT NULL,
			link       TEXT         NOT NULL DEFAULT '',
			is_read    BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			dedupe_key TEXT         UNIQUE
		)`,
		`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS dedupe_key TEXT UNIQUE`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_conv ON conversation_participants(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service ON bookings(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_provider ON offers(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_tarve ON offers(tarve_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
