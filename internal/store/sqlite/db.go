package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"keikkaduuni/internal/domain"
)

// Open opens a SQLite database file. Foreign keys and a busy timeout are set
// per connection through the DSN, and the pool is limited to one connection
// so writers serialize instead of failing with SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// NewStore wires every SQLite repository around db.
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

// now is the store clock. SQLite's CURRENT_TIMESTAMP only has second
// resolution, which is too coarse to order messages against read pointers.
func now() time.Time {
	return time.Now().UTC()
}

// Migrate runs idempotent DDL for the marketplace chat schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			photo_url TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			title VARCHAR(200) NOT NULL,
			created_at DATETIME NOT NULL,
			dedupe_key TEXT UNIQUE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS tarpeet (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			title VARCHAR(200) NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			service_id INTEGER DEFAULT NULL,
			tarve_id INTEGER DEFAULT NULL,
			pair_key TEXT DEFAULT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (service_id IS NULL OR tarve_id IS NULL),
			FOREIGN KEY (service_id) REFERENCES services(id),
			FOREIGN KEY (tarve_id) REFERENCES tarpeet(id)
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id INTEGER NOT NULL,
			conversation_id INTEGER NOT NULL,
			last_seen_at DATETIME DEFAULT NULL,
			deleted BOOLEAN NOT NULL DEFAULT 0,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, conversation_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_attachments (
			message_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (message_id, position),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY,
			service_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			is_read BOOLEAN NOT NULL DEFAULT 0,
			payment_completed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (service_id) REFERENCES services(id),
			FOREIGN KEY (customer_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS offers (
			id INTEGER PRIMARY KEY,
			tarve_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (tarve_id) REFERENCES tarpeet(id),
			FOREIGN KEY (provider_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type VARCHAR(50) NOT NULL,
			message TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_conv ON conversation_participants(conversation_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service ON bookings(service_id);`,
		`CREATE INDEX IF NOT EXISTS idx_offers_provider ON offers(provider_id);`,
		`CREATE INDEX IF NOT EXISTS idx_offers_tarve ON offers(tarve_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func placeholders(n int) string {
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}
