// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT,
	display_name TEXT,
	join_code TEXT,
	last_synced_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_join_code ON users(join_code) WHERE join_code IS NOT NULL;

CREATE TABLE IF NOT EXISTS user_events (
	user_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	event_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	source TEXT NOT NULL DEFAULT 'manual' CHECK(source IN ('manual', 'google')),
	calendar_id TEXT,
	PRIMARY KEY (user_id, position),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_user_events_start ON user_events(user_id, start_time);

CREATE TABLE IF NOT EXISTS user_calendars (
	user_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	calendar_id TEXT NOT NULL,
	name TEXT NOT NULL,
	selected INTEGER NOT NULL DEFAULT 0,
	is_primary INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, position),
	UNIQUE (user_id, calendar_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS connections (
	user_id TEXT NOT NULL,
	partner_id TEXT NOT NULL,
	partner_join_code TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, partner_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_connections_partner ON connections(partner_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
