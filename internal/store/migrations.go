package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// postgresSchema mirrors the SQLite schema for Postgres deployments.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	avatar_url TEXT DEFAULT '',
	created_at TIMESTAMPTZ DEFAULT now(),
	updated_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chats (
	id UUID PRIMARY KEY,
	chat_name TEXT NOT NULL,
	is_group BOOLEAN DEFAULT false,
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id UUID NOT NULL,
	user_id UUID NOT NULL,
	is_admin BOOLEAN DEFAULT false,
	joined_at TIMESTAMPTZ DEFAULT now(),
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	content TEXT NOT NULL,
	type TEXT DEFAULT 'text',
	sent_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS labels (
	id UUID PRIMARY KEY,
	label_name TEXT UNIQUE NOT NULL,
	color TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chat_labels (
	chat_id UUID NOT NULL,
	label_id UUID NOT NULL,
	PRIMARY KEY (chat_id, label_id)
);

CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_chat_sent ON messages(chat_id, sent_at);
`

// RunMigrations applies the schema to a Postgres database.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}
