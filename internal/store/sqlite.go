package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/pulsechat/pulse/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/pulse.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/pulse.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		avatar_url TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		chat_name TEXT NOT NULL,
		is_group INTEGER DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_members (
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		is_admin INTEGER DEFAULT 0,
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT DEFAULT 'text',
		sent_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS labels (
		id TEXT PRIMARY KEY,
		label_name TEXT UNIQUE NOT NULL,
		color TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chat_labels (
		chat_id TEXT NOT NULL,
		label_id TEXT NOT NULL,
		PRIMARY KEY (chat_id, label_id)
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email);
	CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_sent ON messages(chat_id, sent_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user profile.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash, avatarURL string) (*models.User, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, email, password_hash, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, name, email, passwordHash, avatarURL, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, uuid.MustParse(id))
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles WHERE email = ?
	`, email))
}

// SearchUsers finds users whose name matches the query, excluding the caller.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles
		WHERE name LIKE ? AND id != ?
		ORDER BY name
		LIMIT ?
	`, "%"+query+"%", exclude.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		err := rows.Scan(
			&idStr,
			&user.Name,
			&user.Email,
			&user.PasswordHash,
			&user.AvatarURL,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		user.ID = uuid.MustParse(idStr)
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateChat creates a chat and its initial membership in one transaction.
func (s *SQLiteStore) CreateChat(ctx context.Context, name string, isGroup bool, createdBy uuid.UUID, members []uuid.UUID) (*models.Chat, error) {
	id := uuid.New().String()
	now := time.Now()

	isGroupInt := 0
	if isGroup {
		isGroupInt = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, chat_name, is_group, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, isGroupInt, createdBy.String(), now)
	if err != nil {
		return nil, err
	}

	for _, member := range members {
		isAdmin := 0
		if member == createdBy {
			isAdmin = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_members (chat_id, user_id, is_admin, joined_at)
			VALUES (?, ?, ?, ?)
		`, id, member.String(), isAdmin, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetChat(ctx, uuid.MustParse(id))
}

// GetChat retrieves a chat by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var idStr, createdByStr string
	var isGroupInt int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, chat_name, is_group, created_by, created_at
		FROM chats WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&chat.Name,
		&isGroupInt,
		&createdByStr,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	chat.ID = uuid.MustParse(idStr)
	chat.IsGroup = isGroupInt == 1
	chat.CreatedBy = uuid.MustParse(createdByStr)
	return chat, nil
}

// ListUserChats retrieves all chats the user belongs to, newest activity
// first, with the last message and attached labels for the sidebar.
func (s *SQLiteStore) ListUserChats(ctx context.Context, userID uuid.UUID) ([]models.ChatPreview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chat_name, c.is_group,
			COALESCE((SELECT content FROM messages WHERE chat_id = c.id ORDER BY sent_at DESC LIMIT 1), ''),
			COALESCE((SELECT sent_at FROM messages WHERE chat_id = c.id ORDER BY sent_at DESC LIMIT 1), 0)
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []models.ChatPreview
	for rows.Next() {
		var p models.ChatPreview
		var idStr string
		var isGroupInt int
		if err := rows.Scan(&idStr, &p.Name, &isGroupInt, &p.LastMessage, &p.LastMessageTime); err != nil {
			return nil, err
		}
		p.ID = uuid.MustParse(idStr)
		p.IsGroup = isGroupInt == 1
		p.Labels = []string{}
		previews = append(previews, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range previews {
		labels, err := s.chatLabels(ctx, previews[i].ID)
		if err != nil {
			return nil, err
		}
		previews[i].Labels = labels
	}

	return previews, nil
}

func (s *SQLiteStore) chatLabels(ctx context.Context, chatID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.label_name FROM labels l
		JOIN chat_labels cl ON cl.label_id = l.id
		WHERE cl.chat_id = ?
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		labels = append(labels, name)
	}
	return labels, rows.Err()
}

// AddChatMembers adds users to a chat. Existing memberships are no-ops.
func (s *SQLiteStore) AddChatMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	now := time.Now()
	for _, userID := range userIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_members (chat_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, chatID.String(), userID.String(), now)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListChatMembers retrieves the member profiles of a chat.
func (s *SQLiteStore) ListChatMembers(ctx context.Context, chatID uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.email, p.password_hash, p.avatar_url, p.created_at, p.updated_at
		FROM profiles p
		JOIN chat_members m ON m.user_id = p.id
		WHERE m.chat_id = ?
	`, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		err := rows.Scan(
			&idStr,
			&user.Name,
			&user.Email,
			&user.PasswordHash,
			&user.AvatarURL,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		user.ID = uuid.MustParse(idStr)
		users = append(users, user)
	}
	return users, rows.Err()
}

// IsChatMember reports whether the user belongs to the chat.
func (s *SQLiteStore) IsChatMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?
	`, chatID.String(), userID.String()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertMessage persists a message, assigning its ID and timestamp, and fills
// the denormalized sender fields from the profile.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.SentAt == 0 {
		msg.SentAt = time.Now().UnixMilli()
	}
	if msg.Type == "" {
		msg.Type = "text"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, type, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Type, msg.SentAt)
	if err != nil {
		return err
	}

	if senderID, err := uuid.Parse(msg.SenderID); err == nil {
		if sender, err := s.GetUserByID(ctx, senderID); err == nil && sender != nil {
			msg.SenderName = sender.Name
			msg.SenderAvatar = sender.AvatarURL
		}
	}

	return nil
}

// ListChatMessages retrieves messages from a chat in ascending sent_at order.
// A non-zero before returns only messages strictly older than it.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.type, m.sent_at,
			COALESCE(p.name, ''), COALESCE(p.avatar_url, '')
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.sender_id
		WHERE m.chat_id = ?`
	args := []interface{}{chatID}

	if before > 0 {
		query += ` AND m.sent_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY m.sent_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderID,
			&msg.Content,
			&msg.Type,
			&msg.SentAt,
			&msg.SenderName,
			&msg.SenderAvatar,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ascending display order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateLabel creates a label.
func (s *SQLiteStore) CreateLabel(ctx context.Context, name, color string) (*models.Label, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labels (id, label_name, color) VALUES (?, ?, ?)
	`, id.String(), name, color)
	if err != nil {
		return nil, err
	}
	return &models.Label{ID: id, Name: name, Color: color}, nil
}

// ListLabels retrieves all labels.
func (s *SQLiteStore) ListLabels(ctx context.Context) ([]models.Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label_name, color FROM labels ORDER BY label_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var label models.Label
		var idStr string
		if err := rows.Scan(&idStr, &label.Name, &label.Color); err != nil {
			return nil, err
		}
		label.ID = uuid.MustParse(idStr)
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// AddLabelToChat attaches a label to a chat. Idempotent.
func (s *SQLiteStore) AddLabelToChat(ctx context.Context, chatID, labelID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_labels (chat_id, label_id) VALUES (?, ?)
	`, chatID.String(), labelID.String())
	return err
}
