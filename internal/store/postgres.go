package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/pulsechat/pulse/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user profile.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, passwordHash, avatarURL string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, name, email, password_hash, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, email, password_hash, avatar_url, created_at, updated_at
	`, uuid.New(), name, email, passwordHash, avatarURL).Scan(
		&user.ID,
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
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// SearchUsers finds users whose name matches the query, excluding the caller.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, password_hash, avatar_url, created_at, updated_at
		FROM profiles
		WHERE name ILIKE $1 AND id != $2
		ORDER BY name
		LIMIT $3
	`, "%"+query+"%", exclude, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
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
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateChat creates a chat and its initial membership in one transaction.
func (s *PostgresStore) CreateChat(ctx context.Context, name string, isGroup bool, createdBy uuid.UUID, members []uuid.UUID) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	chat := &models.Chat{}
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (id, chat_name, is_group, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, chat_name, is_group, created_by, created_at
	`, uuid.New(), name, isGroup, createdBy).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.CreatedBy,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, member := range members {
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id, is_admin)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, chat.ID, member, member == createdBy)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat by ID.
func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, chat_name, is_group, created_by, created_at
		FROM chats WHERE id = $1
	`, id).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.CreatedBy,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// ListUserChats retrieves the caller's chats with last-message previews.
func (s *PostgresStore) ListUserChats(ctx context.Context, userID uuid.UUID) ([]models.ChatPreview, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.chat_name, c.is_group,
			COALESCE(lm.content, ''), COALESCE(lm.sent_at, 0),
			COALESCE(array_agg(l.label_name) FILTER (WHERE l.label_name IS NOT NULL), '{}')
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		LEFT JOIN LATERAL (
			SELECT content, sent_at FROM messages
			WHERE chat_id = c.id ORDER BY sent_at DESC LIMIT 1
		) lm ON true
		LEFT JOIN chat_labels cl ON cl.chat_id = c.id
		LEFT JOIN labels l ON l.id = cl.label_id
		WHERE m.user_id = $1
		GROUP BY c.id, c.chat_name, c.is_group, lm.content, lm.sent_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []models.ChatPreview
	for rows.Next() {
		var p models.ChatPreview
		if err := rows.Scan(&p.ID, &p.Name, &p.IsGroup, &p.LastMessage, &p.LastMessageTime, &p.Labels); err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// AddChatMembers adds users to a chat. Existing memberships are no-ops.
func (s *PostgresStore) AddChatMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	for _, userID := range userIDs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, chatID, userID)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListChatMembers retrieves the member profiles of a chat.
func (s *PostgresStore) ListChatMembers(ctx context.Context, chatID uuid.UUID) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.email, p.password_hash, p.avatar_url, p.created_at, p.updated_at
		FROM profiles p
		JOIN chat_members m ON m.user_id = p.id
		WHERE m.chat_id = $1
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
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
		users = append(users, user)
	}
	return users, rows.Err()
}

// IsChatMember reports whether the user belongs to the chat.
func (s *PostgresStore) IsChatMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertMessage persists a message, assigning its ID and timestamp, and fills
// the denormalized sender fields from the profile.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.SentAt == 0 {
		msg.SentAt = time.Now().UnixMilli()
	}
	if msg.Type == "" {
		msg.Type = "text"
	}

	err := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (id, chat_id, sender_id, content, type, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING sender_id
		)
		SELECT COALESCE(p.name, ''), COALESCE(p.avatar_url, '')
		FROM inserted i
		LEFT JOIN profiles p ON p.id::text = i.sender_id
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Type, msg.SentAt).Scan(
		&msg.SenderName,
		&msg.SenderAvatar,
	)
	return err
}

// ListChatMessages retrieves messages from a chat in ascending sent_at order.
// A non-zero before returns only messages strictly older than it.
func (s *PostgresStore) ListChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.type, m.sent_at,
			COALESCE(p.name, ''), COALESCE(p.avatar_url, '')
		FROM messages m
		LEFT JOIN profiles p ON p.id::text = m.sender_id
		WHERE m.chat_id = $1`
	args := []interface{}{chatID}

	if before > 0 {
		query += ` AND m.sent_at < $2 ORDER BY m.sent_at DESC LIMIT $3`
		args = append(args, before, limit)
	} else {
		query += ` ORDER BY m.sent_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateLabel creates a label.
func (s *PostgresStore) CreateLabel(ctx context.Context, name, color string) (*models.Label, error) {
	label := &models.Label{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO labels (id, label_name, color)
		VALUES ($1, $2, $3)
		RETURNING id, label_name, color
	`, uuid.New(), name, color).Scan(&label.ID, &label.Name, &label.Color)
	if err != nil {
		return nil, err
	}
	return label, nil
}

// ListLabels retrieves all labels.
func (s *PostgresStore) ListLabels(ctx context.Context) ([]models.Label, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, label_name, color FROM labels ORDER BY label_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var label models.Label
		if err := rows.Scan(&label.ID, &label.Name, &label.Color); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// AddLabelToChat attaches a label to a chat. Idempotent.
func (s *PostgresStore) AddLabelToChat(ctx context.Context, chatID, labelID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_labels (chat_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, chatID, labelID)
	return err
}
