package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/pulsechat/pulse/internal/models"
)

// DataStore defines the interface for persistent storage of users, chats,
// messages and labels. Both PostgresStore and SQLiteStore implement this
// interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email, passwordHash, avatarURL string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]models.User, error)

	// Chat operations
	CreateChat(ctx context.Context, name string, isGroup bool, createdBy uuid.UUID, members []uuid.UUID) (*models.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListUserChats(ctx context.Context, userID uuid.UUID) ([]models.ChatPreview, error)
	AddChatMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error
	ListChatMembers(ctx context.Context, chatID uuid.UUID) ([]models.User, error)
	IsChatMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)

	// Message operations. InsertMessage assigns ID and SentAt and fills the
	// denormalized sender fields; the returned row is what clients render.
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error)

	// Label operations
	CreateLabel(ctx context.Context, name, color string) (*models.Label, error)
	ListLabels(ctx context.Context) ([]models.Label, error)
	AddLabelToChat(ctx context.Context, chatID, labelID uuid.UUID) error
}
