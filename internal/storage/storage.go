package storage

import (
	"context"
	"time"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
)

type Storage interface {
	SessionStorage
	AnalyticsStorage
	Close() error
}

// SessionStorage persists per-conversation state under the conversation
// identifier's store key: the remote dialogue handle plus the sets of file
// handles attached to the dialogue over its lifetime.
type SessionStorage interface {
	// GetDialogue returns the stored dialogue handle, or "" when absent.
	GetDialogue(ctx context.Context, key string) (string, error)
	SaveDialogue(ctx context.Context, key, dialogueID string) error
	DeleteDialogue(ctx context.Context, key string) error

	AddImage(ctx context.Context, key, fileID string) error
	ListImages(ctx context.Context, key string) ([]string, error)
	ClearImages(ctx context.Context, key string) error

	AddDocument(ctx context.Context, key string, doc models.DocumentRef) error
	ListDocuments(ctx context.Context, key string) ([]models.DocumentRef, error)
	ClearDocuments(ctx context.Context, key string) error
}

// AnalyticsStorage is the append-only token-usage log.
type AnalyticsStorage interface {
	RecordUsage(ctx context.Context, rec models.UsageRecord) error
	UsageByDate(ctx context.Context, date time.Time) ([]models.UserUsage, error)
	UserTotals(ctx context.Context) ([]models.UserUsage, error)
}
