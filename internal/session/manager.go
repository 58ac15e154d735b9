package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/conversation"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/storage"
)

// DialogueCreator opens a new remote multi-turn dialogue context.
type DialogueCreator interface {
	CreateDialogue(ctx context.Context) (string, error)
}

// FileDeleter removes an uploaded file from remote storage.
type FileDeleter interface {
	DeleteFile(ctx context.Context, fileID string) error
}

// Manager owns per-conversation session state: the remote dialogue handle
// and the file handles attached to it. A dialogue handle, once created for
// an identifier, is reused until Reset — that reuse is the bot's memory.
//
// Storage failures never propagate: a failed read means "no session", so a
// lost backing store is indistinguishable from a universal reset.
type Manager struct {
	store   storage.SessionStorage
	creator DialogueCreator
	files   FileDeleter
	logger  *zap.Logger

	// resetMu keeps Reset's forget-handle and clear-sets steps atomic
	// from the caller's point of view.
	resetMu sync.Mutex
}

func NewManager(store storage.SessionStorage, creator DialogueCreator, files FileDeleter, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		creator: creator,
		files:   files,
		logger:  logger,
	}
}

// GetOrCreateDialogue returns the dialogue handle for the identifier,
// creating a remote dialogue on first use. Lookup-then-create is not locked:
// two concurrent first messages for one identifier may both create a
// dialogue, the last write wins and the loser is orphaned remotely. A single
// conversational partner does not send two simultaneous first messages, so
// the race is accepted.
func (m *Manager) GetOrCreateDialogue(ctx context.Context, id conversation.ID) (string, error) {
	key := id.Key()

	dialogueID, err := m.store.GetDialogue(ctx, key)
	if err != nil {
		m.logger.Error("Failed to read dialogue handle, starting fresh",
			zap.Error(err),
			zap.String("conversation", key))
		dialogueID = ""
	}
	if dialogueID != "" {
		return dialogueID, nil
	}

	dialogueID, err = m.creator.CreateDialogue(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create dialogue: %w", err)
	}

	if err := m.store.SaveDialogue(ctx, key, dialogueID); err != nil {
		// The handle still serves this request; only continuity is lost.
		m.logger.Error("Failed to persist dialogue handle",
			zap.Error(err),
			zap.String("conversation", key),
			zap.String("dialogue_id", dialogueID))
	}

	m.logger.Info("Created dialogue",
		zap.String("conversation", key),
		zap.String("dialogue_id", dialogueID))
	return dialogueID, nil
}

// DialogueID returns the stored dialogue handle, or "" when the
// conversation has not started. It never creates one.
func (m *Manager) DialogueID(ctx context.Context, id conversation.ID) string {
	dialogueID, err := m.store.GetDialogue(ctx, id.Key())
	if err != nil {
		m.logger.Error("Failed to read dialogue handle",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		return ""
	}
	return dialogueID
}

// RecordImage remembers an uploaded image handle for cleanup on reset.
func (m *Manager) RecordImage(ctx context.Context, id conversation.ID, fileID string) {
	if err := m.store.AddImage(ctx, id.Key(), fileID); err != nil {
		m.logger.Error("Failed to record image handle",
			zap.Error(err),
			zap.String("conversation", id.Key()),
			zap.String("file_id", fileID))
	}
}

// RecordDocument remembers an uploaded document handle for cleanup on reset.
func (m *Manager) RecordDocument(ctx context.Context, id conversation.ID, fileID, filename string) {
	doc := models.DocumentRef{FileID: fileID, Filename: filename}
	if err := m.store.AddDocument(ctx, id.Key(), doc); err != nil {
		m.logger.Error("Failed to record document handle",
			zap.Error(err),
			zap.String("conversation", id.Key()),
			zap.String("file_id", fileID))
	}
}

func (m *Manager) Images(ctx context.Context, id conversation.ID) []string {
	fileIDs, err := m.store.ListImages(ctx, id.Key())
	if err != nil {
		m.logger.Error("Failed to list image handles",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		return nil
	}
	return fileIDs
}

func (m *Manager) Documents(ctx context.Context, id conversation.ID) []models.DocumentRef {
	docs, err := m.store.ListDocuments(ctx, id.Key())
	if err != nil {
		m.logger.Error("Failed to list document handles",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		return nil
	}
	return docs
}

// Reset tears the session down: best-effort deletion of every recorded file
// from remote storage (individual failures are logged and do not stop the
// fan-out), then the local sets are cleared and the dialogue handle is
// forgotten together. The next interaction starts a fresh dialogue.
func (m *Manager) Reset(ctx context.Context, id conversation.ID) error {
	key := id.Key()

	deleted, failed := 0, 0
	for _, fileID := range m.Images(ctx, id) {
		if err := m.files.DeleteFile(ctx, fileID); err != nil {
			failed++
			m.logger.Warn("Failed to delete image from remote storage",
				zap.Error(err),
				zap.String("conversation", key),
				zap.String("file_id", fileID))
			continue
		}
		deleted++
	}
	for _, doc := range m.Documents(ctx, id) {
		if err := m.files.DeleteFile(ctx, doc.FileID); err != nil {
			failed++
			m.logger.Warn("Failed to delete document from remote storage",
				zap.Error(err),
				zap.String("conversation", key),
				zap.String("file_id", doc.FileID),
				zap.String("filename", doc.Filename))
			continue
		}
		deleted++
	}

	m.resetMu.Lock()
	defer m.resetMu.Unlock()

	var firstErr error
	if err := m.store.ClearImages(ctx, key); err != nil {
		firstErr = err
		m.logger.Error("Failed to clear image handles", zap.Error(err), zap.String("conversation", key))
	}
	if err := m.store.ClearDocuments(ctx, key); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Error("Failed to clear document handles", zap.Error(err), zap.String("conversation", key))
	}
	if err := m.store.DeleteDialogue(ctx, key); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Error("Failed to forget dialogue handle", zap.Error(err), zap.String("conversation", key))
	}

	m.logger.Info("Session reset",
		zap.String("conversation", key),
		zap.Int("files_deleted", deleted),
		zap.Int("files_failed", failed))

	if firstErr != nil {
		return fmt.Errorf("failed to clear session state: %w", firstErr)
	}
	return nil
}
