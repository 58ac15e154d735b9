package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
)

// MemoryStorage keeps all state in process memory. It backs local runs and
// tests; losing it on restart is the same trade-off as losing the backing
// store, which callers already treat as a universal reset.
type MemoryStorage struct {
	mu        sync.RWMutex
	dialogues map[string]string
	images    map[string][]string
	documents map[string][]models.DocumentRef
	usage     []models.UsageRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		dialogues: make(map[string]string),
		images:    make(map[string][]string),
		documents: make(map[string][]models.DocumentRef),
	}
}

func (s *MemoryStorage) GetDialogue(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dialogues[key], nil
}

func (s *MemoryStorage) SaveDialogue(ctx context.Context, key, dialogueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogues[key] = dialogueID
	return nil
}

func (s *MemoryStorage) DeleteDialogue(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, key)
	return nil
}

func (s *MemoryStorage) AddImage(ctx context.Context, key, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.images[key] {
		if id == fileID {
			return nil
		}
	}
	s.images[key] = append(s.images[key], fileID)
	return nil
}

func (s *MemoryStorage) ListImages(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.images[key]))
	copy(out, s.images[key])
	return out, nil
}

func (s *MemoryStorage) ClearImages(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, key)
	return nil
}

func (s *MemoryStorage) AddDocument(ctx context.Context, key string, doc models.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.documents[key] {
		if d.FileID == doc.FileID {
			return nil
		}
	}
	s.documents[key] = append(s.documents[key], doc)
	return nil
}

func (s *MemoryStorage) ListDocuments(ctx context.Context, key string) ([]models.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DocumentRef, len(s.documents[key]))
	copy(out, s.documents[key])
	return out, nil
}

func (s *MemoryStorage) ClearDocuments(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, key)
	return nil
}

func (s *MemoryStorage) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}
	s.usage = append(s.usage, rec)
	return nil
}

func (s *MemoryStorage) UsageByDate(ctx context.Context, date time.Time) ([]models.UserUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := date.Format("2006-01-02")
	return aggregateUsage(s.usage, func(rec models.UsageRecord) bool {
		return rec.Date.Format("2006-01-02") == day
	}), nil
}

func (s *MemoryStorage) UserTotals(ctx context.Context) ([]models.UserUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return aggregateUsage(s.usage, func(models.UsageRecord) bool { return true }), nil
}

func aggregateUsage(records []models.UsageRecord, match func(models.UsageRecord) bool) []models.UserUsage {
	byUser := make(map[int64]*models.UserUsage)
	for _, rec := range records {
		if !match(rec) {
			continue
		}
		u, exists := byUser[rec.UserID]
		if !exists {
			u = &models.UserUsage{UserID: rec.UserID, Username: rec.Username}
			byUser[rec.UserID] = u
		}
		u.TotalTokens += int64(rec.TokensUsed)
		u.Requests++
	}

	out := make([]models.UserUsage, 0, len(byUser))
	for _, u := range byUser {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalTokens > out[j].TotalTokens })
	return out
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
