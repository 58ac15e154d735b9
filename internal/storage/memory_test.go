package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
)

func TestDialogueRoundtrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	got, err := s.GetDialogue(ctx, "user:42")
	require.NoError(t, err)
	assert.Equal(t, "", got, "absent dialogue reads as empty")

	require.NoError(t, s.SaveDialogue(ctx, "user:42", "thread_1"))
	got, err = s.GetDialogue(ctx, "user:42")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", got)

	require.NoError(t, s.DeleteDialogue(ctx, "user:42"))
	got, err = s.GetDialogue(ctx, "user:42")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestImageHandlesDeduplicateAndClear(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.AddImage(ctx, "chat:-100", "file_a"))
	require.NoError(t, s.AddImage(ctx, "chat:-100", "file_a"))
	require.NoError(t, s.AddImage(ctx, "chat:-100", "file_b"))

	images, err := s.ListImages(ctx, "chat:-100")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_a", "file_b"}, images)

	require.NoError(t, s.ClearImages(ctx, "chat:-100"))
	images, err = s.ListImages(ctx, "chat:-100")
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestDocumentHandlesKeepFilename(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	doc := models.DocumentRef{FileID: "file_a", Filename: "report.pdf"}
	require.NoError(t, s.AddDocument(ctx, "user:42", doc))
	require.NoError(t, s.AddDocument(ctx, "user:42", doc))

	docs, err := s.ListDocuments(ctx, "user:42")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report.pdf", docs[0].Filename)
}

func TestKeysAreIsolated(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.SaveDialogue(ctx, "chat:-100", "thread_1"))
	require.NoError(t, s.SaveDialogue(ctx, "chat:-100:topic:5", "thread_2"))
	require.NoError(t, s.AddImage(ctx, "chat:-100", "file_a"))

	require.NoError(t, s.DeleteDialogue(ctx, "chat:-100"))

	got, err := s.GetDialogue(ctx, "chat:-100:topic:5")
	require.NoError(t, err)
	assert.Equal(t, "thread_2", got)

	images, err := s.ListImages(ctx, "chat:-100")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_a"}, images)
}

func TestUsageAggregation(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []models.UsageRecord{
		{UserID: 1, Username: "alice", TokensUsed: 100, Date: day},
		{UserID: 1, Username: "alice", TokensUsed: 200, Date: day},
		{UserID: 2, Username: "bob", TokensUsed: 500, Date: day},
		{UserID: 1, Username: "alice", TokensUsed: 50, Date: day.AddDate(0, 0, 1)},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordUsage(ctx, rec))
	}

	byDay, err := s.UsageByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, byDay, 2)
	assert.Equal(t, int64(2), byDay[0].UserID, "heaviest user first")
	assert.Equal(t, int64(500), byDay[0].TotalTokens)
	assert.Equal(t, int64(300), byDay[1].TotalTokens)
	assert.Equal(t, int64(2), byDay[1].Requests)

	totals, err := s.UserTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, int64(1), totals[1].UserID)
	assert.Equal(t, int64(500), totals[0].TotalTokens)
	assert.Equal(t, int64(350), totals[1].TotalTokens)
}
