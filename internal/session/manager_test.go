package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/conversation"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/storage"
)

type fakeCreator struct {
	calls int
}

func (c *fakeCreator) CreateDialogue(ctx context.Context) (string, error) {
	c.calls++
	return fmt.Sprintf("thread_%d", c.calls), nil
}

type fakeDeleter struct {
	deleted []string
	failOn  map[string]bool
}

func (d *fakeDeleter) DeleteFile(ctx context.Context, fileID string) error {
	if d.failOn[fileID] {
		return errors.New("remote deletion failed")
	}
	d.deleted = append(d.deleted, fileID)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeCreator, *fakeDeleter) {
	t.Helper()
	creator := &fakeCreator{}
	deleter := &fakeDeleter{failOn: map[string]bool{}}
	m := NewManager(storage.NewMemoryStorage(), creator, deleter, zap.NewNop())
	return m, creator, deleter
}

func TestGetOrCreateDialogueIsIdempotent(t *testing.T) {
	m, creator, _ := newTestManager(t)
	ctx := context.Background()
	id := conversation.User(42)

	first, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)
	second, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, creator.calls)
}

func TestDistinctIdentifiersNeverShareSessions(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	user := conversation.User(1)
	chat := conversation.Chat(-100)
	topic := conversation.ChatTopic(-100, 5)

	userHandle, err := m.GetOrCreateDialogue(ctx, user)
	require.NoError(t, err)
	chatHandle, err := m.GetOrCreateDialogue(ctx, chat)
	require.NoError(t, err)
	topicHandle, err := m.GetOrCreateDialogue(ctx, topic)
	require.NoError(t, err)

	assert.NotEqual(t, userHandle, chatHandle)
	assert.NotEqual(t, chatHandle, topicHandle)

	m.RecordImage(ctx, user, "img_user")
	assert.Empty(t, m.Images(ctx, chat))
	assert.Empty(t, m.Images(ctx, topic))
}

func TestResetTearsDownEverything(t *testing.T) {
	m, _, deleter := newTestManager(t)
	ctx := context.Background()
	id := conversation.Chat(-100)

	before, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)

	m.RecordImage(ctx, id, "img_1")
	m.RecordImage(ctx, id, "img_2")
	m.RecordDocument(ctx, id, "doc_1", "report.pdf")

	require.NoError(t, m.Reset(ctx, id))

	assert.ElementsMatch(t, []string{"img_1", "img_2", "doc_1"}, deleter.deleted)
	assert.Empty(t, m.Images(ctx, id))
	assert.Empty(t, m.Documents(ctx, id))

	after, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "reset must start a fresh dialogue")
}

func TestResetContinuesPastIndividualDeletionFailures(t *testing.T) {
	m, _, deleter := newTestManager(t)
	ctx := context.Background()
	id := conversation.User(42)

	m.RecordImage(ctx, id, "img_ok")
	m.RecordImage(ctx, id, "img_bad")
	m.RecordDocument(ctx, id, "doc_ok", "notes.txt")
	deleter.failOn["img_bad"] = true

	require.NoError(t, m.Reset(ctx, id))

	assert.ElementsMatch(t, []string{"img_ok", "doc_ok"}, deleter.deleted)
	assert.Empty(t, m.Images(ctx, id), "local bookkeeping is cleared even when remote deletion fails")
	assert.Empty(t, m.Documents(ctx, id))
}

func TestResetDoesNotTouchOtherSessions(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	a := conversation.User(1)
	b := conversation.Chat(-100)

	handleB, err := m.GetOrCreateDialogue(ctx, b)
	require.NoError(t, err)
	m.RecordImage(ctx, b, "img_b")

	require.NoError(t, m.Reset(ctx, a))

	assert.Equal(t, []string{"img_b"}, m.Images(ctx, b))
	still, err := m.GetOrCreateDialogue(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, handleB, still)
}

// brokenStorage fails every operation, standing in for an unreachable store.
type brokenStorage struct{}

var errDown = errors.New("storage unavailable")

func (brokenStorage) GetDialogue(context.Context, string) (string, error)     { return "", errDown }
func (brokenStorage) SaveDialogue(context.Context, string, string) error      { return errDown }
func (brokenStorage) DeleteDialogue(context.Context, string) error            { return errDown }
func (brokenStorage) AddImage(context.Context, string, string) error          { return errDown }
func (brokenStorage) ListImages(context.Context, string) ([]string, error)    { return nil, errDown }
func (brokenStorage) ClearImages(context.Context, string) error               { return errDown }
func (brokenStorage) AddDocument(context.Context, string, models.DocumentRef) error {
	return errDown
}
func (brokenStorage) ListDocuments(context.Context, string) ([]models.DocumentRef, error) {
	return nil, errDown
}
func (brokenStorage) ClearDocuments(context.Context, string) error { return errDown }

func TestStorageLossDegradesToFreshSession(t *testing.T) {
	creator := &fakeCreator{}
	m := NewManager(brokenStorage{}, creator, &fakeDeleter{}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id := conversation.User(42)

	// Reads degrade to "no session"; a fresh remote dialogue is created
	// every time since the mapping cannot be persisted.
	first, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", first)

	second, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "thread_2", second)

	assert.Empty(t, m.Images(ctx, id))
	assert.Error(t, m.Reset(ctx, id))
}

func TestDialogueIDNeverCreates(t *testing.T) {
	m, creator, _ := newTestManager(t)
	ctx := context.Background()
	id := conversation.User(42)

	assert.Equal(t, "", m.DialogueID(ctx, id))
	assert.Equal(t, 0, creator.calls)

	handle, err := m.GetOrCreateDialogue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, handle, m.DialogueID(ctx, id))
}
