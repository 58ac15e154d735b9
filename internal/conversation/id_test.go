package conversation

import (
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPrivate, KindOf(models.ChatTypePrivate))
	assert.Equal(t, KindGroup, KindOf(models.ChatTypeGroup))
	assert.Equal(t, KindSupergroup, KindOf(models.ChatTypeSupergroup))
	assert.Equal(t, KindChannel, KindOf(models.ChatTypeChannel))
	assert.Equal(t, KindUnknown, KindOf(models.ChatType("business")))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		userID  int64
		chatID  int64
		topicID int
		want    string
	}{
		{"private keyed by user", KindPrivate, 42, 42, 0, "user:42"},
		{"private ignores topic", KindPrivate, 42, 42, 7, "user:42"},
		{"group keyed by chat", KindGroup, 42, -100, 0, "chat:-100"},
		{"supergroup without topic", KindSupergroup, 42, -100, 0, "chat:-100"},
		{"supergroup with topic", KindSupergroup, 42, -100, 5, "chat:-100:topic:5"},
		{"channel keyed by chat", KindChannel, 42, -200, 0, "chat:-200"},
		{"unknown falls open to chat scope", KindUnknown, 42, -300, 0, "chat:-300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.kind, tt.userID, tt.chatID, tt.topicID)
			assert.Equal(t, tt.want, got.Key())
		})
	}
}

func TestResolveIsStable(t *testing.T) {
	a := Resolve(KindSupergroup, 1, -100, 5)
	b := Resolve(KindSupergroup, 2, -100, 5)
	assert.Equal(t, a, b, "identity must not depend on the sender in groups")
}

func TestTopicAndChatAreDistinct(t *testing.T) {
	withTopic := Resolve(KindSupergroup, 1, -100, 5)
	withoutTopic := Resolve(KindSupergroup, 1, -100, 0)
	assert.NotEqual(t, withTopic, withoutTopic)
	assert.NotEqual(t, withTopic.Key(), withoutTopic.Key())
}

func TestUserAndChatNeverCollide(t *testing.T) {
	assert.NotEqual(t, User(100).Key(), Chat(100).Key())
}

func TestResolveMessage(t *testing.T) {
	msg := &models.Message{
		From:            &models.User{ID: 42},
		Chat:            models.Chat{ID: -100},
		MessageThreadID: 5,
		IsTopicMessage:  true,
	}
	assert.Equal(t, "chat:-100:topic:5", ResolveMessage(KindSupergroup, msg).Key())

	// A threaded reply outside a forum must not get topic scope.
	msg.IsTopicMessage = false
	assert.Equal(t, "chat:-100", ResolveMessage(KindSupergroup, msg).Key())
}
