package conversation

import (
	"testing"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{BotUsername: "MyBot", BotID: 999}

func textMsg(text string) *models.Message {
	return &models.Message{
		From: &models.User{ID: 7},
		Chat: models.Chat{ID: -100},
		Text: text,
	}
}

func TestPrivateAlwaysProcessedAndAnswered(t *testing.T) {
	for _, text := range []string{"Hello", "", "/start", "@SomeoneElse hi"} {
		msg := textMsg(text)
		assert.True(t, testPolicy.ShouldProcess(KindPrivate, msg), "text=%q", text)
		assert.True(t, testPolicy.ShouldRespond(KindPrivate, msg), "text=%q", text)
	}
}

func TestGroupShouldProcess(t *testing.T) {
	t.Run("human with content", func(t *testing.T) {
		assert.True(t, testPolicy.ShouldProcess(KindGroup, textMsg("check this out")))
	})
	t.Run("human with photo only", func(t *testing.T) {
		msg := &models.Message{
			From:  &models.User{ID: 7},
			Chat:  models.Chat{ID: -100},
			Photo: []models.PhotoSize{{FileID: "p1"}},
		}
		assert.True(t, testPolicy.ShouldProcess(KindGroup, msg))
	})
	t.Run("no content at all", func(t *testing.T) {
		msg := &models.Message{From: &models.User{ID: 7}, Chat: models.Chat{ID: -100}}
		assert.False(t, testPolicy.ShouldProcess(KindGroup, msg))
	})
	t.Run("service message without sender", func(t *testing.T) {
		msg := &models.Message{Chat: models.Chat{ID: -100}, Text: "joined"}
		assert.False(t, testPolicy.ShouldProcess(KindGroup, msg))
	})
	t.Run("bot sender dropped unless command", func(t *testing.T) {
		msg := textMsg("buy cheap followers")
		msg.From.IsBot = true
		assert.False(t, testPolicy.ShouldProcess(KindGroup, msg))

		cmd := textMsg("/start")
		cmd.From.IsBot = true
		assert.True(t, testPolicy.ShouldProcess(KindGroup, cmd))
	})
	t.Run("unknown kind never processed", func(t *testing.T) {
		assert.False(t, testPolicy.ShouldProcess(KindUnknown, textMsg("hi")))
	})
}

func TestGroupShouldRespond(t *testing.T) {
	t.Run("plain message stays silent", func(t *testing.T) {
		assert.False(t, testPolicy.ShouldRespond(KindGroup, textMsg("check this out")))
	})
	t.Run("mention", func(t *testing.T) {
		assert.True(t, testPolicy.ShouldRespond(KindGroup, textMsg("@MyBot hi")))
	})
	t.Run("mention is case-insensitive", func(t *testing.T) {
		assert.True(t, testPolicy.ShouldRespond(KindGroup, textMsg("@mybot hi")))
		assert.True(t, testPolicy.ShouldRespond(KindGroup, textMsg("hey @MYBOT")))
	})
	t.Run("username containing ours does not trigger", func(t *testing.T) {
		assert.False(t, testPolicy.ShouldRespond(KindGroup, textMsg("ask @MyBotFan instead")))
	})
	t.Run("mention after a lookalike still triggers", func(t *testing.T) {
		assert.True(t, testPolicy.ShouldRespond(KindGroup, textMsg("@MyBotFan @MyBot hi")))
	})
	t.Run("mention in caption", func(t *testing.T) {
		msg := &models.Message{
			From:    &models.User{ID: 7},
			Chat:    models.Chat{ID: -100},
			Photo:   []models.PhotoSize{{FileID: "p1"}},
			Caption: "@mybot what is this?",
		}
		assert.True(t, testPolicy.ShouldRespond(KindGroup, msg))
	})
	t.Run("reply to bot", func(t *testing.T) {
		msg := textMsg("and why is that?")
		msg.ReplyToMessage = &models.Message{From: &models.User{ID: 999, IsBot: true}}
		assert.True(t, testPolicy.ShouldRespond(KindGroup, msg))
	})
	t.Run("reply to someone else", func(t *testing.T) {
		msg := textMsg("and why is that?")
		msg.ReplyToMessage = &models.Message{From: &models.User{ID: 123}}
		assert.False(t, testPolicy.ShouldRespond(KindGroup, msg))
	})
	t.Run("command", func(t *testing.T) {
		assert.True(t, testPolicy.ShouldRespond(KindGroup, textMsg("/reset")))
	})
	t.Run("command entity without slash prefix", func(t *testing.T) {
		msg := textMsg("reset please")
		msg.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeBotCommand, Offset: 0, Length: 5}}
		assert.True(t, testPolicy.ShouldRespond(KindGroup, msg))
	})
}

func TestChannelPolicy(t *testing.T) {
	cmd := textMsg("/start")
	assert.True(t, testPolicy.ShouldProcess(KindChannel, cmd))
	assert.True(t, testPolicy.ShouldRespond(KindChannel, cmd))

	plain := textMsg("hello everyone")
	assert.False(t, testPolicy.ShouldProcess(KindChannel, plain))
	assert.False(t, testPolicy.ShouldRespond(KindChannel, plain))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Respond, testPolicy.Classify(KindPrivate, textMsg("Hello")))
	assert.Equal(t, ContextOnly, testPolicy.Classify(KindGroup, textMsg("check this out")))
	assert.Equal(t, Respond, testPolicy.Classify(KindGroup, textMsg("@mybot hi")))
	assert.Equal(t, Ignore, testPolicy.Classify(KindChannel, textMsg("hello everyone")))
	assert.Equal(t, Respond, testPolicy.Classify(KindChannel, textMsg("/start")))
	assert.Equal(t, Ignore, testPolicy.Classify(KindGroup, nil))
}

// Entity offsets are UTF-16 code units against the original-cased text; a
// multi-byte prefix must not shift the extracted span.
func TestMentionEntityOffsetsWithMultibytePrefix(t *testing.T) {
	text := "🚀🚀 привет @MyBot"
	offset := len(utf16.Encode([]rune("🚀🚀 привет ")))
	msg := textMsg(text)
	msg.Entities = []models.MessageEntity{{
		Type:   models.MessageEntityTypeMention,
		Offset: offset,
		Length: len(utf16.Encode([]rune("@MyBot"))),
	}}

	require.Equal(t, "@MyBot", entitySpan(text, msg.Entities[0]))
	assert.True(t, testPolicy.ShouldRespond(KindGroup, msg))
}

func TestEntitySpanOutOfRange(t *testing.T) {
	assert.Equal(t, "", entitySpan("short", models.MessageEntity{Offset: 3, Length: 40}))
	assert.Equal(t, "", entitySpan("short", models.MessageEntity{Offset: -1, Length: 2}))
}
