package conversation

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// Kind is the closed set of chat kinds the bot distinguishes. Wire values
// outside the set map to KindUnknown instead of being compared ad hoc.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrivate
	KindGroup
	KindSupergroup
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindGroup:
		return "group"
	case KindSupergroup:
		return "supergroup"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// KindOf maps the wire chat type onto the closed Kind set.
func KindOf(t models.ChatType) Kind {
	switch t {
	case models.ChatTypePrivate:
		return KindPrivate
	case models.ChatTypeGroup:
		return KindGroup
	case models.ChatTypeSupergroup:
		return KindSupergroup
	case models.ChatTypeChannel:
		return KindChannel
	default:
		return KindUnknown
	}
}

type scope int

const (
	scopeUser scope = iota
	scopeChat
	scopeChatTopic
)

// ID identifies one logical conversation. Private chats are keyed by the
// human's id so their history stays independent of the chat surface; group
// chats are keyed by chat id, optionally narrowed to one forum topic.
type ID struct {
	scope   scope
	userID  int64
	chatID  int64
	topicID int
}

func User(userID int64) ID {
	return ID{scope: scopeUser, userID: userID}
}

func Chat(chatID int64) ID {
	return ID{scope: scopeChat, chatID: chatID}
}

func ChatTopic(chatID int64, topicID int) ID {
	return ID{scope: scopeChatTopic, chatID: chatID, topicID: topicID}
}

// Resolve derives the conversation identity from the addressing fields of an
// inbound event. Pure function: identical inputs always yield the same ID.
// Unrecognized kinds fall open to chat-scoped (group) addressing, never to
// user scope.
func Resolve(kind Kind, userID, chatID int64, topicID int) ID {
	switch kind {
	case KindPrivate:
		return User(userID)
	case KindSupergroup:
		if topicID != 0 {
			return ChatTopic(chatID, topicID)
		}
		return Chat(chatID)
	default:
		return Chat(chatID)
	}
}

// ResolveMessage derives the conversation identity for an inbound message.
func ResolveMessage(kind Kind, msg *models.Message) ID {
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	topicID := 0
	if msg.IsTopicMessage {
		topicID = msg.MessageThreadID
	}
	return Resolve(kind, userID, msg.Chat.ID, topicID)
}

// Key renders the stable store key for the identifier.
func (id ID) Key() string {
	switch id.scope {
	case scopeUser:
		return fmt.Sprintf("user:%d", id.userID)
	case scopeChatTopic:
		return fmt.Sprintf("chat:%d:topic:%d", id.chatID, id.topicID)
	default:
		return fmt.Sprintf("chat:%d", id.chatID)
	}
}

func (id ID) String() string { return id.Key() }
