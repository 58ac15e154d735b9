package conversation

import (
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// Outcome classifies what the message pipeline should do with an event.
type Outcome int

const (
	// Ignore drops the event with no side effect.
	Ignore Outcome = iota
	// ContextOnly appends the content to the conversation's dialogue
	// without triggering a run, so the bot keeps up with a group thread
	// without replying to every message.
	ContextOnly
	// Respond generates and delivers a reply.
	Respond
)

func (o Outcome) String() string {
	switch o {
	case ContextOnly:
		return "context_only"
	case Respond:
		return "respond"
	default:
		return "ignore"
	}
}

// Policy answers, per inbound message, whether the bot should touch
// conversation state and whether it should reply. The bot's own identity is
// resolved once at startup and injected here rather than read from a global.
type Policy struct {
	BotUsername string
	BotID       int64
}

func (p Policy) Classify(kind Kind, msg *models.Message) Outcome {
	if !p.ShouldProcess(kind, msg) {
		return Ignore
	}
	if p.ShouldRespond(kind, msg) {
		return Respond
	}
	return ContextOnly
}

// ShouldProcess reports whether the event should touch conversation state
// at all.
func (p Policy) ShouldProcess(kind Kind, msg *models.Message) bool {
	if msg == nil {
		return false
	}
	switch kind {
	case KindPrivate:
		return true
	case KindGroup, KindSupergroup:
		// Service messages carry no sender. Other bots only get through
		// with an explicit command.
		if msg.From == nil {
			return false
		}
		if msg.From.IsBot {
			return p.isCommand(msg)
		}
		return hasContent(msg)
	case KindChannel:
		return p.isCommand(msg)
	default:
		return false
	}
}

// ShouldRespond reports whether a reply must be generated for the event.
func (p Policy) ShouldRespond(kind Kind, msg *models.Message) bool {
	if msg == nil {
		return false
	}
	switch kind {
	case KindPrivate:
		return true
	case KindGroup, KindSupergroup:
		return p.isMentioned(msg) || p.isReplyToBot(msg) || p.isCommand(msg)
	case KindChannel:
		return p.isCommand(msg)
	default:
		return false
	}
}

func hasContent(msg *models.Message) bool {
	return msg.Text != "" || msg.Caption != "" || len(msg.Photo) > 0 || msg.Document != nil
}

func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// isMentioned checks the text and caption for @<bot_username>. A mention
// entity naming exactly our handle always counts. The plain substring path
// additionally requires a word boundary after the handle so that a username
// merely containing ours does not trigger a reply.
func (p Policy) isMentioned(msg *models.Message) bool {
	if p.BotUsername == "" {
		return false
	}
	text := messageText(msg)
	if text == "" {
		return false
	}
	mention := "@" + strings.ToLower(p.BotUsername)

	for _, e := range msg.Entities {
		if e.Type == models.MessageEntityTypeMention && strings.EqualFold(entitySpan(text, e), mention) {
			return true
		}
	}
	for _, e := range msg.CaptionEntities {
		if e.Type == models.MessageEntityTypeMention && strings.EqualFold(entitySpan(text, e), mention) {
			return true
		}
	}

	lower := strings.ToLower(text)
	for idx := strings.Index(lower, mention); idx >= 0; {
		end := idx + len(mention)
		if end == len(lower) || !isUsernameChar(lower[end]) {
			return true
		}
		next := strings.Index(lower[end:], mention)
		if next < 0 {
			return false
		}
		idx = end + next
	}
	return false
}

func isUsernameChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// entitySpan extracts the substring an entity covers. Telegram entity
// offsets count UTF-16 code units of the original-cased text, not bytes or
// runes, so the text is round-tripped through UTF-16 before slicing.
func entitySpan(text string, e models.MessageEntity) string {
	u := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(u) {
		return ""
	}
	return string(utf16.Decode(u[e.Offset : e.Offset+e.Length]))
}

// isReplyToBot matches by the sender identity of the replied-to message.
func (p Policy) isReplyToBot(msg *models.Message) bool {
	r := msg.ReplyToMessage
	return r != nil && r.From != nil && r.From.ID == p.BotID
}

// isCommand recognizes a leading slash or a bot_command entity, in either
// the primary text or the caption.
func (p Policy) isCommand(msg *models.Message) bool {
	if strings.HasPrefix(messageText(msg), "/") {
		return true
	}
	for _, e := range msg.Entities {
		if e.Type == models.MessageEntityTypeBotCommand {
			return true
		}
	}
	for _, e := range msg.CaptionEntities {
		if e.Type == models.MessageEntityTypeBotCommand {
			return true
		}
	}
	return false
}
