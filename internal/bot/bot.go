package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/access"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/assistant"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/conversation"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/intent"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/session"
	"github.com/DmitriyMgar/telegram-gpt-bot/pkg/config"
)

const (
	replyWelcome = `Привет! Я бот-ассистент. 🤖

Задайте вопрос текстом, пришлите картинку или документ — я отвечу, опишу или сделаю краткое содержание. В группах отвечаю на упоминания, команды и ответы на мои сообщения.

/help — список команд.`

	replyHelp = `Доступные команды:
/start — начать работу с ботом
/help — это сообщение
/reset — очистить контекст диалога и начать заново
/history — последние сообщения диалога
/export — выгрузить диалог файлом

Можно присылать:
— текстовые вопросы
— картинки (с подписью или без)
— документы до 15 МБ
— просьбы нарисовать картинку`

	replyResetDone          = "Контекст диалога очищен. Начинаем заново!"
	replyResetFailed        = "Не удалось полностью очистить контекст. Попробуйте ещё раз."
	replyHistoryEmpty       = "История пуста — диалог ещё не начат."
	replyExportEmpty        = "Экспортировать нечего — диалог ещё не начат."
	replyUnknownCommand     = "Неизвестная команда. /help — список команд."
	replyUnsupportedContent = "Я понимаю текст, картинки и документы. Пришлите что-нибудь из этого."
	replyGenericFailure     = "Произошла ошибка. Попробуйте ещё раз."
	replyDocumentTooBig     = "Документ слишком большой: лимит 15 МБ."
	historyUserLabel        = "Вы"
	historyAssistantLabel   = "Ассистент"
)

// telegramAPI is the slice of *bot.Bot the handlers use. Tests fake it.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

// Bot glues the Telegram transport to the conversation policy, the session
// store and the assistant gateway.
type Bot struct {
	client   *bot.Bot
	api      telegramAPI
	gateway  *assistant.Gateway
	sessions *session.Manager
	gate     *access.Gate
	detector intent.ImageDetector
	limits   config.LimitsConfig
	logger   *zap.Logger

	// policy is resolved from getMe at Start and read-only afterwards.
	policy conversation.Policy
}

func New(cfg config.TelegramConfig, gateway *assistant.Gateway, sessions *session.Manager, limits config.LimitsConfig, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		gateway:  gateway,
		sessions: sessions,
		limits:   limits,
		logger:   logger,
	}

	client, err := bot.New(cfg.Token,
		bot.WithMiddlewares(
			Recover(logger),
			Logging(logger),
			RateLimit(limits.RatePerChatPerMinute, logger),
		),
		bot.WithDefaultHandler(b.handleUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.client = client
	b.api = client
	b.gate = access.NewGate(client, cfg.ChannelID, limits.SubscriptionCacheTTL, logger)

	client.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.command(b.handleStart))
	client.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.command(b.handleHelp))
	client.RegisterHandler(bot.HandlerTypeMessageText, "/reset", bot.MatchTypePrefix, b.command(b.handleReset))
	client.RegisterHandler(bot.HandlerTypeMessageText, "/history", bot.MatchTypePrefix, b.command(b.handleHistory))
	client.RegisterHandler(bot.HandlerTypeMessageText, "/export", bot.MatchTypePrefix, b.command(b.handleExport))

	return b, nil
}

// Start resolves the bot's own identity, then runs the long-polling loop
// until the context is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot identity: %w", err)
	}
	b.policy = conversation.Policy{BotUsername: me.Username, BotID: me.ID}

	b.logger.Info("Bot started",
		zap.String("username", me.Username),
		zap.Int64("bot_id", me.ID))

	b.client.Start(ctx)
	return nil
}

// command wraps a command handler with the shared sender/identity plumbing.
// A command is an explicit address, so it rides the respond path in every
// chat kind, access gate included.
func (b *Bot) command(handle func(ctx context.Context, id conversation.ID, msg *models.Message)) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil {
			return
		}
		kind := b.chatKind(msg)
		if !b.policy.ShouldProcess(kind, msg) {
			return
		}
		id := conversation.ResolveMessage(kind, msg)
		if !b.authorize(ctx, msg) {
			return
		}
		handle(ctx, id, msg)
	}
}

func (b *Bot) handleStart(ctx context.Context, id conversation.ID, msg *models.Message) {
	b.sendPlain(ctx, msg, replyWelcome)
}

func (b *Bot) handleHelp(ctx context.Context, id conversation.ID, msg *models.Message) {
	b.sendPlain(ctx, msg, replyHelp)
}

func (b *Bot) handleReset(ctx context.Context, id conversation.ID, msg *models.Message) {
	if err := b.sessions.Reset(ctx, id); err != nil {
		b.logger.Error("Failed to reset session",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		b.sendPlain(ctx, msg, replyResetFailed)
		return
	}
	b.sendPlain(ctx, msg, replyResetDone)
}

func (b *Bot) handleHistory(ctx context.Context, id conversation.ID, msg *models.Message) {
	history, err := b.gateway.History(ctx, id, b.limits.HistoryLimit)
	if err != nil {
		b.logger.Error("Failed to fetch history",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		b.sendPlain(ctx, msg, replyGenericFailure)
		return
	}
	if len(history) == 0 {
		b.sendPlain(ctx, msg, replyHistoryEmpty)
		return
	}

	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString("**")
		sb.WriteString(roleLabel(turn.Role))
		sb.WriteString(":** ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n\n")
	}
	b.sendReply(ctx, msg, sb.String())
}

func (b *Bot) handleExport(ctx context.Context, id conversation.ID, msg *models.Message) {
	history, err := b.gateway.History(ctx, id, b.limits.ExportLimit)
	if err != nil {
		b.logger.Error("Failed to fetch history for export",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		b.sendPlain(ctx, msg, replyGenericFailure)
		return
	}
	if len(history) == 0 {
		b.sendPlain(ctx, msg, replyExportEmpty)
		return
	}

	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString(turn.CreatedAt.Format(time.RFC3339))
		sb.WriteString(" ")
		sb.WriteString(roleLabel(turn.Role))
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}

	filename := fmt.Sprintf("dialogue-%s.txt", uuid.New().String()[:8])
	_, err = b.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: msg.Chat.ID,
		Document: &models.InputFileUpload{
			Filename: filename,
			Data:     bytes.NewReader([]byte(sb.String())),
		},
	})
	if err != nil {
		b.logger.Error("Failed to send export document",
			zap.Error(err),
			zap.Int64("chat_id", msg.Chat.ID))
		b.sendPlain(ctx, msg, replyGenericFailure)
	}
}

func roleLabel(role string) string {
	if role == "user" {
		return historyUserLabel
	}
	return historyAssistantLabel
}

// chatKind maps the chat type, logging values this build does not know.
func (b *Bot) chatKind(msg *models.Message) conversation.Kind {
	kind := conversation.KindOf(msg.Chat.Type)
	if kind == conversation.KindUnknown {
		b.logger.Warn("Unrecognized chat kind",
			zap.String("chat_type", string(msg.Chat.Type)),
			zap.Int64("chat_id", msg.Chat.ID))
	}
	return kind
}

// authorize runs the subscription gate for the respond path. Channel posts
// carry no individual sender to check, so they pass.
func (b *Bot) authorize(ctx context.Context, msg *models.Message) bool {
	if msg.From == nil {
		return true
	}
	if b.gate.IsAuthorized(ctx, msg.From.ID) {
		return true
	}
	b.sendPlain(ctx, msg, access.ReplyNotSubscribed)
	return false
}

func (b *Bot) actor(msg *models.Message) assistant.Actor {
	if msg.From == nil {
		return assistant.Actor{ID: msg.Chat.ID}
	}
	return assistant.Actor{ID: msg.From.ID, Username: msg.From.Username}
}

// sendReply renders markdown to Telegram HTML, splits to the 4096 cap and
// delivers, falling back to plain text when Telegram rejects the markup.
// Outside private chats the first part replies to the triggering message.
func (b *Bot) sendReply(ctx context.Context, msg *models.Message, text string) {
	rendered := renderHTML(text)
	parts := splitMessage(rendered, maxMessageLen)

	replyTo := 0
	if msg.Chat.Type != models.ChatTypePrivate {
		replyTo = msg.ID
	}

	for _, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:    msg.Chat.ID,
			Text:      part,
			ParseMode: models.ParseModeHTML,
		}
		if msg.IsTopicMessage {
			params.MessageThreadID = msg.MessageThreadID
		}
		if replyTo != 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
			replyTo = 0
		}

		if _, err := b.api.SendMessage(ctx, params); err != nil {
			// Retry just this part without markup; parts already delivered
			// must not be sent twice.
			b.logger.Warn("HTML send failed, falling back to plain text",
				zap.Error(err),
				zap.Int64("chat_id", msg.Chat.ID))
			params.ParseMode = ""
			if _, err := b.api.SendMessage(ctx, params); err != nil {
				b.logger.Error("Failed to send message",
					zap.Error(err),
					zap.Int64("chat_id", msg.Chat.ID))
				return
			}
		}
	}
}

// sendPlain delivers a fixed service message without rendering.
func (b *Bot) sendPlain(ctx context.Context, msg *models.Message, text string) {
	params := &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
	}
	if msg.IsTopicMessage {
		params.MessageThreadID = msg.MessageThreadID
	}
	if _, err := b.api.SendMessage(ctx, params); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", msg.Chat.ID))
	}
}
