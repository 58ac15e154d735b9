package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/assistant"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/conversation"
)

// handleUpdate is the default handler: every message that is not a
// registered command lands here and goes through the dual-mode pipeline —
// resolve the conversation identity, classify, then drop, absorb or respond.
func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	kind := b.chatKind(msg)
	outcome := b.policy.Classify(kind, msg)
	if outcome == conversation.Ignore {
		return
	}

	id := conversation.ResolveMessage(kind, msg)
	b.logger.Debug("Message classified",
		zap.String("conversation", id.Key()),
		zap.String("kind", kind.String()),
		zap.String("outcome", outcome.String()))

	switch outcome {
	case conversation.ContextOnly:
		b.absorb(ctx, id, msg)
	case conversation.Respond:
		if !b.authorize(ctx, msg) {
			return
		}
		b.respond(ctx, id, msg)
	}
}

// absorb feeds content into the conversation's dialogue without replying.
// Nothing here may message the chat: the bot was not addressed.
func (b *Bot) absorb(ctx context.Context, id conversation.ID, msg *models.Message) {
	var err error
	switch {
	case len(msg.Photo) > 0:
		var data []byte
		var name string
		data, name, err = b.downloadPhoto(ctx, msg)
		if err == nil {
			err = b.gateway.ContextImage(ctx, id, msg.Caption, data, name)
		}
	case msg.Document != nil:
		if documentTooLarge(msg.Document, b.limits.MaxDocumentBytes) {
			b.logger.Debug("Skipping oversized document in context absorption",
				zap.String("conversation", id.Key()),
				zap.Int64("size", msg.Document.FileSize))
			return
		}
		var data []byte
		data, err = b.downloadDocument(ctx, msg.Document)
		if err == nil {
			err = b.gateway.ContextDocument(ctx, id, msg.Caption, data, msg.Document.FileName)
		}
	default:
		err = b.gateway.AddContext(ctx, id, messageContent(msg))
	}

	if err != nil {
		b.logger.Error("Failed to absorb message into context",
			zap.Error(err),
			zap.String("conversation", id.Key()))
	}
}

// respond generates a reply for an addressed message, routing by content.
func (b *Bot) respond(ctx context.Context, id conversation.ID, msg *models.Message) {
	stopTyping := b.startTyping(ctx, msg)
	defer stopTyping()

	actor := b.actor(msg)

	switch {
	case len(msg.Photo) > 0:
		b.respondPhoto(ctx, id, actor, msg)
	case msg.Document != nil:
		b.respondDocument(ctx, id, actor, msg)
	default:
		b.respondText(ctx, id, actor, msg)
	}
}

func (b *Bot) respondText(ctx context.Context, id conversation.ID, actor assistant.Actor, msg *models.Message) {
	text := messageContent(msg)
	if text == "" {
		// Stickers, voice notes and the like carry nothing to relay.
		b.sendPlain(ctx, msg, replyUnsupportedContent)
		return
	}
	if strings.HasPrefix(text, "/") {
		// A command that no registered handler claimed.
		b.sendPlain(ctx, msg, replyUnknownCommand)
		return
	}

	if b.detector.IsImageRequest(text) {
		b.respondGeneratedImage(ctx, actor, msg, text)
		return
	}

	reply, err := b.gateway.Ask(ctx, id, actor, text)
	if err != nil {
		b.logger.Error("Assistant request failed",
			zap.Error(err),
			zap.String("conversation", id.Key()))
	}
	b.sendReply(ctx, msg, reply)
}

func (b *Bot) respondGeneratedImage(ctx context.Context, actor assistant.Actor, msg *models.Message, prompt string) {
	url, err := b.gateway.GenerateImage(ctx, actor, prompt)
	if err != nil {
		b.logger.Error("Image generation failed",
			zap.Error(err),
			zap.Int64("user_id", actor.ID))
		b.sendPlain(ctx, msg, assistant.GenerationFailureMessage(err))
		return
	}

	params := &bot.SendPhotoParams{
		ChatID: msg.Chat.ID,
		Photo:  &models.InputFileString{Data: url},
	}
	if msg.IsTopicMessage {
		params.MessageThreadID = msg.MessageThreadID
	}
	if _, err := b.api.SendPhoto(ctx, params); err != nil {
		b.logger.Error("Failed to send generated image",
			zap.Error(err),
			zap.Int64("chat_id", msg.Chat.ID))
		b.sendPlain(ctx, msg, replyGenericFailure)
	}
}

func (b *Bot) respondPhoto(ctx context.Context, id conversation.ID, actor assistant.Actor, msg *models.Message) {
	data, name, err := b.downloadPhoto(ctx, msg)
	if err != nil {
		b.logger.Error("Failed to download photo",
			zap.Error(err),
			zap.String("conversation", id.Key()))
		b.sendPlain(ctx, msg, replyGenericFailure)
		return
	}

	reply, err := b.gateway.AskImage(ctx, id, actor, msg.Caption, data, name)
	if err != nil {
		b.logger.Error("Assistant image request failed",
			zap.Error(err),
			zap.String("conversation", id.Key()))
	}
	b.sendReply(ctx, msg, reply)
}

func (b *Bot) respondDocument(ctx context.Context, id conversation.ID, actor assistant.Actor, msg *models.Message) {
	doc := msg.Document

	// Size is checked before anything leaves Telegram's side.
	if documentTooLarge(doc, b.limits.MaxDocumentBytes) {
		b.sendPlain(ctx, msg, replyDocumentTooBig)
		return
	}

	data, err := b.downloadDocument(ctx, doc)
	if err != nil {
		b.logger.Error("Failed to download document",
			zap.Error(err),
			zap.String("conversation", id.Key()),
			zap.String("filename", doc.FileName))
		b.sendPlain(ctx, msg, replyGenericFailure)
		return
	}

	reply, err := b.gateway.AskDocument(ctx, id, actor, msg.Caption, data, doc.FileName)
	if err != nil {
		b.logger.Error("Assistant document request failed",
			zap.Error(err),
			zap.String("conversation", id.Key()))
	}
	b.sendReply(ctx, msg, reply)
}

// documentTooLarge applies the inbound size cap. A document of exactly the
// limit is allowed through.
func documentTooLarge(doc *models.Document, maxBytes int64) bool {
	return doc.FileSize > maxBytes
}

// downloadPhoto fetches the largest size Telegram offers for the photo.
func (b *Bot) downloadPhoto(ctx context.Context, msg *models.Message) ([]byte, string, error) {
	largest := msg.Photo[len(msg.Photo)-1]
	data, err := b.downloadFile(ctx, largest.FileID)
	if err != nil {
		return nil, "", err
	}
	return data, "photo.jpg", nil
}

func (b *Bot) downloadDocument(ctx context.Context, doc *models.Document) ([]byte, error) {
	return b.downloadFile(ctx, doc.FileID)
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	return data, nil
}

// startTyping keeps the typing indicator alive until the returned stop
// function is called. Telegram drops the indicator after ~5 seconds, so it
// is refreshed on a ticker.
func (b *Bot) startTyping(ctx context.Context, msg *models.Message) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	send := func() {
		params := &bot.SendChatActionParams{
			ChatID: msg.Chat.ID,
			Action: models.ChatActionTyping,
		}
		if msg.IsTopicMessage {
			params.MessageThreadID = msg.MessageThreadID
		}
		b.api.SendChatAction(ctx, params)
	}

	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		send()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	return cancel
}

func messageContent(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
