package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/conversation"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
)

// User-facing texts for the failure modes a run can end in. The "no reply"
// and "run failed" cases are deliberately distinct so the two can be told
// apart in the chat as well as in the logs.
const (
	ReplyNoAnswer    = "Ошибка: не удалось получить ответ."
	ReplyRunFailed   = "Не удалось обработать запрос. Попробуйте ещё раз."
	ReplyRunTimeout  = "Время ожидания ответа истекло. Попробуйте ещё раз."
	ReplyUnsupported = "Ассистент запросил выполнение инструментов — эта возможность не поддерживается."

	defaultImagePrompt    = "Опиши, что изображено на этой картинке."
	defaultDocumentPrompt = "Сделай краткое содержание документа «%s»."
)

// dialogueAPI is the slice of the remote assistant service the gateway
// talks to. *openai.Client (via Client) satisfies it.
type dialogueAPI interface {
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// Sessions is the session-store surface the gateway needs.
type Sessions interface {
	GetOrCreateDialogue(ctx context.Context, id conversation.ID) (string, error)
	DialogueID(ctx context.Context, id conversation.ID) string
	RecordImage(ctx context.Context, id conversation.ID, fileID string)
	RecordDocument(ctx context.Context, id conversation.ID, fileID, filename string)
}

// UsageSink receives token-usage datapoints; implementations are best-effort.
type UsageSink interface {
	Record(ctx context.Context, userID int64, username string, tokens int)
}

// Actor is the user on whose behalf a run is accounted.
type Actor struct {
	ID       int64
	Username string
}

type Config struct {
	AssistantID  string
	PollInterval time.Duration
	RunTimeout   time.Duration
	ImageModel   string
	ImageSize    string
}

// Gateway drives the remote assistant against per-conversation dialogues:
// append a user turn, trigger a run, wait for a terminal state, extract the
// newest assistant reply and account token usage.
//
// Public operations never propagate remote failures as bare errors to be
// shown directly: the returned string is always safe to deliver to the chat,
// and a non-nil error carries the cause for the caller's log.
type Gateway struct {
	api      dialogueAPI
	sessions Sessions
	usage    UsageSink
	cfg      Config
	logger   *zap.Logger
}

func NewGateway(api dialogueAPI, sessions Sessions, usage UsageSink, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	return &Gateway{
		api:      api,
		sessions: sessions,
		usage:    usage,
		cfg:      cfg,
		logger:   logger,
	}
}

// Ask appends text as a user turn and returns the assistant's reply.
func (g *Gateway) Ask(ctx context.Context, id conversation.ID, actor Actor, text string) (string, error) {
	return g.run(ctx, id, actor, text, nil)
}

// AddContext appends text to the dialogue without triggering a run. This is
// how the bot follows a group thread it was not addressed in.
func (g *Gateway) AddContext(ctx context.Context, id conversation.ID, text string) error {
	_, err := g.appendTurn(ctx, id, text, nil)
	return err
}

// AskImage uploads the image, records its handle for deferred cleanup and
// runs the assistant over caption+image. Without a caption a fixed
// describe-this-image prompt is used. The uploaded file is not deleted after
// the run: later turns may refer back to it, so deletion waits for reset.
func (g *Gateway) AskImage(ctx context.Context, id conversation.ID, actor Actor, caption string, data []byte, name string) (string, error) {
	att, err := g.uploadImage(ctx, id, data, name)
	if err != nil {
		return ReplyRunFailed, err
	}
	if caption == "" {
		caption = defaultImagePrompt
	}
	return g.run(ctx, id, actor, caption, []openai.ThreadAttachment{att})
}

// ContextImage is the context-only variant of AskImage: upload, record,
// append, no run.
func (g *Gateway) ContextImage(ctx context.Context, id conversation.ID, caption string, data []byte, name string) error {
	att, err := g.uploadImage(ctx, id, data, name)
	if err != nil {
		return err
	}
	if caption == "" {
		caption = defaultImagePrompt
	}
	_, err = g.appendTurn(ctx, id, caption, []openai.ThreadAttachment{att})
	return err
}

// AskDocument uploads the document with retrieval enabled and runs the
// assistant over the user's question, or a default summarize instruction
// naming the original file.
func (g *Gateway) AskDocument(ctx context.Context, id conversation.ID, actor Actor, question string, data []byte, filename string) (string, error) {
	att, err := g.uploadDocument(ctx, id, data, filename)
	if err != nil {
		return ReplyRunFailed, err
	}
	if question == "" {
		question = fmt.Sprintf(defaultDocumentPrompt, filename)
	}
	return g.run(ctx, id, actor, question, []openai.ThreadAttachment{att})
}

// ContextDocument is the context-only variant of AskDocument.
func (g *Gateway) ContextDocument(ctx context.Context, id conversation.ID, question string, data []byte, filename string) error {
	att, err := g.uploadDocument(ctx, id, data, filename)
	if err != nil {
		return err
	}
	if question == "" {
		question = fmt.Sprintf(defaultDocumentPrompt, filename)
	}
	_, err = g.appendTurn(ctx, id, question, []openai.ThreadAttachment{att})
	return err
}

// History returns up to limit turns of the dialogue, oldest first. A nil
// slice means the conversation has not started yet.
func (g *Gateway) History(ctx context.Context, id conversation.ID, limit int) ([]models.DialogueMessage, error) {
	dialogueID := g.sessions.DialogueID(ctx, id)
	if dialogueID == "" {
		return nil, nil
	}

	list, err := g.api.ListMessage(ctx, dialogueID, &limit, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list dialogue messages: %w", err)
	}

	// The service returns newest first.
	out := make([]models.DialogueMessage, 0, len(list.Messages))
	for i := len(list.Messages) - 1; i >= 0; i-- {
		msg := list.Messages[i]
		text := messageText(msg)
		if text == "" {
			continue
		}
		out = append(out, models.DialogueMessage{
			Role:      msg.Role,
			Text:      text,
			CreatedAt: time.Unix(int64(msg.CreatedAt), 0),
		})
	}
	return out, nil
}

func (g *Gateway) uploadImage(ctx context.Context, id conversation.ID, data []byte, name string) (openai.ThreadAttachment, error) {
	file, err := g.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return openai.ThreadAttachment{}, fmt.Errorf("failed to upload image: %w", err)
	}
	g.sessions.RecordImage(ctx, id, file.ID)
	return openai.ThreadAttachment{
		FileID: file.ID,
		Tools:  []openai.ThreadAttachmentTool{{Type: string(openai.AssistantToolTypeCodeInterpreter)}},
	}, nil
}

func (g *Gateway) uploadDocument(ctx context.Context, id conversation.ID, data []byte, filename string) (openai.ThreadAttachment, error) {
	file, err := g.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return openai.ThreadAttachment{}, fmt.Errorf("failed to upload document: %w", err)
	}
	g.sessions.RecordDocument(ctx, id, file.ID, filename)
	return openai.ThreadAttachment{
		FileID: file.ID,
		Tools:  []openai.ThreadAttachmentTool{{Type: string(openai.AssistantToolTypeFileSearch)}},
	}, nil
}

func (g *Gateway) appendTurn(ctx context.Context, id conversation.ID, text string, attachments []openai.ThreadAttachment) (string, error) {
	dialogueID, err := g.sessions.GetOrCreateDialogue(ctx, id)
	if err != nil {
		return "", err
	}

	_, err = g.api.CreateMessage(ctx, dialogueID, openai.MessageRequest{
		Role:        openai.ChatMessageRoleUser,
		Content:     text,
		Attachments: attachments,
	})
	if err != nil {
		return "", fmt.Errorf("failed to append message to dialogue %s: %w", dialogueID, err)
	}
	return dialogueID, nil
}

func (g *Gateway) run(ctx context.Context, id conversation.ID, actor Actor, text string, attachments []openai.ThreadAttachment) (string, error) {
	dialogueID, err := g.appendTurn(ctx, id, text, attachments)
	if err != nil {
		return ReplyRunFailed, err
	}

	run, err := g.api.CreateRun(ctx, dialogueID, openai.RunRequest{AssistantID: g.cfg.AssistantID})
	if err != nil {
		return ReplyRunFailed, fmt.Errorf("failed to start run on dialogue %s: %w", dialogueID, err)
	}

	run, err = g.waitForRun(ctx, dialogueID, run)

	// Usage is forwarded whatever the outcome; a failed run still burned
	// tokens. Recording failures must not affect the reply.
	if run.Usage.TotalTokens > 0 && g.usage != nil {
		g.usage.Record(ctx, actor.ID, actor.Username, run.Usage.TotalTokens)
	}

	if err != nil {
		// Only real deadline exhaustion earns the timeout text; a failed
		// poll call is an ordinary transient failure.
		if errors.Is(err, context.DeadlineExceeded) {
			return ReplyRunTimeout, err
		}
		return ReplyRunFailed, err
	}

	switch run.Status {
	case openai.RunStatusCompleted:
		reply, ok := g.latestAssistantReply(ctx, dialogueID, run)
		if !ok {
			g.logger.Error("Run completed but no assistant reply found",
				zap.String("conversation", id.Key()),
				zap.String("dialogue_id", dialogueID),
				zap.String("run_id", run.ID),
				zap.Int64("run_created_at", run.CreatedAt))
			return ReplyNoAnswer, nil
		}
		return reply, nil

	case openai.RunStatusRequiresAction:
		g.logger.Warn("Run requires tool execution, which is unsupported",
			zap.String("dialogue_id", dialogueID),
			zap.String("run_id", run.ID))
		return ReplyUnsupported, nil

	default:
		fields := []zap.Field{
			zap.String("dialogue_id", dialogueID),
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
		}
		if run.LastError != nil {
			fields = append(fields,
				zap.String("remote_code", string(run.LastError.Code)),
				zap.String("remote_message", run.LastError.Message))
		}
		g.logger.Error("Run ended without completing", fields...)
		return ReplyRunFailed, nil
	}
}

// waitForRun polls the run at the configured interval until it leaves the
// in-flight states, bounded by the configured overall deadline.
func (g *Gateway) waitForRun(ctx context.Context, dialogueID string, run openai.Run) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RunTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		default:
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, fmt.Errorf("run %s did not reach a terminal state within %s: %w",
				run.ID, g.cfg.RunTimeout, ctx.Err())
		case <-ticker.C:
		}

		next, err := g.api.RetrieveRun(ctx, dialogueID, run.ID)
		if err != nil {
			return run, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		run = next
	}
}

// latestAssistantReply scans the dialogue for the newest assistant-authored
// message created at or after the run started.
func (g *Gateway) latestAssistantReply(ctx context.Context, dialogueID string, run openai.Run) (string, bool) {
	list, err := g.api.ListMessage(ctx, dialogueID, nil, nil, nil, nil, nil)
	if err != nil {
		g.logger.Error("Failed to list dialogue messages",
			zap.Error(err),
			zap.String("dialogue_id", dialogueID))
		return "", false
	}

	// Newest first; the first match is the newest qualifying reply.
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		if int64(msg.CreatedAt) < run.CreatedAt {
			continue
		}
		if text := messageText(msg); text != "" {
			return text, true
		}
	}
	return "", false
}

func messageText(msg openai.Message) string {
	for _, part := range msg.Content {
		if part.Text != nil {
			return part.Text.Value
		}
	}
	return ""
}
