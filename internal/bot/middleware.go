package bot

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Recover returns middleware that recovers from handler panics. One broken
// update must not take the long-polling loop down with it.
func Recover(logger *zap.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered in handler",
						zap.Any("panic", r),
						zap.Int64("update_id", update.ID),
						zap.String("stack", string(debug.Stack())))
				}
			}()
			next(ctx, b, update)
		}
	}
}

// Logging returns middleware that logs the start and end of each update
// under one correlation id, with the handling duration on the way out.
func Logging(logger *zap.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			correlationID := uuid.New().String()

			var chatID, userID int64
			if update.Message != nil {
				chatID = update.Message.Chat.ID
				if update.Message.From != nil {
					userID = update.Message.From.ID
				}
			}

			logger.Debug("Update received",
				zap.String("correlation_id", correlationID),
				zap.Int64("update_id", update.ID),
				zap.Int64("chat_id", chatID),
				zap.Int64("user_id", userID))

			next(ctx, b, update)

			logger.Debug("Update processed",
				zap.String("correlation_id", correlationID),
				zap.Int64("update_id", update.ID),
				zap.Duration("duration", time.Since(start)))
		}
	}
}

// RateLimit returns middleware that enforces a per-chat message rate. Every
// chat gets its own token bucket; excess messages are answered with a slow-down
// notice and dropped before they reach a handler.
func RateLimit(perMinute int, logger *zap.Logger) bot.Middleware {
	var (
		mu       sync.Mutex
		limiters = make(map[int64]*rate.Limiter)
	)
	limiterFor := func(chatID int64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[chatID]
		if !ok {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
			limiters[chatID] = l
		}
		return l
	}

	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if perMinute <= 0 || update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !limiterFor(chatID).Allow() {
				logger.Debug("Rate limited", zap.Int64("chat_id", chatID))
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Слишком много запросов. Подождите немного.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
