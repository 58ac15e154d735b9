package access

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// ReplyNotSubscribed is sent when a user who is not subscribed to the
// required channel tries to get a response.
const ReplyNotSubscribed = "Доступ к боту открыт только подписчикам канала. Подпишитесь и попробуйте ещё раз."

// memberChecker is the one Telegram call the gate needs; *bot.Bot
// satisfies it.
type memberChecker interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

type cacheEntry struct {
	authorized bool
	expiresAt  time.Time
}

// Gate answers whether a user may receive responses, based on membership
// in the configured channel. Verdicts are cached in-process for a short
// TTL so one chatty user does not turn into a getChatMember flood.
//
// Any failure to check — network error, bot lacking rights in the
// channel — counts as not subscribed. Failures are not cached, so a
// transient error clears on the next message.
type Gate struct {
	api       memberChecker
	channelID string
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[int64]cacheEntry
}

func NewGate(api memberChecker, channelID string, ttl time.Duration, logger *zap.Logger) *Gate {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Gate{
		api:       api,
		channelID: channelID,
		ttl:       ttl,
		logger:    logger,
		cache:     make(map[int64]cacheEntry),
	}
}

// IsAuthorized reports whether the user is subscribed to the required
// channel. An empty channel id disables gating entirely.
func (g *Gate) IsAuthorized(ctx context.Context, userID int64) bool {
	if g.channelID == "" {
		return true
	}

	if verdict, ok := g.cached(userID); ok {
		return verdict
	}

	member, err := g.api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: g.channelID,
		UserID: userID,
	})
	if err != nil {
		g.logger.Warn("Failed to check channel membership, denying",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("channel", g.channelID))
		return false
	}

	authorized := isSubscribed(member)
	g.store(userID, authorized)
	return authorized
}

// Invalidate drops the cached verdict for a user, forcing a fresh check
// on their next message.
func (g *Gate) Invalidate(userID int64) {
	g.mu.Lock()
	delete(g.cache, userID)
	g.mu.Unlock()
}

func (g *Gate) cached(userID int64) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.cache[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(g.cache, userID)
		return false, false
	}
	return entry.authorized, true
}

func (g *Gate) store(userID int64, authorized bool) {
	g.mu.Lock()
	g.cache[userID] = cacheEntry{authorized: authorized, expiresAt: time.Now().Add(g.ttl)}
	g.mu.Unlock()
}

func isSubscribed(member *models.ChatMember) bool {
	if member == nil {
		return false
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	default:
		return false
	}
}
