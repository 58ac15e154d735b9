package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/storage"
)

// Service writes token-usage datapoints to the analytics log and answers
// aggregate queries over it. Recording is best-effort: analytics must
// never get between a user and their reply.
type Service struct {
	store  storage.AnalyticsStorage
	logger *zap.Logger
}

func NewService(store storage.AnalyticsStorage, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Record logs one token-usage datapoint, attributed to the user and the
// current day. Failures are logged and swallowed.
func (s *Service) Record(ctx context.Context, userID int64, username string, tokens int) {
	if tokens <= 0 {
		return
	}
	rec := models.UsageRecord{
		UserID:     userID,
		Username:   username,
		TokensUsed: tokens,
		Date:       time.Now().UTC().Truncate(24 * time.Hour),
	}
	if err := s.store.RecordUsage(ctx, rec); err != nil {
		s.logger.Error("Failed to record token usage",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.Int("tokens", tokens))
	}
}

// DailyUsage returns per-user token totals for one day, heaviest first.
func (s *Service) DailyUsage(ctx context.Context, date time.Time) ([]models.UserUsage, error) {
	usage, err := s.store.UsageByDate(ctx, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	return usage, nil
}

// TotalUsage returns all-time per-user token totals, heaviest first.
func (s *Service) TotalUsage(ctx context.Context) ([]models.UserUsage, error) {
	usage, err := s.store.UserTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}
	return usage, nil
}
