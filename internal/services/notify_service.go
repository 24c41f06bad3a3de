package services

import (
	"context"
	"log/slog"

	"github.com/giaprika/Social-Media-Platform/internal/cache"
	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/internal/repository"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

// NotificationView is a stored record joined with the actor who caused it.
// User is nil when the user service was unreachable.
type NotificationView struct {
	models.Notification
	User *models.Actor `json:"user"`
}

// NotifyService serves the synchronous notification API: the cached read
// path plus the isRead flip and bulk delete. Writes invalidate the
// recipient's cache keys only after the store write completed.
type NotifyService struct {
	store   *repository.NotificationStore
	cache   *cache.Client
	users   *UserClient
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewNotifyService(store *repository.NotificationStore, c *cache.Client, users *UserClient, m *metrics.Metrics, logger *slog.Logger) *NotifyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyService{
		store:   store,
		cache:   c,
		users:   users,
		metrics: m,
		logger:  logger,
	}
}

// GetNotifies returns the recipient's notifications, newest first, enriched
// with actor identity. The cache is consulted first and populated on a miss;
// it is strictly an optimization and never fails the read.
func (s *NotifyService) GetNotifies(ctx context.Context, userID string) ([]NotificationView, error) {
	key := cache.NotifiesKey(userID)

	var cached []NotificationView
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		if s.metrics != nil {
			s.metrics.IncCacheHit()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.IncCacheMiss()
	}

	records, err := s.store.ListForRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]NotificationView, 0, len(records))
	actors := make(map[string]*models.Actor, len(records))
	for _, n := range records {
		actor, seen := actors[n.UserID]
		if !seen {
			a, err := s.users.GetUser(ctx, n.UserID)
			if err != nil {
				s.logger.Warn("actor lookup failed",
					slog.String("userId", n.UserID), slog.Any("error", err))
				a = nil
			}
			actors[n.UserID] = a
			actor = a
		}
		views = append(views, NotificationView{Notification: n, User: actor})
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, views)
	}
	return views, nil
}

// MarkRead flips the isRead flag, then invalidates the recipient's cached
// views.
func (s *NotifyService) MarkRead(ctx context.Context, userID, notifyID string) error {
	if err := s.store.MarkRead(ctx, notifyID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Del(ctx, cache.NotifiesPattern(userID))
	}
	return nil
}

// DeleteAll removes every notification addressed to the recipient, then
// invalidates their cached views.
func (s *NotifyService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.DeleteAllForRecipient(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Del(ctx, cache.NotifiesPattern(userID))
	}
	return count, nil
}
