package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giaprika/Social-Media-Platform/internal/models"
)

// NotificationStore owns the notification table. Consumer handlers are the
// only writers of event-driven records; the synchronous API methods below
// cover the read/flag/bulk-delete surface.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) (*NotificationStore, error) {
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		return nil, fmt.Errorf("migrate notifications: %w", err)
	}
	return &NotificationStore{db: db}, nil
}

// Create inserts a new notification record, assigning its id.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.NotifyID == "" {
		n.NotifyID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(n).Error
}

// FindExisting returns the record matching (entityID, actor, text), or nil
// when none exists. The like handlers use it for their dedup check.
func (s *NotificationStore) FindExisting(ctx context.Context, entityID, userID, text string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND user_id = ? AND text = ?", entityID, userID, text).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteMatching removes the record matching (entityID, actor, text) and
// returns it, or nil when there was nothing to delete.
func (s *NotificationStore) DeleteMatching(ctx context.Context, entityID, userID, text string) (*models.Notification, error) {
	n, err := s.FindExisting(ctx, entityID, userID, text)
	if err != nil || n == nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Notification{}, "notify_id = ?", n.NotifyID).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListForRecipient returns every notification addressed to userID, newest
// first. Recipients are stored as a JSON array, so the match is a substring
// test on the serialized column, mirroring the document-store query shape.
func (s *NotificationStore) ListForRecipient(ctx context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.WithContext(ctx).
		Where("recipients LIKE ?", fmt.Sprintf(`%%"%s"%%`, userID)).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// MarkRead flips the isRead flag on one record.
func (s *NotificationStore) MarkRead(ctx context.Context, notifyID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("notify_id = ?", notifyID).
		Update("is_read", true).Error
}

// DeleteAllForRecipient removes every notification addressed to userID and
// returns how many were deleted.
func (s *NotificationStore) DeleteAllForRecipient(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("recipients LIKE ?", fmt.Sprintf(`%%"%s"%%`, userID)).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
