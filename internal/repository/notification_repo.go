package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)

	GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *model.NotificationPreferences) error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]model.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "display_name", "avatar_url")
		})
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []model.Notification
	err := query.Find(&notifications).Error
	return notifications, err
}

// MarkAsRead is scoped to the recipient so no actor can touch another inbox.
// Re-reading an already-read notification is a no-op.
func (r *notificationRepository) MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Where("is_read = ?", false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Notification{}).
			Where("id = ? AND recipient_id = ?", id, recipientID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// GetPreferences returns stored preferences or the defaults when none exist.
func (r *notificationRepository) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	var prefs model.NotificationPreferences
	err := r.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			defaults := model.DefaultNotificationPreferences(userID)
			return &defaults, nil
		}
		return nil, err
	}
	return &prefs, nil
}

func (r *notificationRepository) SavePreferences(ctx context.Context, prefs *model.NotificationPreferences) error {
	return r.db.WithContext(ctx).Save(prefs).Error
}
