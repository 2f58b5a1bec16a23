package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type SocialRepository interface {
	CreateFriendRequest(ctx context.Context, request *model.FriendRequest) error
	FindFriendRequest(ctx context.Context, id uuid.UUID) (*model.FriendRequest, error)
	TransitionFriendRequest(ctx context.Context, id uuid.UUID, from, to model.FriendRequestStatus, respondedAt time.Time) (bool, error)
	CreateFriendship(ctx context.Context, a, b uuid.UUID) error
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)
}

type socialRepository struct {
	db *gorm.DB
}

func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

func (r *socialRepository) CreateFriendRequest(ctx context.Context, request *model.FriendRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *socialRepository) FindFriendRequest(ctx context.Context, id uuid.UUID) (*model.FriendRequest, error) {
	var request model.FriendRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *socialRepository) TransitionFriendRequest(ctx context.Context, id uuid.UUID, from, to model.FriendRequestStatus, respondedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "responded_at": respondedAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateFriendship stores the pair once, lower UUID first.
func (r *socialRepository) CreateFriendship(ctx context.Context, a, b uuid.UUID) error {
	if b.String() < a.String() {
		a, b = b, a
	}
	return r.db.WithContext(ctx).Create(&model.Friendship{UserID: a, FriendID: b}).Error
}

func (r *socialRepository) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if b.String() < a.String() {
		a, b = b, a
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&count).Error
	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return count > 0, err
}
