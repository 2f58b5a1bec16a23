package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Group, error)
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	FindMembership(ctx context.Context, groupID, userID uuid.UUID) (*model.GroupMembership, error)
	AddMember(ctx context.Context, membership *model.GroupMembership) error
}

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *groupRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		Preload("Members.User").
		First(&group, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *groupRepository) FindMembership(ctx context.Context, groupID, userID uuid.UUID) (*model.GroupMembership, error) {
	var membership model.GroupMembership
	err := r.db.WithContext(ctx).
		First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

func (r *groupRepository) AddMember(ctx context.Context, membership *model.GroupMembership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}
