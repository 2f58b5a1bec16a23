package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	FindSheetByID(ctx context.Context, id uuid.UUID) (*model.CharacterSheet, error)
	CreateSheet(ctx context.Context, sheet *model.CharacterSheet) error
	ListSheetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.CharacterSheet, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error
	return count > 0, err
}

func (r *userRepository) FindSheetByID(ctx context.Context, id uuid.UUID) (*model.CharacterSheet, error) {
	var sheet model.CharacterSheet
	if err := r.db.WithContext(ctx).First(&sheet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (r *userRepository) CreateSheet(ctx context.Context, sheet *model.CharacterSheet) error {
	return r.db.WithContext(ctx).Create(sheet).Error
}

func (r *userRepository) ListSheetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.CharacterSheet, error) {
	var sheets []model.CharacterSheet
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&sheets).Error
	return sheets, err
}
