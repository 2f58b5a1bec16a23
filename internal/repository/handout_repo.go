package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type HandoutRepository interface {
	Create(ctx context.Context, handout *model.Handout) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Handout, error)
	Save(ctx context.Context, handout *model.Handout) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListBySession applies the caller-supplied visibility scope so hidden
	// rows never leave the database.
	ListBySession(ctx context.Context, sessionID uuid.UUID, scope func(*gorm.DB) *gorm.DB) ([]model.Handout, error)
}

type handoutRepository struct {
	db *gorm.DB
}

func NewHandoutRepository(db *gorm.DB) HandoutRepository {
	return &handoutRepository{db: db}
}

func (r *handoutRepository) Create(ctx context.Context, handout *model.Handout) error {
	return r.db.WithContext(ctx).Create(handout).Error
}

func (r *handoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Handout, error) {
	var handout model.Handout
	err := r.db.WithContext(ctx).
		Preload("Participant").
		Preload("Attachments").
		First(&handout, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &handout, nil
}

func (r *handoutRepository) Save(ctx context.Context, handout *model.Handout) error {
	return r.db.WithContext(ctx).Save(handout).Error
}

func (r *handoutRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Handout{}, "id = ?", id).Error
}

func (r *handoutRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, scope func(*gorm.DB) *gorm.DB) ([]model.Handout, error) {
	var handouts []model.Handout
	err := r.db.WithContext(ctx).
		Preload("Participant").
		Preload("Attachments").
		Where("handouts.session_id = ?", sessionID).
		Scopes(scope).
		Order("handouts.handout_number asc, handouts.created_at asc").
		Find(&handouts).Error
	return handouts, err
}
