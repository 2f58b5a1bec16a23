package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *model.Attachment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByHandout(ctx context.Context, handoutID uuid.UUID) ([]model.Attachment, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Attachment, error)

	EnqueueOrphanBlob(ctx context.Context, fileURL string) error
	ListOrphanBlobs(ctx context.Context, limit int) ([]model.OrphanBlob, error)
	DeleteOrphanBlob(ctx context.Context, id uint) error
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *model.Attachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *attachmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Attachment, error) {
	var attachment model.Attachment
	if err := r.db.WithContext(ctx).First(&attachment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Attachment{}, "id = ?", id).Error
}

func (r *attachmentRepository) ListByHandout(ctx context.Context, handoutID uuid.UUID) ([]model.Attachment, error) {
	var attachments []model.Attachment
	err := r.db.WithContext(ctx).
		Where("handout_id = ?", handoutID).
		Order("created_at asc").
		Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Attachment, error) {
	var attachments []model.Attachment
	err := r.db.WithContext(ctx).
		Joins("JOIN handouts ON handouts.id = attachments.handout_id").
		Where("handouts.session_id = ?", sessionID).
		Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) EnqueueOrphanBlob(ctx context.Context, fileURL string) error {
	return r.db.WithContext(ctx).Create(&model.OrphanBlob{FileURL: fileURL}).Error
}

func (r *attachmentRepository) ListOrphanBlobs(ctx context.Context, limit int) ([]model.OrphanBlob, error) {
	var orphans []model.OrphanBlob
	err := r.db.WithContext(ctx).
		Order("created_at asc").
		Limit(limit).
		Find(&orphans).Error
	return orphans, err
}

func (r *attachmentRepository) DeleteOrphanBlob(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.OrphanBlob{}, id).Error
}
