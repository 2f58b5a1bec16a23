package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type InvitationRepository interface {
	Create(ctx context.Context, invitation *model.SessionInvitation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SessionInvitation, error)
	FindForSessionInvitee(ctx context.Context, sessionID, inviteeID uuid.UUID) (*model.SessionInvitation, error)
	// TransitionStatus compare-and-sets status from->to and reports whether
	// this call won the transition. Serializes concurrent responders.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.InvitationStatus, respondedAt *time.Time) (bool, error)
	ExpirePendingBefore(ctx context.Context, createdBefore time.Time) (int64, error)
}

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, invitation *model.SessionInvitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *invitationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SessionInvitation, error) {
	var invitation model.SessionInvitation
	err := r.db.WithContext(ctx).
		Preload("Session").
		Preload("Inviter").
		First(&invitation, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) FindForSessionInvitee(ctx context.Context, sessionID, inviteeID uuid.UUID) (*model.SessionInvitation, error) {
	var invitation model.SessionInvitation
	err := r.db.WithContext(ctx).
		First(&invitation, "session_id = ? AND invitee_id = ?", sessionID, inviteeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.InvitationStatus, respondedAt *time.Time) (bool, error) {
	values := map[string]interface{}{"status": to}
	if respondedAt != nil {
		values["responded_at"] = *respondedAt
	}
	res := r.db.WithContext(ctx).Model(&model.SessionInvitation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *invitationRepository) ExpirePendingBefore(ctx context.Context, createdBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.SessionInvitation{}).
		Where("status = ? AND created_at < ?", model.InvitationPending, createdBefore).
		Update("status", model.InvitationExpired)
	return res.RowsAffected, res.Error
}
