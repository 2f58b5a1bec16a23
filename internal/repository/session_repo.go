package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	FindByShareToken(ctx context.Context, token string) (*model.Session, error)
	Updates(ctx context.Context, id uuid.UUID, values map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListVisibleTo(ctx context.Context, userID uuid.UUID) ([]model.Session, error)

	FindParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*model.Participant, error)
	FindParticipantByID(ctx context.Context, id uuid.UUID) (*model.Participant, error)
	CreateParticipant(ctx context.Context, p *model.Participant) error
	SaveParticipant(ctx context.Context, p *model.Participant) error
	DeleteParticipant(ctx context.Context, id uuid.UUID) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]model.Participant, error)

	CreatePlayHistories(ctx context.Context, entries []model.PlayHistory) error

	DueForReminder(ctx context.Context, from, until time.Time) ([]model.Session, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Preload("GM").
		Preload("Scenario").
		Preload("Participants").
		Preload("Participants.User").
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindByShareToken(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Preload("GM").
		Preload("Participants").
		First(&session, "share_token = ?", token).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Updates(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Session{}, "id = ?", id).Error
}

// ListVisibleTo returns sessions the user may see: public ones, ones they run
// or play in, and group-visible ones of groups they belong to.
func (r *sessionRepository) ListVisibleTo(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Distinct("sessions.*").
		Joins("LEFT JOIN participants ON participants.session_id = sessions.id AND participants.user_id = ?", userID).
		Joins("LEFT JOIN group_memberships ON group_memberships.group_id = sessions.group_id AND group_memberships.user_id = ?", userID).
		Where("sessions.visibility = ?", model.SessionVisibilityPublic).
		Or("sessions.gm_user_id = ?", userID).
		Or("participants.id IS NOT NULL").
		Or("sessions.visibility = ? AND group_memberships.id IS NOT NULL", model.SessionVisibilityGroup).
		Order("sessions.scheduled_at desc").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) FindParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*model.Participant, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).
		First(&p, "session_id = ? AND user_id = ?", sessionID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *sessionRepository) FindParticipantByID(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	var p model.Participant
	if err := r.db.WithContext(ctx).Preload("User").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *sessionRepository) CreateParticipant(ctx context.Context, p *model.Participant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *sessionRepository) SaveParticipant(ctx context.Context, p *model.Participant) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *sessionRepository) DeleteParticipant(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Participant{}, "id = ?", id).Error
}

func (r *sessionRepository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]model.Participant, error) {
	var participants []model.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&participants).Error
	return participants, err
}

func (r *sessionRepository) CreatePlayHistories(ctx context.Context, entries []model.PlayHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *sessionRepository) DueForReminder(ctx context.Context, from, until time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SessionStatusPlanned).
		Where("scheduled_at BETWEEN ? AND ?", from, until).
		Where("reminder_sent_at IS NULL").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Update("reminder_sent_at", at).Error
}
