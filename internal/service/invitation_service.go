package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/authz"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

type InviteInput struct {
	InviteeID uuid.UUID `json:"invitee_id" binding:"required"`
	Message   *string   `json:"message,omitempty" binding:"omitempty,max=500"`
}

type InvitationService interface {
	Invite(ctx context.Context, actorID, sessionID uuid.UUID, input InviteInput) (*model.SessionInvitation, error)
	Accept(ctx context.Context, actorID, invitationID uuid.UUID) (*model.Participant, error)
	Decline(ctx context.Context, actorID, invitationID uuid.UUID) error
	ExpireStale(ctx context.Context) (int64, error)
}

type invitationService struct {
	db             *gorm.DB
	invitationRepo repository.InvitationRepository
	sessionRepo    repository.SessionRepository
	userRepo       repository.UserRepository
	notification   NotificationService
	access         accessChecker
}

func NewInvitationService(db *gorm.DB, invitationRepo repository.InvitationRepository, sessionRepo repository.SessionRepository, groupRepo repository.GroupRepository, userRepo repository.UserRepository, notification NotificationService) InvitationService {
	return &invitationService{
		db:             db,
		invitationRepo: invitationRepo,
		sessionRepo:    sessionRepo,
		userRepo:       userRepo,
		notification:   notification,
		access:         accessChecker{sessionRepo: sessionRepo, groupRepo: groupRepo},
	}
}

func (s *invitationService) Invite(ctx context.Context, actorID, sessionID uuid.UUID, input InviteInput) (*model.SessionInvitation, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	// Only the GM invites.
	if session.GMUserID != actorID {
		return nil, apperror.ErrForbidden
	}

	invitee, err := s.userRepo.FindByID(ctx, input.InviteeID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.New(apperror.KindValidationError, "invitee does not exist")
		}
		return nil, err
	}

	existing, err := s.sessionRepo.FindParticipant(ctx, session.ID, invitee.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.ErrAlreadyParticipant
	}

	if prior, err := s.invitationRepo.FindForSessionInvitee(ctx, session.ID, invitee.ID); err != nil {
		return nil, err
	} else if prior != nil && prior.Status == model.InvitationPending && !prior.IsExpired(time.Now()) {
		return nil, apperror.New(apperror.KindConflict, "an invitation for this user is already pending")
	}

	invitation := &model.SessionInvitation{
		SessionID: session.ID,
		InviterID: actorID,
		InviteeID: invitee.ID,
		Status:    model.InvitationPending,
		Message:   input.Message,
	}

	var delivery *Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewInvitationRepository(tx).Create(ctx, invitation); err != nil {
			if isUniqueViolation(err) {
				return apperror.New(apperror.KindConflict, "an invitation for this user already exists")
			}
			return err
		}
		delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationSessionInvitation,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{invitee.ID},
			SubjectKind:  "session_invitation",
			SubjectID:    invitation.ID,
			Message:      fmt.Sprintf("You are invited to the session %q", session.Title),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notification.Deliver(delivery)

	return invitation, nil
}

func (s *invitationService) Accept(ctx context.Context, actorID, invitationID uuid.UUID) (*model.Participant, error) {
	invitation, err := s.loadForResponse(ctx, actorID, invitationID)
	if err != nil {
		return nil, err
	}

	var participant *model.Participant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		won, err := repository.NewInvitationRepository(tx).
			TransitionStatus(ctx, invitation.ID, model.InvitationPending, model.InvitationAccepted, &now)
		if err != nil {
			return err
		}
		if !won {
			return apperror.ErrInvitationNotPending
		}

		participant = &model.Participant{
			SessionID: invitation.SessionID,
			UserID:    actorID,
			Role:      model.ParticipantRolePlayer,
		}
		if err := repository.NewSessionRepository(tx).CreateParticipant(ctx, participant); err != nil {
			if isUniqueViolation(err) {
				return apperror.ErrAlreadyParticipant
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

func (s *invitationService) Decline(ctx context.Context, actorID, invitationID uuid.UUID) error {
	invitation, err := s.loadForResponse(ctx, actorID, invitationID)
	if err != nil {
		return err
	}

	now := time.Now()
	won, err := s.invitationRepo.TransitionStatus(ctx, invitation.ID, model.InvitationPending, model.InvitationDeclined, &now)
	if err != nil {
		return err
	}
	if !won {
		return apperror.ErrInvitationNotPending
	}
	return nil
}

// ExpireStale moves pending invitations past the expiry window to expired.
// Run from a background ticker.
func (s *invitationService) ExpireStale(ctx context.Context) (int64, error) {
	return s.invitationRepo.ExpirePendingBefore(ctx, time.Now().Add(-model.InvitationExpiryWindow))
}

// loadForResponse fetches the invitation and applies the respond rules: only
// the invitee may respond, only while pending, only within the expiry window.
// An expired invitation is flipped to expired inline before failing.
func (s *invitationService) loadForResponse(ctx context.Context, actorID, invitationID uuid.UUID) (*model.SessionInvitation, error) {
	invitation, err := s.invitationRepo.FindByID(ctx, invitationID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	if invitation.InviteeID != actorID {
		return nil, apperror.ErrForbidden
	}
	if invitation.Status != model.InvitationPending {
		return nil, apperror.ErrInvitationNotPending
	}

	now := time.Now()
	if !authz.May(authz.ActionInvitationRespond, authz.Env{Actor: actorID, Invitation: invitation, Now: now}) {
		if invitation.IsExpired(now) {
			if _, err := s.invitationRepo.TransitionStatus(ctx, invitation.ID, model.InvitationPending, model.InvitationExpired, nil); err != nil {
				return nil, err
			}
			return nil, apperror.ErrInvitationExpired
		}
		return nil, apperror.ErrForbidden
	}
	return invitation, nil
}
