package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/authz"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

type CreateSessionInput struct {
	Title           string     `json:"title" binding:"required,max=255"`
	GroupID         uuid.UUID  `json:"group" binding:"required"`
	ScheduledAt     time.Time  `json:"date" binding:"required"`
	Visibility      string     `json:"visibility" binding:"required,oneof=private group public"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=0"`
	ScenarioID      *uuid.UUID `json:"scenario,omitempty"`
}

type UpdateSessionInput struct {
	Title           *string    `json:"title,omitempty" binding:"omitempty,max=255"`
	ScheduledAt     *time.Time `json:"date,omitempty"`
	Visibility      *string    `json:"visibility,omitempty" binding:"omitempty,oneof=private group public"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" binding:"omitempty,min=0"`
	ScenarioID      *uuid.UUID `json:"scenario,omitempty"`
	Status          *string    `json:"status,omitempty" binding:"omitempty,oneof=planned ongoing completed cancelled"`
}

type JoinSessionInput struct {
	PlayerSlot       *int       `json:"player_slot,omitempty" binding:"omitempty,min=1"`
	CharacterName    *string    `json:"character_name,omitempty" binding:"omitempty,max=100"`
	CharacterSheetID *uuid.UUID `json:"character_sheet_id,omitempty"`
}

type AssignPlayerInput struct {
	UserID           uuid.UUID  `json:"user_id" binding:"required"`
	PlayerSlot       int        `json:"player_slot" binding:"required,min=1"`
	CharacterSheetID *uuid.UUID `json:"character_sheet_id,omitempty"`
}

type UpdateParticipantInput struct {
	Role             *string    `json:"role,omitempty" binding:"omitempty,oneof=gm player"`
	PlayerSlot       *int       `json:"player_slot,omitempty" binding:"omitempty,min=1"`
	ClearPlayerSlot  bool       `json:"clear_player_slot,omitempty"`
	CharacterName    *string    `json:"character_name,omitempty" binding:"omitempty,max=100"`
	CharacterSheetID *uuid.UUID `json:"character_sheet_id,omitempty"`
}

type SessionService interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateSessionInput) (*model.Session, error)
	Get(ctx context.Context, actorID, sessionID uuid.UUID) (*model.Session, error)
	GetByShareToken(ctx context.Context, token string) (*model.Session, error)
	List(ctx context.Context, actorID uuid.UUID) ([]model.Session, error)
	Update(ctx context.Context, actorID, sessionID uuid.UUID, input UpdateSessionInput) (*model.Session, error)
	Delete(ctx context.Context, actorID, sessionID uuid.UUID) error

	Join(ctx context.Context, actorID, sessionID uuid.UUID, input JoinSessionInput) (*model.Participant, bool, error)
	AssignPlayer(ctx context.Context, actorID, sessionID uuid.UUID, input AssignPlayerInput) (*model.Participant, error)
	UpdateParticipant(ctx context.Context, actorID, sessionID, participantID uuid.UUID, input UpdateParticipantInput) (*model.Participant, error)
	RemoveParticipant(ctx context.Context, actorID, sessionID, participantID uuid.UUID) error

	SendDueReminders(ctx context.Context) error
}

type sessionService struct {
	db           *gorm.DB
	sessionRepo  repository.SessionRepository
	groupRepo    repository.GroupRepository
	userRepo     repository.UserRepository
	notification NotificationService
	redisClient  *redis.Client
	createLimit  time.Duration
	access       accessChecker
}

func NewSessionService(db *gorm.DB, sessionRepo repository.SessionRepository, groupRepo repository.GroupRepository, userRepo repository.UserRepository, notification NotificationService, redisClient *redis.Client, createLimit time.Duration) SessionService {
	return &sessionService{
		db:           db,
		sessionRepo:  sessionRepo,
		groupRepo:    groupRepo,
		userRepo:     userRepo,
		notification: notification,
		redisClient:  redisClient,
		createLimit:  createLimit,
		access:       accessChecker{sessionRepo: sessionRepo, groupRepo: groupRepo},
	}
}

func (s *sessionService) Create(ctx context.Context, actorID uuid.UUID, input CreateSessionInput) (*model.Session, error) {
	isMember, err := s.groupRepo.IsMember(ctx, input.GroupID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperror.New(apperror.KindForbidden, "you are not a member of this group")
	}

	if s.createLimit > 0 {
		allowed, err := acquireRateLimit(ctx, s.redisClient, actorID, "session:create", s.createLimit)
		if err != nil {
			return nil, err
		}
		if !allowed {
			msg := "you are creating sessions too quickly"
			if retry := rateLimitRetryAfter(ctx, s.redisClient, actorID, "session:create"); retry > 0 {
				msg = fmt.Sprintf("you are creating sessions too quickly, retry in %s", retry.Round(time.Second))
			}
			return nil, apperror.New(apperror.KindRateLimited, msg)
		}
	}

	session := &model.Session{
		Title:           input.Title,
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: input.DurationMinutes,
		GMUserID:        actorID,
		GroupID:         input.GroupID,
		Visibility:      model.SessionVisibility(input.Visibility),
		Status:          model.SessionStatusPlanned,
		ScenarioID:      input.ScenarioID,
		ShareToken:      newShareToken(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewSessionRepository(tx)
		if err := txRepo.Create(ctx, session); err != nil {
			return err
		}
		// The GM is always on the roster.
		return txRepo.CreateParticipant(ctx, &model.Participant{
			SessionID: session.ID,
			UserID:    actorID,
			Role:      model.ParticipantRoleGM,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.sessionRepo.FindByID(ctx, session.ID)
}

func (s *sessionService) Get(ctx context.Context, actorID, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	// Hidden sessions are reported as absent, not forbidden.
	if !authz.May(authz.ActionSessionView, env) {
		return nil, apperror.ErrNotFound
	}

	return session, nil
}

func (s *sessionService) GetByShareToken(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByShareToken(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context, actorID uuid.UUID) ([]model.Session, error) {
	return s.sessionRepo.ListVisibleTo(ctx, actorID)
}

func (s *sessionService) Update(ctx context.Context, actorID, sessionID uuid.UUID, input UpdateSessionInput) (*model.Session, error) {
	session, err := s.Get(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	if !authz.May(authz.ActionSessionModify, env) {
		return nil, apperror.ErrForbidden
	}

	values := map[string]interface{}{}
	scheduleChanged := false
	if input.Title != nil {
		values["title"] = *input.Title
	}
	if input.ScheduledAt != nil && !input.ScheduledAt.Equal(session.ScheduledAt) {
		values["scheduled_at"] = *input.ScheduledAt
		scheduleChanged = true
	}
	if input.Visibility != nil {
		values["visibility"] = *input.Visibility
	}
	if input.DurationMinutes != nil {
		values["duration_minutes"] = *input.DurationMinutes
	}
	if input.ScenarioID != nil {
		values["scenario_id"] = *input.ScenarioID
	}

	var nextStatus *model.SessionStatus
	if input.Status != nil && model.SessionStatus(*input.Status) != session.Status {
		status := model.SessionStatus(*input.Status)
		if !session.Status.CanTransitionTo(status) {
			return nil, apperror.New(apperror.KindConflict,
				fmt.Sprintf("cannot transition session from %s to %s", session.Status, status))
		}
		values["status"] = status
		nextStatus = &status
	}

	if len(values) == 0 {
		return session, nil
	}

	var deliveries []*Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewSessionRepository(tx)
		if err := txRepo.Updates(ctx, session.ID, values); err != nil {
			return err
		}

		participants, err := txRepo.ListParticipants(ctx, session.ID)
		if err != nil {
			return err
		}

		if scheduleChanged && session.Status != model.SessionStatusCancelled &&
			(nextStatus == nil || *nextStatus != model.SessionStatusCancelled) {
			delivery, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
				Type:         model.NotificationSessionScheduleChange,
				SenderID:     actorID,
				RecipientIDs: participantUserIDs(participants, session.GMUserID),
				SubjectKind:  "session",
				SubjectID:    session.ID,
				Message:      fmt.Sprintf("The schedule of %q changed", session.Title),
				Metadata:     map[string]interface{}{"scheduled_at": input.ScheduledAt},
			})
			if err != nil {
				return err
			}
			deliveries = append(deliveries, delivery)
		}

		if nextStatus != nil {
			switch *nextStatus {
			case model.SessionStatusCompleted:
				entries := make([]model.PlayHistory, 0, len(participants))
				playedAt := session.ScheduledAt
				for _, p := range participants {
					entries = append(entries, model.PlayHistory{
						SessionID: session.ID,
						UserID:    p.UserID,
						Role:      p.Role,
						PlayedAt:  playedAt,
					})
				}
				if err := txRepo.CreatePlayHistories(ctx, entries); err != nil {
					return err
				}
			case model.SessionStatusCancelled:
				delivery, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
					Type:         model.NotificationSessionCancelled,
					SenderID:     actorID,
					RecipientIDs: participantUserIDs(participants, session.GMUserID),
					SubjectKind:  "session",
					SubjectID:    session.ID,
					Message:      fmt.Sprintf("Session %q was cancelled", session.Title),
				})
				if err != nil {
					return err
				}
				deliveries = append(deliveries, delivery)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, delivery := range deliveries {
		s.notification.Deliver(delivery)
	}

	return s.sessionRepo.FindByID(ctx, session.ID)
}

func (s *sessionService) Delete(ctx context.Context, actorID, sessionID uuid.UUID) error {
	session, err := s.Get(ctx, actorID, sessionID)
	if err != nil {
		return err
	}
	if session.GMUserID != actorID {
		return apperror.ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txAttachments := repository.NewAttachmentRepository(tx)
		attachments, err := txAttachments.ListBySession(ctx, session.ID)
		if err != nil {
			return err
		}
		// Blobs outlive the metadata cascade; the sweep reclaims them.
		for _, a := range attachments {
			if err := txAttachments.EnqueueOrphanBlob(ctx, a.FileURL); err != nil {
				return err
			}
		}
		return repository.NewSessionRepository(tx).Delete(ctx, session.ID)
	})
}

func (s *sessionService) Join(ctx context.Context, actorID, sessionID uuid.UUID, input JoinSessionInput) (*model.Participant, bool, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, apperror.ErrNotFound
		}
		return nil, false, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, false, err
	}
	if !authz.May(authz.ActionSessionJoin, env) {
		return nil, false, apperror.ErrForbidden
	}

	if input.CharacterSheetID != nil {
		if err := s.ensureSheetOwned(ctx, *input.CharacterSheetID, actorID); err != nil {
			return nil, false, err
		}
	}

	if existing := env.ActorParticipant; existing != nil {
		// Repeat joins are idempotent; fields are updated in place.
		if input.PlayerSlot != nil {
			existing.PlayerSlot = input.PlayerSlot
		}
		if input.CharacterName != nil {
			existing.CharacterName = input.CharacterName
		}
		if input.CharacterSheetID != nil {
			existing.CharacterSheetID = input.CharacterSheetID
		}
		if err := s.sessionRepo.SaveParticipant(ctx, existing); err != nil {
			if isUniqueViolation(err) {
				return nil, false, apperror.ErrSlotTaken
			}
			return nil, false, err
		}
		return existing, false, nil
	}

	participant := &model.Participant{
		SessionID:        session.ID,
		UserID:           actorID,
		Role:             model.ParticipantRolePlayer,
		PlayerSlot:       input.PlayerSlot,
		CharacterName:    input.CharacterName,
		CharacterSheetID: input.CharacterSheetID,
	}
	if err := s.sessionRepo.CreateParticipant(ctx, participant); err != nil {
		if isUniqueViolation(err) {
			if input.PlayerSlot != nil {
				return nil, false, apperror.ErrSlotTaken
			}
			return nil, false, apperror.ErrAlreadyParticipant
		}
		return nil, false, err
	}
	return participant, true, nil
}

func (s *sessionService) AssignPlayer(ctx context.Context, actorID, sessionID uuid.UUID, input AssignPlayerInput) (*model.Participant, error) {
	session, err := s.Get(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	if !authz.May(authz.ActionParticipantManageOther, env) {
		return nil, apperror.ErrForbidden
	}

	if _, err := s.userRepo.FindByID(ctx, input.UserID); err != nil {
		if isNotFound(err) {
			return nil, apperror.New(apperror.KindValidationError, "user does not exist")
		}
		return nil, err
	}
	if input.CharacterSheetID != nil {
		if err := s.ensureSheetOwned(ctx, *input.CharacterSheetID, input.UserID); err != nil {
			return nil, err
		}
	}

	participant, err := s.sessionRepo.FindParticipant(ctx, session.ID, input.UserID)
	if err != nil {
		return nil, err
	}

	if participant == nil {
		participant = &model.Participant{
			SessionID:        session.ID,
			UserID:           input.UserID,
			Role:             model.ParticipantRolePlayer,
			PlayerSlot:       &input.PlayerSlot,
			CharacterSheetID: input.CharacterSheetID,
		}
		err = s.sessionRepo.CreateParticipant(ctx, participant)
	} else {
		participant.PlayerSlot = &input.PlayerSlot
		if input.CharacterSheetID != nil {
			participant.CharacterSheetID = input.CharacterSheetID
		}
		err = s.sessionRepo.SaveParticipant(ctx, participant)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ErrSlotTaken
		}
		return nil, err
	}
	return participant, nil
}

func (s *sessionService) UpdateParticipant(ctx context.Context, actorID, sessionID, participantID uuid.UUID, input UpdateParticipantInput) (*model.Participant, error) {
	session, err := s.Get(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}

	participant, err := s.sessionRepo.FindParticipantByID(ctx, participantID)
	if err != nil || participant.SessionID != session.ID {
		return nil, apperror.ErrNotFound
	}

	isMainGM := session.GMUserID == actorID
	isSelf := participant.UserID == actorID
	if !isMainGM && !isSelf {
		return nil, apperror.ErrForbidden
	}

	if input.Role != nil {
		role := model.ParticipantRole(*input.Role)
		if !isMainGM {
			if role == model.ParticipantRoleGM {
				return nil, apperror.New(apperror.KindForbidden, "you cannot promote yourself to GM")
			}
			if role != participant.Role {
				return nil, apperror.ErrForbidden
			}
		}
		if isMainGM && role != participant.Role {
			if participant.UserID == session.GMUserID && role != model.ParticipantRoleGM {
				return nil, apperror.New(apperror.KindConflict, "the main GM must keep the gm role")
			}
			if role == model.ParticipantRoleGM {
				// One co-GM besides the session GM is the cap.
				participants, err := s.sessionRepo.ListParticipants(ctx, session.ID)
				if err != nil {
					return nil, err
				}
				for _, other := range participants {
					if other.ID != participant.ID && other.UserID != session.GMUserID &&
						other.Role == model.ParticipantRoleGM {
						return nil, apperror.New(apperror.KindConflict, "the session already has a co-GM")
					}
				}
			}
			participant.Role = role
		}
	}

	if input.ClearPlayerSlot {
		participant.PlayerSlot = nil
	} else if input.PlayerSlot != nil {
		participant.PlayerSlot = input.PlayerSlot
	}
	if input.CharacterName != nil {
		participant.CharacterName = input.CharacterName
	}
	if input.CharacterSheetID != nil {
		if err := s.ensureSheetOwned(ctx, *input.CharacterSheetID, participant.UserID); err != nil {
			return nil, err
		}
		participant.CharacterSheetID = input.CharacterSheetID
	}

	if err := s.sessionRepo.SaveParticipant(ctx, participant); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ErrSlotTaken
		}
		return nil, err
	}
	return participant, nil
}

func (s *sessionService) RemoveParticipant(ctx context.Context, actorID, sessionID, participantID uuid.UUID) error {
	session, err := s.Get(ctx, actorID, sessionID)
	if err != nil {
		return err
	}

	participant, err := s.sessionRepo.FindParticipantByID(ctx, participantID)
	if err != nil || participant.SessionID != session.ID {
		return apperror.ErrNotFound
	}

	if participant.UserID == session.GMUserID {
		return apperror.New(apperror.KindForbidden, "the main GM cannot be removed from the session")
	}

	isSelf := participant.UserID == actorID
	isGM := session.GMUserID == actorID
	if !isSelf && !(isGM && participant.Role != model.ParticipantRoleGM) {
		return apperror.ErrForbidden
	}

	return s.sessionRepo.DeleteParticipant(ctx, participant.ID)
}

// SendDueReminders fans out session_reminder for sessions starting within the
// next 24 hours, once per session. Run from a background ticker.
func (s *sessionService) SendDueReminders(ctx context.Context) error {
	now := time.Now()
	sessions, err := s.sessionRepo.DueForReminder(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return err
	}

	for _, session := range sessions {
		var delivery *Delivery
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txRepo := repository.NewSessionRepository(tx)
			participants, err := txRepo.ListParticipants(ctx, session.ID)
			if err != nil {
				return err
			}
			// Reminders go to everyone, the GM included.
			delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
				Type:         model.NotificationSessionReminder,
				SenderID:     session.GMUserID,
				RecipientIDs: participantUserIDs(participants, uuid.Nil),
				SubjectKind:  "session",
				SubjectID:    session.ID,
				Message:      fmt.Sprintf("Session %q starts at %s", session.Title, session.ScheduledAt.Format(time.RFC1123)),
			})
			if err != nil {
				return err
			}
			return txRepo.MarkReminderSent(ctx, session.ID, now)
		})
		if err != nil {
			return err
		}
		s.notification.Deliver(delivery)
	}
	return nil
}

func (s *sessionService) ensureSheetOwned(ctx context.Context, sheetID, ownerID uuid.UUID) error {
	sheet, err := s.userRepo.FindSheetByID(ctx, sheetID)
	if err != nil {
		if isNotFound(err) {
			return apperror.ErrCharacterSheetNotOwned
		}
		return err
	}
	if sheet.OwnerID != ownerID {
		return apperror.ErrCharacterSheetNotOwned
	}
	return nil
}

// participantUserIDs extracts the recipient set, omitting excludeUser
// (pass uuid.Nil to keep everyone).
func participantUserIDs(participants []model.Participant, excludeUser uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if excludeUser != uuid.Nil && p.UserID == excludeUser {
			continue
		}
		ids = append(ids, p.UserID)
	}
	return ids
}
