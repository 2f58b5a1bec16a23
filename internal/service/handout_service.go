package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/authz"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

type CreateHandoutInput struct {
	ParticipantID      uuid.UUID `json:"participant_id" binding:"required"`
	Title              string    `json:"title" binding:"required,max=255"`
	Content            string    `json:"content"`
	IsSecret           *bool     `json:"is_secret,omitempty"`
	HandoutNumber      *int      `json:"handout_number,omitempty" binding:"omitempty,min=1"`
	AssignedPlayerSlot *int      `json:"assigned_player_slot,omitempty" binding:"omitempty,min=1"`
}

type UpdateHandoutInput struct {
	Title              *string `json:"title,omitempty" binding:"omitempty,max=255"`
	Content            *string `json:"content,omitempty"`
	HandoutNumber      *int    `json:"handout_number,omitempty" binding:"omitempty,min=1"`
	AssignedPlayerSlot *int    `json:"assigned_player_slot,omitempty" binding:"omitempty,min=1"`
}

// BulkHandoutResult reports the outcome of one item of a bulk create.
type BulkHandoutResult struct {
	Index   int            `json:"index"`
	Handout *model.Handout `json:"handout,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"`
}

type HandoutService interface {
	Create(ctx context.Context, actorID, sessionID uuid.UUID, input CreateHandoutInput) (*model.Handout, error)
	BulkCreate(ctx context.Context, actorID, sessionID uuid.UUID, inputs []CreateHandoutInput) ([]BulkHandoutResult, error)
	Get(ctx context.Context, actorID, handoutID uuid.UUID) (*model.Handout, error)
	ListBySession(ctx context.Context, actorID, sessionID uuid.UUID) ([]model.Handout, error)
	Update(ctx context.Context, actorID, handoutID uuid.UUID, input UpdateHandoutInput) (*model.Handout, error)
	ToggleVisibility(ctx context.Context, actorID, handoutID uuid.UUID) (*model.Handout, error)
	Delete(ctx context.Context, actorID, handoutID uuid.UUID) error
}

type handoutService struct {
	db             *gorm.DB
	handoutRepo    repository.HandoutRepository
	sessionRepo    repository.SessionRepository
	attachmentRepo repository.AttachmentRepository
	notification   NotificationService
	access         accessChecker
	sanitizer      *bluemonday.Policy
}

func NewHandoutService(db *gorm.DB, handoutRepo repository.HandoutRepository, sessionRepo repository.SessionRepository, groupRepo repository.GroupRepository, attachmentRepo repository.AttachmentRepository, notification NotificationService) HandoutService {
	return &handoutService{
		db:             db,
		handoutRepo:    handoutRepo,
		sessionRepo:    sessionRepo,
		attachmentRepo: attachmentRepo,
		notification:   notification,
		access:         accessChecker{sessionRepo: sessionRepo, groupRepo: groupRepo},
		sanitizer:      bluemonday.UGCPolicy(),
	}
}

func (s *handoutService) Create(ctx context.Context, actorID, sessionID uuid.UUID, input CreateHandoutInput) (*model.Handout, error) {
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
	if !authz.May(authz.ActionHandoutCreate, env) {
		if !authz.May(authz.ActionSessionView, env) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.ErrForbidden
	}

	target, err := s.sessionRepo.FindParticipantByID(ctx, input.ParticipantID)
	if err != nil || target.SessionID != session.ID {
		return nil, apperror.New(apperror.KindValidationError, "participant does not belong to this session")
	}
	if err := validateAssignedSlot(input.AssignedPlayerSlot, target); err != nil {
		return nil, err
	}

	isSecret := true
	if input.IsSecret != nil {
		isSecret = *input.IsSecret
	}

	handout := &model.Handout{
		SessionID:          session.ID,
		ParticipantID:      target.ID,
		Title:              input.Title,
		Content:            s.sanitizer.Sanitize(input.Content),
		IsSecret:           isSecret,
		HandoutNumber:      input.HandoutNumber,
		AssignedPlayerSlot: input.AssignedPlayerSlot,
	}

	var deliveries []*Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewHandoutRepository(tx).Create(ctx, handout); err != nil {
			return err
		}
		deliveries, err = s.dispatchHandoutCreated(ctx, tx, session, handout, target, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, d := range deliveries {
		s.notification.Deliver(d)
	}

	return s.handoutRepo.FindByID(ctx, handout.ID)
}

// BulkCreate creates handouts item by item; a failed item never aborts the
// rest. The caller maps the results to 201 when anything succeeded and to
// bulk_all_failed when nothing did.
func (s *handoutService) BulkCreate(ctx context.Context, actorID, sessionID uuid.UUID, inputs []CreateHandoutInput) ([]BulkHandoutResult, error) {
	if len(inputs) == 0 {
		return nil, apperror.New(apperror.KindValidationError, "bulk request contains no items")
	}

	results := make([]BulkHandoutResult, 0, len(inputs))
	anySucceeded := false
	for i, input := range inputs {
		handout, err := s.Create(ctx, actorID, sessionID, input)
		if err != nil {
			results = append(results, BulkHandoutResult{
				Index: i,
				Error: err.Error(),
				Kind:  apperror.KindOf(err),
			})
			continue
		}
		anySucceeded = true
		results = append(results, BulkHandoutResult{Index: i, Handout: handout})
	}

	if !anySucceeded {
		return results, apperror.ErrBulkAllFailed
	}
	return results, nil
}

func (s *handoutService) Get(ctx context.Context, actorID, handoutID uuid.UUID) (*model.Handout, error) {
	handout, _, env, err := s.loadHandout(ctx, actorID, handoutID)
	if err != nil {
		return nil, err
	}
	if !authz.May(authz.ActionHandoutView, env) {
		// Hidden handouts do not exist as far as the caller can tell.
		return nil, apperror.ErrNotFound
	}
	return handout, nil
}

func (s *handoutService) ListBySession(ctx context.Context, actorID, sessionID uuid.UUID) ([]model.Handout, error) {
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
	if !authz.May(authz.ActionSessionView, env) {
		return nil, apperror.ErrNotFound
	}

	scope := authz.VisibleHandoutsScope(actorID, session.GMUserID == actorID, env.ActorParticipant)
	return s.handoutRepo.ListBySession(ctx, session.ID, scope)
}

func (s *handoutService) Update(ctx context.Context, actorID, handoutID uuid.UUID, input UpdateHandoutInput) (*model.Handout, error) {
	handout, session, env, err := s.loadHandout(ctx, actorID, handoutID)
	if err != nil {
		return nil, err
	}
	if !authz.May(authz.ActionHandoutModify, env) {
		if !authz.May(authz.ActionHandoutView, env) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.ErrForbidden
	}

	if input.Title != nil {
		handout.Title = *input.Title
	}
	if input.Content != nil {
		handout.Content = s.sanitizer.Sanitize(*input.Content)
	}
	if input.HandoutNumber != nil {
		handout.HandoutNumber = input.HandoutNumber
	}
	if input.AssignedPlayerSlot != nil {
		if err := validateAssignedSlot(input.AssignedPlayerSlot, handout.Participant); err != nil {
			return nil, err
		}
		handout.AssignedPlayerSlot = input.AssignedPlayerSlot
	}

	var delivery *Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewHandoutRepository(tx).Save(ctx, handout); err != nil {
			return err
		}
		if handout.Participant == nil {
			return nil
		}
		delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationHandoutUpdated,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{handout.Participant.UserID},
			SubjectKind:  "handout",
			SubjectID:    handout.ID,
			Message:      fmt.Sprintf("Handout %q in %q was updated", handout.Title, session.Title),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notification.Deliver(delivery)

	return handout, nil
}

// ToggleVisibility flips is_secret. Revealing a handout notifies the whole
// table: handout_published for everyone who could not see it before, and
// handout_updated for the target participant who already could.
func (s *handoutService) ToggleVisibility(ctx context.Context, actorID, handoutID uuid.UUID) (*model.Handout, error) {
	handout, session, env, err := s.loadHandout(ctx, actorID, handoutID)
	if err != nil {
		return nil, err
	}
	if !authz.May(authz.ActionHandoutModify, env) {
		if !authz.May(authz.ActionHandoutView, env) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.ErrForbidden
	}

	becamePublic := handout.IsSecret
	handout.IsSecret = !handout.IsSecret

	var deliveries []*Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewHandoutRepository(tx).Save(ctx, handout); err != nil {
			return err
		}
		if !becamePublic {
			return nil
		}

		participants, err := repository.NewSessionRepository(tx).ListParticipants(ctx, session.ID)
		if err != nil {
			return err
		}

		var targetUserID uuid.UUID
		if handout.Participant != nil {
			targetUserID = handout.Participant.UserID
		}

		audience := make([]uuid.UUID, 0, len(participants))
		for _, p := range participants {
			if p.UserID == session.GMUserID || p.UserID == targetUserID {
				continue
			}
			audience = append(audience, p.UserID)
		}

		if len(audience) > 0 {
			d, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
				Type:         model.NotificationHandoutPublished,
				SenderID:     actorID,
				RecipientIDs: audience,
				SubjectKind:  "handout",
				SubjectID:    handout.ID,
				Message:      fmt.Sprintf("Handout %q in %q is now public", handout.Title, session.Title),
			})
			if err != nil {
				return err
			}
			deliveries = append(deliveries, d)
		}
		if targetUserID != uuid.Nil && targetUserID != session.GMUserID {
			d, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
				Type:         model.NotificationHandoutUpdated,
				SenderID:     actorID,
				RecipientIDs: []uuid.UUID{targetUserID},
				SubjectKind:  "handout",
				SubjectID:    handout.ID,
				Message:      fmt.Sprintf("Your handout %q in %q is now public", handout.Title, session.Title),
			})
			if err != nil {
				return err
			}
			deliveries = append(deliveries, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range deliveries {
		s.notification.Deliver(d)
	}

	return handout, nil
}

func (s *handoutService) Delete(ctx context.Context, actorID, handoutID uuid.UUID) error {
	handout, _, env, err := s.loadHandout(ctx, actorID, handoutID)
	if err != nil {
		return err
	}
	if !authz.May(authz.ActionHandoutDelete, env) {
		if !authz.May(authz.ActionHandoutView, env) {
			return apperror.ErrNotFound
		}
		return apperror.ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txAttachments := repository.NewAttachmentRepository(tx)
		attachments, err := txAttachments.ListByHandout(ctx, handout.ID)
		if err != nil {
			return err
		}
		for _, a := range attachments {
			if err := txAttachments.EnqueueOrphanBlob(ctx, a.FileURL); err != nil {
				return err
			}
		}
		return repository.NewHandoutRepository(tx).Delete(ctx, handout.ID)
	})
}

// dispatchHandoutCreated emits handout_created for the target participant and,
// when the handout starts public, handout_published for the rest of the table.
func (s *handoutService) dispatchHandoutCreated(ctx context.Context, tx *gorm.DB, session *model.Session, handout *model.Handout, target *model.Participant, actorID uuid.UUID) ([]*Delivery, error) {
	var deliveries []*Delivery

	if target.UserID != actorID {
		d, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationHandoutCreated,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{target.UserID},
			SubjectKind:  "handout",
			SubjectID:    handout.ID,
			Message:      fmt.Sprintf("You received the handout %q in %q", handout.Title, session.Title),
		})
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	if !handout.IsSecret {
		participants, err := repository.NewSessionRepository(tx).ListParticipants(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		audience := make([]uuid.UUID, 0, len(participants))
		for _, p := range participants {
			if p.UserID == session.GMUserID || p.UserID == target.UserID {
				continue
			}
			audience = append(audience, p.UserID)
		}
		if len(audience) > 0 {
			d, err := s.notification.DispatchTx(ctx, tx, NotificationEvent{
				Type:         model.NotificationHandoutPublished,
				SenderID:     actorID,
				RecipientIDs: audience,
				SubjectKind:  "handout",
				SubjectID:    handout.ID,
				Message:      fmt.Sprintf("A public handout %q was added to %q", handout.Title, session.Title),
			})
			if err != nil {
				return nil, err
			}
			deliveries = append(deliveries, d)
		}
	}

	return deliveries, nil
}

// validateAssignedSlot enforces that a slot-targeted handout points at the
// slot its target participant actually holds. The slot may drift later when
// the roster changes; visibility then follows whoever holds the slot.
func validateAssignedSlot(assigned *int, target *model.Participant) error {
	if assigned == nil {
		return nil
	}
	if target == nil || target.PlayerSlot == nil || *assigned != *target.PlayerSlot {
		return apperror.New(apperror.KindValidationError,
			"assigned_player_slot must match the target participant's slot")
	}
	return nil
}

// loadHandout resolves a handout plus the authz facts for its session.
func (s *handoutService) loadHandout(ctx context.Context, actorID, handoutID uuid.UUID) (*model.Handout, *model.Session, authz.Env, error) {
	handout, err := s.handoutRepo.FindByID(ctx, handoutID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, authz.Env{}, apperror.ErrNotFound
		}
		return nil, nil, authz.Env{}, err
	}

	session, err := s.sessionRepo.FindByID(ctx, handout.SessionID)
	if err != nil {
		return nil, nil, authz.Env{}, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, nil, authz.Env{}, err
	}
	env.Handout = handout
	return handout, session, env, nil
}
