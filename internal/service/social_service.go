package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

type CreateGroupInput struct {
	Name       string `json:"name" binding:"required,max=100"`
	Visibility string `json:"visibility" binding:"required,oneof=private group-internal public"`
}

type GroupInviteInput struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type FriendRequestInput struct {
	ToUserID uuid.UUID `json:"to_user_id" binding:"required"`
}

type SocialService interface {
	CreateGroup(ctx context.Context, actorID uuid.UUID, input CreateGroupInput) (*model.Group, error)
	GetGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.Group, error)
	InviteToGroup(ctx context.Context, actorID, groupID uuid.UUID, input GroupInviteInput) error
	JoinGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.GroupMembership, error)

	SendFriendRequest(ctx context.Context, actorID uuid.UUID, input FriendRequestInput) (*model.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, actorID, requestID uuid.UUID) error
}

type socialService struct {
	db           *gorm.DB
	groupRepo    repository.GroupRepository
	socialRepo   repository.SocialRepository
	userRepo     repository.UserRepository
	notification NotificationService
}

func NewSocialService(db *gorm.DB, groupRepo repository.GroupRepository, socialRepo repository.SocialRepository, userRepo repository.UserRepository, notification NotificationService) SocialService {
	return &socialService{
		db:           db,
		groupRepo:    groupRepo,
		socialRepo:   socialRepo,
		userRepo:     userRepo,
		notification: notification,
	}
}

func (s *socialService) CreateGroup(ctx context.Context, actorID uuid.UUID, input CreateGroupInput) (*model.Group, error) {
	group := &model.Group{
		Name:       input.Name,
		Visibility: model.GroupVisibility(input.Visibility),
		CreatorID:  actorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewGroupRepository(tx)
		if err := txRepo.Create(ctx, group); err != nil {
			return err
		}
		return txRepo.AddMember(ctx, &model.GroupMembership{
			GroupID: group.ID,
			UserID:  actorID,
			Role:    model.GroupRoleAdmin,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.groupRepo.FindByID(ctx, group.ID)
}

func (s *socialService) GetGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.Group, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	if group.Visibility != model.GroupVisibilityPublic {
		isMember, err := s.groupRepo.IsMember(ctx, group.ID, actorID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, apperror.ErrNotFound
		}
	}
	return group, nil
}

func (s *socialService) InviteToGroup(ctx context.Context, actorID, groupID uuid.UUID, input GroupInviteInput) error {
	group, err := s.GetGroup(ctx, actorID, groupID)
	if err != nil {
		return err
	}

	membership, err := s.groupRepo.FindMembership(ctx, group.ID, actorID)
	if err != nil {
		return err
	}
	if membership == nil || membership.Role != model.GroupRoleAdmin {
		return apperror.ErrForbidden
	}

	invitee, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		if isNotFound(err) {
			return apperror.New(apperror.KindValidationError, "user does not exist")
		}
		return err
	}

	alreadyIn, err := s.groupRepo.IsMember(ctx, group.ID, invitee.ID)
	if err != nil {
		return err
	}
	if alreadyIn {
		return apperror.New(apperror.KindConflict, "user is already a member of this group")
	}

	var delivery *Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationGroupInvitation,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{invitee.ID},
			SubjectKind:  "group",
			SubjectID:    group.ID,
			Message:      fmt.Sprintf("You are invited to join the group %q", group.Name),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.notification.Deliver(delivery)
	return nil
}

func (s *socialService) JoinGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.GroupMembership, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	// Self-joining is open only for public groups; the rest require an admin
	// invitation, which arrives as a group_invitation notification.
	if group.Visibility != model.GroupVisibilityPublic {
		return nil, apperror.ErrForbidden
	}

	membership := &model.GroupMembership{
		GroupID: group.ID,
		UserID:  actorID,
		Role:    model.GroupRoleMember,
	}
	if err := s.groupRepo.AddMember(ctx, membership); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.New(apperror.KindConflict, "you are already a member of this group")
		}
		return nil, err
	}
	return membership, nil
}

func (s *socialService) SendFriendRequest(ctx context.Context, actorID uuid.UUID, input FriendRequestInput) (*model.FriendRequest, error) {
	if input.ToUserID == actorID {
		return nil, apperror.New(apperror.KindValidationError, "you cannot send a friend request to yourself")
	}

	if _, err := s.userRepo.FindByID(ctx, input.ToUserID); err != nil {
		if isNotFound(err) {
			return nil, apperror.New(apperror.KindValidationError, "user does not exist")
		}
		return nil, err
	}

	friends, err := s.socialRepo.AreFriends(ctx, actorID, input.ToUserID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, apperror.New(apperror.KindConflict, "you are already friends")
	}

	request := &model.FriendRequest{
		FromUserID: actorID,
		ToUserID:   input.ToUserID,
		Status:     model.FriendRequestPending,
	}

	var delivery *Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewSocialRepository(tx).CreateFriendRequest(ctx, request); err != nil {
			if isUniqueViolation(err) {
				return apperror.New(apperror.KindConflict, "a friend request to this user already exists")
			}
			return err
		}
		delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationFriendRequest,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{input.ToUserID},
			SubjectKind:  "friend_request",
			SubjectID:    request.ID,
			Message:      "You received a friend request",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notification.Deliver(delivery)

	return request, nil
}

func (s *socialService) AcceptFriendRequest(ctx context.Context, actorID, requestID uuid.UUID) error {
	request, err := s.socialRepo.FindFriendRequest(ctx, requestID)
	if err != nil {
		if isNotFound(err) {
			return apperror.ErrNotFound
		}
		return err
	}
	if request.ToUserID != actorID {
		return apperror.ErrForbidden
	}
	if request.Status != model.FriendRequestPending {
		return apperror.New(apperror.KindConflict, "friend request is no longer pending")
	}

	var delivery *Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := repository.NewSocialRepository(tx)
		won, err := txRepo.TransitionFriendRequest(ctx, request.ID,
			model.FriendRequestPending, model.FriendRequestAccepted, time.Now())
		if err != nil {
			return err
		}
		if !won {
			return apperror.New(apperror.KindConflict, "friend request is no longer pending")
		}
		if err := txRepo.CreateFriendship(ctx, request.FromUserID, request.ToUserID); err != nil {
			if !isUniqueViolation(err) {
				return err
			}
		}
		delivery, err = s.notification.DispatchTx(ctx, tx, NotificationEvent{
			Type:         model.NotificationFriendRequestAccepted,
			SenderID:     actorID,
			RecipientIDs: []uuid.UUID{request.FromUserID},
			SubjectKind:  "friend_request",
			SubjectID:    request.ID,
			Message:      "Your friend request was accepted",
		})
		return err
	})
	if err != nil {
		return err
	}
	s.notification.Deliver(delivery)
	return nil
}
