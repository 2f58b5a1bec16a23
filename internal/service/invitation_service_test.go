package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/internal/testutil"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

func newInvitationService(t *testing.T, db *gorm.DB) InvitationService {
	t.Helper()
	notif := NewNotificationService(repository.NewNotificationRepository(db), repository.NewUserRepository(db), nil, nil)
	return NewInvitationService(db,
		repository.NewInvitationRepository(db),
		repository.NewSessionRepository(db),
		repository.NewGroupRepository(db),
		repository.NewUserRepository(db),
		notif)
}

func TestInviteIsGMOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	invitee := testutil.CreateUser(t, db, "invitee")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	testutil.AddParticipant(t, db, session, player, nil)

	_, err := svc.Invite(context.Background(), player.ID, session.ID, InviteInput{InviteeID: invitee.ID})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	invitation, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: invitee.ID})
	require.NoError(t, err)
	assert.Equal(t, model.InvitationPending, invitation.Status)

	var notifications []model.Notification
	require.NoError(t, db.Where("type = ?", model.NotificationSessionInvitation).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, invitee.ID, notifications[0].RecipientID)
}

func TestInviteExistingParticipant(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	testutil.AddParticipant(t, db, session, player, nil)

	_, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: player.ID})
	assert.ErrorIs(t, err, apperror.ErrAlreadyParticipant)
}

func TestAcceptInvitation(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	invitee := testutil.CreateUser(t, db, "invitee")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	invitation, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: invitee.ID})
	require.NoError(t, err)

	// Only the invitee may respond.
	_, err = svc.Accept(context.Background(), gm.ID, invitation.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	participant, err := svc.Accept(context.Background(), invitee.ID, invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, invitee.ID, participant.UserID)
	assert.Equal(t, model.ParticipantRolePlayer, participant.Role)

	// Responding twice hits the compare-and-set.
	_, err = svc.Accept(context.Background(), invitee.ID, invitation.ID)
	assert.ErrorIs(t, err, apperror.ErrInvitationNotPending)
}

func TestDeclineInvitation(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	invitee := testutil.CreateUser(t, db, "invitee")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	invitation, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: invitee.ID})
	require.NoError(t, err)

	require.NoError(t, svc.Decline(context.Background(), invitee.ID, invitation.ID))

	var stored model.SessionInvitation
	require.NoError(t, db.First(&stored, "id = ?", invitation.ID).Error)
	assert.Equal(t, model.InvitationDeclined, stored.Status)
	assert.NotNil(t, stored.RespondedAt)

	// Declining does not add the invitee to the roster.
	var count int64
	db.Model(&model.Participant{}).Where("session_id = ? AND user_id = ?", session.ID, invitee.ID).Count(&count)
	assert.Zero(t, count)
}

func TestExpiredInvitationCannotBeAccepted(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	invitee := testutil.CreateUser(t, db, "invitee")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	invitation, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: invitee.ID})
	require.NoError(t, err)

	// Age the invitation past the window.
	stale := time.Now().Add(-model.InvitationExpiryWindow - time.Hour)
	require.NoError(t, db.Model(&model.SessionInvitation{}).
		Where("id = ?", invitation.ID).
		Update("created_at", stale).Error)

	_, err = svc.Accept(context.Background(), invitee.ID, invitation.ID)
	assert.ErrorIs(t, err, apperror.ErrInvitationExpired)

	var stored model.SessionInvitation
	require.NoError(t, db.First(&stored, "id = ?", invitation.ID).Error)
	assert.Equal(t, model.InvitationExpired, stored.Status, "expiry is recorded inline")
}

func TestExpireStaleSweep(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newInvitationService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	old, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: a.ID})
	require.NoError(t, err)
	fresh, err := svc.Invite(context.Background(), gm.ID, session.ID, InviteInput{InviteeID: b.ID})
	require.NoError(t, err)

	stale := time.Now().Add(-model.InvitationExpiryWindow - time.Hour)
	require.NoError(t, db.Model(&model.SessionInvitation{}).
		Where("id = ?", old.ID).
		Update("created_at", stale).Error)

	expired, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	var stored model.SessionInvitation
	require.NoError(t, db.First(&stored, "id = ?", fresh.ID).Error)
	assert.Equal(t, model.InvitationPending, stored.Status)
}
