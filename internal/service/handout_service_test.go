package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/internal/testutil"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

func newHandoutService(t *testing.T, db *gorm.DB) HandoutService {
	t.Helper()
	notif := NewNotificationService(repository.NewNotificationRepository(db), repository.NewUserRepository(db), nil, nil)
	return NewHandoutService(db,
		repository.NewHandoutRepository(db),
		repository.NewSessionRepository(db),
		repository.NewGroupRepository(db),
		repository.NewAttachmentRepository(db),
		notif)
}

func TestCreateHandoutIsGMOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	outsider := testutil.CreateUser(t, db, "outsider")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)

	input := CreateHandoutInput{ParticipantID: p.ID, Title: "Old letter"}

	// A participant who can view the session gets a plain denial.
	_, err := svc.Create(context.Background(), player.ID, session.ID, input)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// Someone who cannot even view the session learns nothing.
	_, err = svc.Create(context.Background(), outsider.ID, session.ID, input)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	handout, err := svc.Create(context.Background(), gm.ID, session.ID, input)
	require.NoError(t, err)
	assert.True(t, handout.IsSecret, "handouts default to secret")
}

func TestCreateHandoutSanitizesContent(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)
	var gmParticipant model.Participant
	require.NoError(t, db.First(&gmParticipant, "session_id = ? AND user_id = ?", session.ID, gm.ID).Error)

	handout, err := svc.Create(context.Background(), gm.ID, session.ID, CreateHandoutInput{
		ParticipantID: gmParticipant.ID,
		Title:         "Diary",
		Content:       `<p>Day one.</p><script>alert("x")</script>`,
	})
	require.NoError(t, err)
	assert.Contains(t, handout.Content, "Day one.")
	assert.NotContains(t, handout.Content, "<script>")
}

func TestHandoutVisibility(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	target := testutil.CreateUser(t, db, "target")
	slotHolder := testutil.CreateUser(t, db, "slot")
	bystander := testutil.CreateUser(t, db, "bystander")
	outsider := testutil.CreateUser(t, db, "outsider")
	group := testutil.CreateGroup(t, db, gm, target, slotHolder, bystander)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	targetP := testutil.AddParticipant(t, db, session, target, testutil.IntPtr(1))
	holderP := testutil.AddParticipant(t, db, session, slotHolder, testutil.IntPtr(2))
	testutil.AddParticipant(t, db, session, bystander, nil)

	secret := testutil.CreateHandout(t, db, session, targetP, true)
	public := testutil.CreateHandout(t, db, session, targetP, false)
	slotted := &model.Handout{
		SessionID:          session.ID,
		ParticipantID:      targetP.ID,
		Title:              "For the first slot",
		Content:            "x",
		IsSecret:           true,
		AssignedPlayerSlot: testutil.IntPtr(1),
	}
	require.NoError(t, db.Create(slotted).Error)

	// The roster shifts after creation: target moves to slot 3 and slotHolder
	// takes over slot 1. Slot-targeted visibility follows the slot.
	require.NoError(t, db.Model(&model.Participant{}).
		Where("id = ?", targetP.ID).Update("player_slot", 3).Error)
	require.NoError(t, db.Model(&model.Participant{}).
		Where("id = ?", holderP.ID).Update("player_slot", 1).Error)

	list := func(actor uuid.UUID) []uuid.UUID {
		handouts, err := svc.ListBySession(context.Background(), actor, session.ID)
		require.NoError(t, err)
		ids := make([]uuid.UUID, 0, len(handouts))
		for _, h := range handouts {
			ids = append(ids, h.ID)
		}
		return ids
	}

	assert.ElementsMatch(t, []uuid.UUID{secret.ID, public.ID, slotted.ID}, list(gm.ID))
	assert.ElementsMatch(t, []uuid.UUID{secret.ID, public.ID, slotted.ID}, list(target.ID))
	assert.ElementsMatch(t, []uuid.UUID{public.ID, slotted.ID}, list(slotHolder.ID))
	assert.ElementsMatch(t, []uuid.UUID{public.ID}, list(bystander.ID))

	_, err := svc.ListBySession(context.Background(), outsider.ID, session.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Detail reads agree with the list.
	_, err = svc.Get(context.Background(), bystander.ID, secret.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	got, err := svc.Get(context.Background(), slotHolder.ID, slotted.ID)
	require.NoError(t, err)
	assert.Equal(t, slotted.ID, got.ID)
}

func TestAssignedSlotMustMatchTarget(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	slotted := testutil.CreateUser(t, db, "slotted")
	slotless := testutil.CreateUser(t, db, "slotless")
	group := testutil.CreateGroup(t, db, gm, slotted, slotless)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	slottedP := testutil.AddParticipant(t, db, session, slotted, testutil.IntPtr(1))
	slotlessP := testutil.AddParticipant(t, db, session, slotless, nil)

	_, err := svc.Create(context.Background(), gm.ID, session.ID, CreateHandoutInput{
		ParticipantID:      slottedP.ID,
		Title:              "wrong slot",
		AssignedPlayerSlot: testutil.IntPtr(5),
	})
	assert.Equal(t, apperror.KindValidationError, apperror.KindOf(err))

	_, err = svc.Create(context.Background(), gm.ID, session.ID, CreateHandoutInput{
		ParticipantID:      slotlessP.ID,
		Title:              "target holds no slot",
		AssignedPlayerSlot: testutil.IntPtr(1),
	})
	assert.Equal(t, apperror.KindValidationError, apperror.KindOf(err))

	handout, err := svc.Create(context.Background(), gm.ID, session.ID, CreateHandoutInput{
		ParticipantID:      slottedP.ID,
		Title:              "matching slot",
		AssignedPlayerSlot: testutil.IntPtr(1),
	})
	require.NoError(t, err)
	require.NotNil(t, handout.AssignedPlayerSlot)
	assert.Equal(t, 1, *handout.AssignedPlayerSlot)

	// The update path enforces the same rule.
	_, err = svc.Update(context.Background(), gm.ID, handout.ID, UpdateHandoutInput{
		AssignedPlayerSlot: testutil.IntPtr(2),
	})
	assert.Equal(t, apperror.KindValidationError, apperror.KindOf(err))
}

func TestToggleVisibilityNotifiesTable(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	target := testutil.CreateUser(t, db, "target")
	other := testutil.CreateUser(t, db, "other")
	group := testutil.CreateGroup(t, db, gm, target, other)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	targetP := testutil.AddParticipant(t, db, session, target, nil)
	testutil.AddParticipant(t, db, session, other, nil)

	handout := testutil.CreateHandout(t, db, session, targetP, true)

	toggled, err := svc.ToggleVisibility(context.Background(), gm.ID, handout.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsSecret)

	var published []model.Notification
	require.NoError(t, db.Where("type = ?", model.NotificationHandoutPublished).Find(&published).Error)
	require.Len(t, published, 1)
	assert.Equal(t, other.ID, published[0].RecipientID)

	var updated []model.Notification
	require.NoError(t, db.Where("type = ?", model.NotificationHandoutUpdated).Find(&updated).Error)
	require.Len(t, updated, 1)
	assert.Equal(t, target.ID, updated[0].RecipientID)

	// Toggling back to secret is silent.
	toggled, err = svc.ToggleVisibility(context.Background(), gm.ID, handout.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsSecret)

	var count int64
	db.Model(&model.Notification{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestBulkCreatePartialFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)

	results, err := svc.BulkCreate(context.Background(), gm.ID, session.ID, []CreateHandoutInput{
		{ParticipantID: p.ID, Title: "ok"},
		{ParticipantID: uuid.New(), Title: "bad target"},
	})
	require.NoError(t, err, "partial success is not an error")
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Handout)
	assert.Nil(t, results[1].Handout)
	assert.Equal(t, apperror.KindValidationError, results[1].Kind)
}

func TestBulkCreateAllFailed(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	results, err := svc.BulkCreate(context.Background(), gm.ID, session.ID, []CreateHandoutInput{
		{ParticipantID: uuid.New(), Title: "a"},
		{ParticipantID: uuid.New(), Title: "b"},
	})
	assert.ErrorIs(t, err, apperror.ErrBulkAllFailed)
	require.Len(t, results, 2, "per-item results still come back")
	for _, r := range results {
		assert.Nil(t, r.Handout)
		assert.NotEmpty(t, r.Kind)
	}
}

func TestDeleteHandoutQueuesBlobs(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newHandoutService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)
	handout := testutil.CreateHandout(t, db, session, p, true)

	attachment := &model.Attachment{
		HandoutID:        handout.ID,
		UploaderID:       gm.ID,
		FileURL:          "https://cdn.example.com/map.png",
		StoragePath:      "handouts/map.png",
		OriginalFilename: "map.png",
		ContentType:      "image/png",
		FileType:         model.FileTypeImage,
		SizeBytes:        1024,
	}
	require.NoError(t, db.Create(attachment).Error)

	// Players cannot delete handouts.
	err := svc.Delete(context.Background(), player.ID, handout.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), gm.ID, handout.ID))

	var handoutCount, attachmentCount int64
	db.Model(&model.Handout{}).Where("id = ?", handout.ID).Count(&handoutCount)
	db.Model(&model.Attachment{}).Where("handout_id = ?", handout.ID).Count(&attachmentCount)
	assert.Zero(t, handoutCount)
	assert.Zero(t, attachmentCount)

	var orphans []model.OrphanBlob
	require.NoError(t, db.Find(&orphans).Error)
	require.Len(t, orphans, 1)
	assert.Equal(t, attachment.FileURL, orphans[0].FileURL)
}
