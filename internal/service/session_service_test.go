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

func newSessionService(t *testing.T, db *gorm.DB) SessionService {
	t.Helper()
	notif := NewNotificationService(repository.NewNotificationRepository(db), repository.NewUserRepository(db), nil, nil)
	return NewSessionService(db,
		repository.NewSessionRepository(db),
		repository.NewGroupRepository(db),
		repository.NewUserRepository(db),
		notif, nil, 0)
}

func TestCreateSessionRequiresGroupMembership(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	outsider := testutil.CreateUser(t, db, "outsider")
	group := testutil.CreateGroup(t, db, gm)

	_, err := svc.Create(context.Background(), outsider.ID, CreateSessionInput{
		Title:      "Shadow over the lake",
		GroupID:    group.ID,
		Visibility: "private",
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	session, err := svc.Create(context.Background(), gm.ID, CreateSessionInput{
		Title:      "Shadow over the lake",
		GroupID:    group.ID,
		Visibility: "private",
	})
	require.NoError(t, err)
	require.Len(t, session.Participants, 1)
	assert.Equal(t, model.ParticipantRoleGM, session.Participants[0].Role)
	assert.NotEmpty(t, session.ShareToken)
}

func TestGetHidesPrivateSessions(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	stranger := testutil.CreateUser(t, db, "stranger")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityPrivate)

	_, err := svc.Get(context.Background(), stranger.ID, session.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "hidden sessions read as absent")

	got, err := svc.Get(context.Background(), gm.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestJoinIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)

	p1, created, err := svc.Join(context.Background(), player.ID, session.ID, JoinSessionInput{})
	require.NoError(t, err)
	assert.True(t, created)

	p2, created, err := svc.Join(context.Background(), player.ID, session.ID, JoinSessionInput{
		PlayerSlot: testutil.IntPtr(2),
	})
	require.NoError(t, err)
	assert.False(t, created, "repeat join updates in place")
	assert.Equal(t, p1.ID, p2.ID)
	require.NotNil(t, p2.PlayerSlot)
	assert.Equal(t, 2, *p2.PlayerSlot)
}

func TestJoinDeniedIsForbidden(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	stranger := testutil.CreateUser(t, db, "stranger")
	group := testutil.CreateGroup(t, db, gm)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)

	_, _, err := svc.Join(context.Background(), stranger.ID, session.ID, JoinSessionInput{})
	assert.ErrorIs(t, err, apperror.ErrForbidden, "join denial is forbidden, not not_found")
}

func TestJoinTakenSlot(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	first := testutil.CreateUser(t, db, "first")
	second := testutil.CreateUser(t, db, "second")
	group := testutil.CreateGroup(t, db, gm, first, second)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)

	_, _, err := svc.Join(context.Background(), first.ID, session.ID, JoinSessionInput{PlayerSlot: testutil.IntPtr(1)})
	require.NoError(t, err)

	_, _, err = svc.Join(context.Background(), second.ID, session.ID, JoinSessionInput{PlayerSlot: testutil.IntPtr(1)})
	assert.ErrorIs(t, err, apperror.ErrSlotTaken)

	// The loser can still take a free slot.
	_, created, err := svc.Join(context.Background(), second.ID, session.ID, JoinSessionInput{PlayerSlot: testutil.IntPtr(2)})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestJoinRejectsForeignCharacterSheet(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	owner := testutil.CreateUser(t, db, "owner")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)

	sheet := &model.CharacterSheet{OwnerID: owner.ID, Name: "Harvey", Edition: model.SheetEditionCoC7}
	require.NoError(t, db.Create(sheet).Error)

	_, _, err := svc.Join(context.Background(), player.ID, session.ID, JoinSessionInput{
		CharacterSheetID: &sheet.ID,
	})
	assert.ErrorIs(t, err, apperror.ErrCharacterSheetNotOwned)
}

func TestStatusTransitions(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	testutil.AddParticipant(t, db, session, player, nil)

	ongoing := "ongoing"
	updated, err := svc.Update(context.Background(), gm.ID, session.ID, UpdateSessionInput{Status: &ongoing})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusOngoing, updated.Status)

	planned := "planned"
	_, err = svc.Update(context.Background(), gm.ID, session.ID, UpdateSessionInput{Status: &planned})
	assert.ErrorIs(t, err, apperror.ErrConflict, "status machine is monotonic")

	completed := "completed"
	updated, err = svc.Update(context.Background(), gm.ID, session.ID, UpdateSessionInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, updated.Status)

	var histories []model.PlayHistory
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&histories).Error)
	assert.Len(t, histories, 2, "one history row per participant")

	cancelled := "cancelled"
	_, err = svc.Update(context.Background(), gm.ID, session.ID, UpdateSessionInput{Status: &cancelled})
	assert.ErrorIs(t, err, apperror.ErrConflict, "completed is terminal")
}

func TestCancelledSessionNotifiesPlayers(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	testutil.AddParticipant(t, db, session, player, nil)

	cancelled := "cancelled"
	_, err := svc.Update(context.Background(), gm.ID, session.ID, UpdateSessionInput{Status: &cancelled})
	require.NoError(t, err)

	var notifications []model.Notification
	require.NoError(t, db.Where("type = ?", model.NotificationSessionCancelled).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, player.ID, notifications[0].RecipientID, "the GM does not notify themselves")
}

func TestUpdateParticipantRules(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)

	// A player cannot promote themselves.
	gmRole := "gm"
	_, err := svc.UpdateParticipant(context.Background(), player.ID, session.ID, p.ID, UpdateParticipantInput{Role: &gmRole})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// The GM can.
	updated, err := svc.UpdateParticipant(context.Background(), gm.ID, session.ID, p.ID, UpdateParticipantInput{Role: &gmRole})
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantRoleGM, updated.Role)

	// Players update their own character fields.
	name := "Prof. Armitage"
	updated, err = svc.UpdateParticipant(context.Background(), player.ID, session.ID, p.ID, UpdateParticipantInput{CharacterName: &name})
	require.NoError(t, err)
	require.NotNil(t, updated.CharacterName)
	assert.Equal(t, name, *updated.CharacterName)
}

func TestAtMostOneCoGM(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	first := testutil.CreateUser(t, db, "first")
	second := testutil.CreateUser(t, db, "second")
	group := testutil.CreateGroup(t, db, gm, first, second)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p1 := testutil.AddParticipant(t, db, session, first, nil)
	p2 := testutil.AddParticipant(t, db, session, second, nil)

	gmRole := "gm"
	_, err := svc.UpdateParticipant(context.Background(), gm.ID, session.ID, p1.ID, UpdateParticipantInput{Role: &gmRole})
	require.NoError(t, err)

	_, err = svc.UpdateParticipant(context.Background(), gm.ID, session.ID, p2.ID, UpdateParticipantInput{Role: &gmRole})
	assert.ErrorIs(t, err, apperror.ErrConflict, "only one co-GM besides the session GM")

	// Demoting the co-GM frees the seat.
	playerRole := "player"
	_, err = svc.UpdateParticipant(context.Background(), gm.ID, session.ID, p1.ID, UpdateParticipantInput{Role: &playerRole})
	require.NoError(t, err)
	_, err = svc.UpdateParticipant(context.Background(), gm.ID, session.ID, p2.ID, UpdateParticipantInput{Role: &gmRole})
	require.NoError(t, err)
}

func TestMainGMCannotBeRemoved(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)

	var gmParticipant model.Participant
	require.NoError(t, db.First(&gmParticipant, "session_id = ? AND user_id = ?", session.ID, gm.ID).Error)

	err := svc.RemoveParticipant(context.Background(), gm.ID, session.ID, gmParticipant.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// A player cannot remove another participant, but can leave.
	err = svc.RemoveParticipant(context.Background(), player.ID, session.ID, gmParticipant.ID)
	assert.Error(t, err)
	require.NoError(t, svc.RemoveParticipant(context.Background(), player.ID, session.ID, p.ID))
}

func TestDeleteSessionCascades(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)
	handout := testutil.CreateHandout(t, db, session, p, true)

	attachment := &model.Attachment{
		HandoutID:        handout.ID,
		UploaderID:       gm.ID,
		FileURL:          "https://cdn.example.com/blob.png",
		StoragePath:      "handouts/x/y/blob.png",
		OriginalFilename: "blob.png",
		ContentType:      "image/png",
		FileType:         model.FileTypeImage,
		SizeBytes:        100,
	}
	require.NoError(t, db.Create(attachment).Error)

	require.NoError(t, svc.Delete(context.Background(), gm.ID, session.ID))

	var count int64
	db.Model(&model.Participant{}).Where("session_id = ?", session.ID).Count(&count)
	assert.Zero(t, count, "participants cascade")
	db.Model(&model.Handout{}).Where("session_id = ?", session.ID).Count(&count)
	assert.Zero(t, count, "handouts cascade")
	db.Model(&model.Attachment{}).Where("handout_id = ?", handout.ID).Count(&count)
	assert.Zero(t, count, "attachments cascade")

	var orphans []model.OrphanBlob
	require.NoError(t, db.Find(&orphans).Error)
	require.Len(t, orphans, 1, "blob queued for sweep")
	assert.Equal(t, attachment.FileURL, orphans[0].FileURL)
}

func TestSendDueReminders(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newSessionService(t, db)
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	testutil.AddParticipant(t, db, session, player, nil)

	// Pull the session inside the reminder window.
	require.NoError(t, db.Model(&model.Session{}).Where("id = ?", session.ID).
		Update("scheduled_at", time.Now().Add(time.Hour)).Error)

	require.NoError(t, svc.SendDueReminders(context.Background()))

	var notifications []model.Notification
	require.NoError(t, db.Where("type = ?", model.NotificationSessionReminder).Find(&notifications).Error)
	assert.Len(t, notifications, 2, "reminders include the GM")

	// A second run is a no-op.
	require.NoError(t, svc.SendDueReminders(context.Background()))
	require.NoError(t, db.Where("type = ?", model.NotificationSessionReminder).Find(&notifications).Error)
	assert.Len(t, notifications, 2)
}
