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

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

func newNotificationService(db *gorm.DB, mail *recordingMailer) NotificationService {
	if mail == nil {
		return NewNotificationService(repository.NewNotificationRepository(db), repository.NewUserRepository(db), nil, nil)
	}
	return NewNotificationService(repository.NewNotificationRepository(db), repository.NewUserRepository(db), nil, mail)
}

func dispatch(t *testing.T, db *gorm.DB, svc NotificationService, event NotificationEvent) *Delivery {
	t.Helper()
	var delivery *Delivery
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		delivery, err = svc.DispatchTx(context.Background(), tx, event)
		return err
	})
	require.NoError(t, err)
	return delivery
}

func TestDispatchHonorsChannelPreferences(t *testing.T) {
	db := testutil.NewTestDB(t)
	mail := &recordingMailer{}
	svc := newNotificationService(db, mail)
	sender := testutil.CreateUser(t, db, "sender")
	inAppOnly := testutil.CreateUser(t, db, "inapp")
	emailOnly := testutil.CreateUser(t, db, "email")
	muted := testutil.CreateUser(t, db, "muted")

	emailPrefs := model.DefaultNotificationPreferences(emailOnly.ID)
	emailPrefs.SessionInApp = false
	emailPrefs.SessionEmail = true
	require.NoError(t, db.Create(&emailPrefs).Error)

	mutedPrefs := model.DefaultNotificationPreferences(muted.ID)
	mutedPrefs.SessionInApp = false
	require.NoError(t, db.Create(&mutedPrefs).Error)

	delivery := dispatch(t, db, svc, NotificationEvent{
		Type:         model.NotificationSessionReminder,
		SenderID:     sender.ID,
		RecipientIDs: []uuid.UUID{inAppOnly.ID, emailOnly.ID, muted.ID},
		SubjectKind:  "session",
		SubjectID:    uuid.New(),
		Message:      "starting soon",
	})

	// Only the in-app recipient gets an inbox row.
	require.Len(t, delivery.Notifications, 1)
	assert.Equal(t, inAppOnly.ID, delivery.Notifications[0].RecipientID)

	var count int64
	db.Model(&model.Notification{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// The email-only recipient gets exactly one mail on delivery.
	svc.Deliver(delivery)
	assert.Equal(t, []string{emailOnly.Email}, mail.sent)
}

func TestMarkAsReadIsRecipientScoped(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newNotificationService(db, nil)
	sender := testutil.CreateUser(t, db, "sender")
	recipient := testutil.CreateUser(t, db, "recipient")
	other := testutil.CreateUser(t, db, "other")

	delivery := dispatch(t, db, svc, NotificationEvent{
		Type:         model.NotificationHandoutCreated,
		SenderID:     sender.ID,
		RecipientIDs: []uuid.UUID{recipient.ID},
		SubjectKind:  "handout",
		SubjectID:    uuid.New(),
		Message:      "new handout",
	})
	require.Len(t, delivery.Notifications, 1)
	id := delivery.Notifications[0].ID

	// Someone else's inbox cannot touch it.
	err := svc.MarkAsRead(context.Background(), other.ID, id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, svc.MarkAsRead(context.Background(), recipient.ID, id))

	var stored model.Notification
	require.NoError(t, db.First(&stored, "id = ?", id).Error)
	assert.True(t, stored.IsRead)
	assert.NotNil(t, stored.ReadAt)

	// Marking twice stays fine.
	assert.NoError(t, svc.MarkAsRead(context.Background(), recipient.ID, id))
}

func TestMarkAllAsReadAndUnreadCount(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newNotificationService(db, nil)
	sender := testutil.CreateUser(t, db, "sender")
	recipient := testutil.CreateUser(t, db, "recipient")

	for i := 0; i < 3; i++ {
		dispatch(t, db, svc, NotificationEvent{
			Type:         model.NotificationHandoutUpdated,
			SenderID:     sender.ID,
			RecipientIDs: []uuid.UUID{recipient.ID},
			SubjectKind:  "handout",
			SubjectID:    uuid.New(),
			Message:      "update",
		})
	}

	unread, err := svc.UnreadCount(context.Background(), recipient.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	list, err := svc.List(context.Background(), recipient.ID, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, svc.MarkAllAsRead(context.Background(), recipient.ID))

	unread, err = svc.UnreadCount(context.Background(), recipient.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestPreferencesDefaultAndUpdate(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newNotificationService(db, nil)
	user := testutil.CreateUser(t, db, "user")

	// No row yet: the defaults come back.
	prefs, err := svc.GetPreferences(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, prefs.HandoutInApp)
	assert.False(t, prefs.HandoutEmail)

	updated := *prefs
	updated.HandoutInApp = false
	updated.HandoutEmail = true
	saved, err := svc.UpdatePreferences(context.Background(), user.ID, updated)
	require.NoError(t, err)
	assert.True(t, saved.HandoutEmail)

	roundTrip, err := svc.GetPreferences(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, roundTrip.HandoutInApp)
	assert.True(t, roundTrip.HandoutEmail)
}

func TestPreferencesCannotDisableEverything(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newNotificationService(db, nil)
	user := testutil.CreateUser(t, db, "user")

	_, err := svc.UpdatePreferences(context.Background(), user.ID, model.NotificationPreferences{})
	assert.Equal(t, apperror.KindValidationError, apperror.KindOf(err))
}
