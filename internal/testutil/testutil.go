package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trpgsessionhub/server/internal/model"
)

// NewTestDB opens an isolated in-memory sqlite database with the full schema
// migrated. Foreign keys are enforced so cascade tests are meaningful.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache memory DB keeps every pooled connection on the
	// same database; the name isolates parallel tests from each other.
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.User{},
		&model.FriendRequest{},
		&model.Friendship{},
		&model.Group{},
		&model.GroupMembership{},
		&model.CharacterSheet{},
		&model.Scenario{},
		&model.Session{},
		&model.Participant{},
		&model.PlayHistory{},
		&model.SessionInvitation{},
		&model.Handout{},
		&model.Attachment{},
		&model.Notification{},
		&model.NotificationPreferences{},
		&model.OrphanBlob{},
	)
	require.NoError(t, err, "failed to migrate test schema")

	return db
}

// CreateUser inserts a user with unique credentials.
func CreateUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     name + "-" + uuid.NewString()[:8],
		Email:        name + "-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
		DisplayName:  name,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateGroup inserts a group with the creator as admin member.
func CreateGroup(t *testing.T, db *gorm.DB, creator *model.User, members ...*model.User) *model.Group {
	t.Helper()
	group := &model.Group{
		Name:       "table-" + uuid.NewString()[:8],
		Visibility: model.GroupVisibilityPrivate,
		CreatorID:  creator.ID,
	}
	require.NoError(t, db.Create(group).Error)
	require.NoError(t, db.Create(&model.GroupMembership{
		GroupID: group.ID,
		UserID:  creator.ID,
		Role:    model.GroupRoleAdmin,
	}).Error)
	for _, m := range members {
		require.NoError(t, db.Create(&model.GroupMembership{
			GroupID: group.ID,
			UserID:  m.ID,
			Role:    model.GroupRoleMember,
		}).Error)
	}
	return group
}

// CreateSession inserts a session run by gm in the given group, with the GM
// already on the roster.
func CreateSession(t *testing.T, db *gorm.DB, gm *model.User, group *model.Group, visibility model.SessionVisibility) *model.Session {
	t.Helper()
	session := &model.Session{
		Title:       "session-" + uuid.NewString()[:8],
		ScheduledAt: time.Now().Add(48 * time.Hour),
		GMUserID:    gm.ID,
		GroupID:     group.ID,
		Visibility:  visibility,
		Status:      model.SessionStatusPlanned,
		ShareToken:  uuid.NewString(),
	}
	require.NoError(t, db.Create(session).Error)
	require.NoError(t, db.Create(&model.Participant{
		SessionID: session.ID,
		UserID:    gm.ID,
		Role:      model.ParticipantRoleGM,
	}).Error)
	return session
}

// AddParticipant puts a player on the session roster, optionally in a slot.
func AddParticipant(t *testing.T, db *gorm.DB, session *model.Session, user *model.User, slot *int) *model.Participant {
	t.Helper()
	p := &model.Participant{
		SessionID:  session.ID,
		UserID:     user.ID,
		Role:       model.ParticipantRolePlayer,
		PlayerSlot: slot,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateHandout inserts a handout for the given participant.
func CreateHandout(t *testing.T, db *gorm.DB, session *model.Session, target *model.Participant, secret bool) *model.Handout {
	t.Helper()
	h := &model.Handout{
		SessionID:     session.ID,
		ParticipantID: target.ID,
		Title:         "handout-" + uuid.NewString()[:8],
		Content:       "content",
		IsSecret:      secret,
	}
	require.NoError(t, db.Create(h).Error)
	return h
}

// IntPtr is a shorthand for slot literals in tests.
func IntPtr(v int) *int {
	return &v
}
