package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationHandoutCreated        NotificationType = "handout_created"
	NotificationHandoutPublished      NotificationType = "handout_published"
	NotificationHandoutUpdated        NotificationType = "handout_updated"
	NotificationSessionInvitation     NotificationType = "session_invitation"
	NotificationSessionScheduleChange NotificationType = "session_schedule_change"
	NotificationSessionCancelled      NotificationType = "session_cancelled"
	NotificationSessionReminder       NotificationType = "session_reminder"
	NotificationGroupInvitation       NotificationType = "group_invitation"
	NotificationFriendRequest         NotificationType = "friend_request"
	NotificationFriendRequestAccepted NotificationType = "friend_request_accepted"
)

type NotificationCategory string

const (
	CategoryHandout NotificationCategory = "handout"
	CategorySession NotificationCategory = "session"
	CategoryGroup   NotificationCategory = "group"
	CategoryFriend  NotificationCategory = "friend"
)

// Category maps a notification type to its preference category.
func (t NotificationType) Category() NotificationCategory {
	switch t {
	case NotificationHandoutCreated, NotificationHandoutPublished, NotificationHandoutUpdated:
		return CategoryHandout
	case NotificationSessionInvitation, NotificationSessionScheduleChange,
		NotificationSessionCancelled, NotificationSessionReminder:
		return CategorySession
	case NotificationGroupInvitation:
		return CategoryGroup
	case NotificationFriendRequest, NotificationFriendRequestAccepted:
		return CategoryFriend
	}
	return CategorySession
}

type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	SenderID    uuid.UUID        `gorm:"type:uuid;not null" json:"sender_id"`
	Type        NotificationType `gorm:"size:50;not null" json:"type"`
	SubjectKind string           `gorm:"size:50;not null" json:"subject_kind"`
	SubjectID   uuid.UUID        `gorm:"type:uuid;not null" json:"subject_id"`
	Message     string           `gorm:"type:text" json:"message"`
	Metadata    datatypes.JSON   `json:"metadata,omitempty"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

// NotificationPreferences holds the per-user category x channel toggles.
// Defaults: every category enabled in-app, email off.
type NotificationPreferences struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	HandoutInApp bool      `gorm:"not null;default:true" json:"handout_in_app"`
	HandoutEmail bool      `gorm:"not null;default:false" json:"handout_email"`
	SessionInApp bool      `gorm:"not null;default:true" json:"session_in_app"`
	SessionEmail bool      `gorm:"not null;default:false" json:"session_email"`
	GroupInApp   bool      `gorm:"not null;default:true" json:"group_in_app"`
	GroupEmail   bool      `gorm:"not null;default:false" json:"group_email"`
	FriendInApp  bool      `gorm:"not null;default:true" json:"friend_in_app"`
	FriendEmail  bool      `gorm:"not null;default:false" json:"friend_email"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func DefaultNotificationPreferences(userID uuid.UUID) NotificationPreferences {
	return NotificationPreferences{
		UserID:       userID,
		HandoutInApp: true,
		SessionInApp: true,
		GroupInApp:   true,
		FriendInApp:  true,
	}
}

// ChannelsFor returns the in-app and email flags for a category.
func (p NotificationPreferences) ChannelsFor(cat NotificationCategory) (inApp, email bool) {
	switch cat {
	case CategoryHandout:
		return p.HandoutInApp, p.HandoutEmail
	case CategorySession:
		return p.SessionInApp, p.SessionEmail
	case CategoryGroup:
		return p.GroupInApp, p.GroupEmail
	case CategoryFriend:
		return p.FriendInApp, p.FriendEmail
	}
	return false, false
}

// AnyEnabled reports whether at least one category x channel flag is on.
// Preference updates must keep this true.
func (p NotificationPreferences) AnyEnabled() bool {
	return p.HandoutInApp || p.HandoutEmail ||
		p.SessionInApp || p.SessionEmail ||
		p.GroupInApp || p.GroupEmail ||
		p.FriendInApp || p.FriendEmail
}
