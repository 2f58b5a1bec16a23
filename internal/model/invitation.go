package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationExpiryWindow is how long a pending invitation stays actionable.
const InvitationExpiryWindow = 7 * 24 * time.Hour

type SessionInvitation struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_invitation_session_invitee" json:"session_id"`
	InviterID   uuid.UUID        `gorm:"type:uuid;not null" json:"inviter_id"`
	InviteeID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_invitation_session_invitee" json:"invitee_id"`
	Status      InvitationStatus `gorm:"size:20;not null;default:pending" json:"status"`
	Message     *string          `gorm:"type:text" json:"message,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`

	Session *Session `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"session,omitempty"`
	Inviter *User    `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
	Invitee *User    `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
}

func (i *SessionInvitation) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID, err = uuid.NewV7()
	}
	return
}

func (i *SessionInvitation) ExpiresAt() time.Time {
	return i.CreatedAt.Add(InvitationExpiryWindow)
}

func (i *SessionInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt())
}
