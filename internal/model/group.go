package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupVisibility string

const (
	GroupVisibilityPrivate  GroupVisibility = "private"
	GroupVisibilityInternal GroupVisibility = "group-internal"
	GroupVisibilityPublic   GroupVisibility = "public"
)

type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

type Group struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Visibility GroupVisibility `gorm:"size:20;not null;default:private" json:"visibility"`
	CreatorID  uuid.UUID       `gorm:"type:uuid;not null" json:"creator_id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Creator *User             `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Members []GroupMembership `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == uuid.Nil {
		g.ID, err = uuid.NewV7()
	}
	return
}

type GroupMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_member" json:"user_id"`
	Role      GroupRole `gorm:"size:20;not null;default:member" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (m *GroupMembership) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}
