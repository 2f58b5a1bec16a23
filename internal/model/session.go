package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionVisibility string

const (
	SessionVisibilityPrivate SessionVisibility = "private"
	SessionVisibilityGroup   SessionVisibility = "group"
	SessionVisibilityPublic  SessionVisibility = "public"
)

type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "planned"
	SessionStatusOngoing   SessionStatus = "ongoing"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// CanTransitionTo reports whether the status machine allows moving to next.
// planned -> ongoing -> completed; any non-terminal state -> cancelled.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == SessionStatusCompleted || s == SessionStatusCancelled {
		return false
	}
	switch next {
	case SessionStatusCancelled:
		return true
	case SessionStatusOngoing:
		return s == SessionStatusPlanned
	case SessionStatusCompleted:
		return s == SessionStatusPlanned || s == SessionStatusOngoing
	}
	return false
}

type ParticipantRole string

const (
	ParticipantRoleGM     ParticipantRole = "gm"
	ParticipantRolePlayer ParticipantRole = "player"
)

type Session struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string            `gorm:"size:255;not null" json:"title"`
	ScheduledAt     time.Time         `gorm:"not null" json:"scheduled_at"`
	DurationMinutes int               `gorm:"default:0" json:"duration_minutes"`
	GMUserID        uuid.UUID         `gorm:"type:uuid;not null" json:"gm_user_id"`
	GroupID         uuid.UUID         `gorm:"type:uuid;not null" json:"group_id"`
	Visibility      SessionVisibility `gorm:"size:20;not null;default:private" json:"visibility"`
	Status          SessionStatus     `gorm:"size:20;not null;default:planned" json:"status"`
	ScenarioID      *uuid.UUID        `gorm:"type:uuid" json:"scenario_id,omitempty"`
	ShareToken      string            `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ReminderSentAt  *time.Time        `json:"-"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	GM           *User         `gorm:"foreignKey:GMUserID" json:"gm,omitempty"`
	Group        *Group        `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Scenario     *Scenario     `gorm:"foreignKey:ScenarioID;constraint:OnDelete:SET NULL" json:"scenario,omitempty"`
	Participants []Participant `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID, err = uuid.NewV7()
	}
	return
}

type Participant struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_session_user;uniqueIndex:idx_session_slot" json:"session_id"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_session_user" json:"user_id"`
	Role             ParticipantRole `gorm:"size:20;not null;default:player" json:"role"`
	PlayerSlot       *int            `gorm:"uniqueIndex:idx_session_slot" json:"player_slot,omitempty"`
	CharacterName    *string         `gorm:"size:100" json:"character_name,omitempty"`
	CharacterSheetID *uuid.UUID      `gorm:"type:uuid" json:"character_sheet_id,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	User           *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CharacterSheet *CharacterSheet `gorm:"foreignKey:CharacterSheetID;constraint:OnDelete:SET NULL" json:"character_sheet,omitempty"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

// PlayHistory is materialized once per participant when a session completes.
type PlayHistory struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_history_session_user" json:"session_id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_history_session_user" json:"user_id"`
	Role      ParticipantRole `gorm:"size:20;not null" json:"role"`
	PlayedAt  time.Time       `gorm:"not null" json:"played_at"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (h *PlayHistory) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == uuid.Nil {
		h.ID, err = uuid.NewV7()
	}
	return
}
