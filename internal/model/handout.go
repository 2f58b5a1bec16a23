package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handout is a per-participant information item. Secret handouts are visible
// only to the GM, the target participant and the holder of the assigned slot.
type Handout struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID          uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	ParticipantID      uuid.UUID `gorm:"type:uuid;not null;index" json:"participant_id"`
	Title              string    `gorm:"size:255;not null" json:"title"`
	Content            string    `gorm:"type:text" json:"content"`
	IsSecret           bool      `gorm:"not null;default:true" json:"is_secret"`
	HandoutNumber      *int      `json:"handout_number,omitempty"`
	AssignedPlayerSlot *int      `json:"assigned_player_slot,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Session     *Session     `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"session,omitempty"`
	Participant *Participant `gorm:"foreignKey:ParticipantID;constraint:OnDelete:CASCADE" json:"participant,omitempty"`
	Attachments []Attachment `gorm:"foreignKey:HandoutID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

func (h *Handout) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == uuid.Nil {
		h.ID, err = uuid.NewV7()
	}
	return
}
