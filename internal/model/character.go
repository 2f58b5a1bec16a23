package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SheetEdition string

const (
	SheetEditionCoC6 SheetEdition = "coc6"
	SheetEditionCoC7 SheetEdition = "coc7"
)

// CharacterSheet is the minimal surface the session roster needs; derived
// statistics live outside this service.
type CharacterSheet struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name      string       `gorm:"size:100;not null" json:"name"`
	Edition   SheetEdition `gorm:"size:10;not null" json:"edition"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *CharacterSheet) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}
