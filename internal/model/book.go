package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book represents a catalog entry.
type Book struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Title         string    `gorm:"size:512;not null;index" json:"title"`
	Author        string    `gorm:"size:256;not null" json:"author"`
	ISBN          *string   `gorm:"column:isbn;size:32" json:"isbn"`
	CallNumber    *string   `gorm:"size:64" json:"call_number"`
	ShelfLocation string    `gorm:"size:128;not null" json:"shelf_location"`
	Section       string    `gorm:"size:32;index" json:"section,omitempty"` // Derived from ShelfLocation
	Aisle         int       `json:"aisle,omitempty"`
	Category      *string   `gorm:"size:64" json:"category"`
	Available     bool      `gorm:"not null" json:"available"`
	CreatedAt     time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
