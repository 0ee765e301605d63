package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus is the persisted lifecycle state of a BookRequest.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusNavigating RequestStatus = "navigating"
	RequestStatusReady      RequestStatus = "ready"
	RequestStatusCompleted  RequestStatus = "completed"
)

const RequestTypeNavigationAssist = "navigation_assist"

// BookRequest is a student's ask for a book to be retrieved and staged for pickup.
type BookRequest struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	BookID         string        `gorm:"size:36;not null;index" json:"book_id"`
	StudentName    string        `gorm:"size:256;not null" json:"student_name"`
	UserID         string        `gorm:"size:64;index" json:"user_id"`
	RequestType    string        `gorm:"size:32;not null" json:"request_type"`
	Status         RequestStatus `gorm:"size:32;not null;index" json:"status"`
	PickupLocation *string       `gorm:"size:128" json:"pickup_location"`
	RobotTaskID    *string       `gorm:"size:36;index" json:"robot_task_id"`
	RequestedAt    time.Time     `gorm:"not null;index" json:"requested_at"`
	CompletedAt    *time.Time    `gorm:"index" json:"completed_at"`

	// Associations
	Book      *Book      `gorm:"foreignKey:BookID;constraint:OnDelete:RESTRICT" json:"book,omitempty"`
	RobotTask *RobotTask `gorm:"foreignKey:RobotTaskID" json:"robot_task,omitempty"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (r *BookRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// EffectivePickupLocation returns the pickup override, falling back to the book's shelf.
func (r *BookRequest) EffectivePickupLocation() string {
	if r.PickupLocation != nil && *r.PickupLocation != "" {
		return *r.PickupLocation
	}
	if r.Book != nil {
		return r.Book.ShelfLocation
	}
	return ""
}
