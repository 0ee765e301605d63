package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskType identifies the kind of work the robot is asked to do.
type TaskType string

const TaskTypeNavigationAssist TaskType = "navigation_assist"

// TaskStatus is the robot-side status of a task. The robot owns every status after pending.
type TaskStatus string

const TaskStatusPending TaskStatus = "pending"

// RobotTask is the robot-side unit of work paired 1:1 with a BookRequest.
type RobotTask struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	TaskType    TaskType   `gorm:"size:32;not null" json:"task_type"`
	BookID      *string    `gorm:"size:36;index" json:"book_id"`
	StudentName string     `gorm:"size:256" json:"student_name"`
	UserID      string     `gorm:"size:64;index" json:"user_id"`
	Status      TaskStatus `gorm:"size:32;not null" json:"status"`
	Priority    int        `gorm:"not null" json:"priority"`
	Notes       string     `gorm:"size:1024" json:"notes"`
	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (t *RobotTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
