package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaskPending    string = "PENDING"
	TaskStarted    string = "STARTED"
	TaskProcessing string = "PROCESSING"
	TaskSuccess    string = "SUCCESS"
	TaskFailure    string = "FAILURE"
)

func IsTerminalState(status string) bool {
	return status == TaskSuccess || status == TaskFailure
}

// InferenceTask is the queue's unit of work. One row per accepted request;
// the row is created before the broker publish so the task id handed back to
// the caller always resolves. Result and Error are mutually exclusive and
// only populated in the matching terminal state.
type InferenceTask struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	JobId     string `gorm:"uniqueIndex;not null"`
	SubjectId string `gorm:"not null"`
	Family    string `gorm:"size:20;not null;index"`
	Mode      string `gorm:"size:10;not null"`

	CallbackURL string `gorm:"not null"`

	Status   string `gorm:"size:20;not null;index"`
	Progress int    `gorm:"default:0"`
	Message  string

	// Canonical request payload, re-read by the worker on every (re)delivery
	// so a redelivered task re-executes from the same inputs.
	Payload datatypes.JSON `gorm:"type:jsonb"`

	Result datatypes.JSON `gorm:"type:jsonb"`
	Error  string

	Attempts int `gorm:"default:0"`

	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime
}
