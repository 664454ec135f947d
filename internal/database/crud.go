package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var terminalStates = []string{TaskSuccess, TaskFailure}

// ErrJobFamilyMismatch is returned by UpsertTask when a job id is resubmitted
// to a different model family than it was originally accepted for.
var ErrJobFamilyMismatch = errors.New("job already submitted to a different pipeline")

// UpsertTask inserts the task row, or, when the originating system resubmits
// a job id it already used for the same family, resets the existing row in
// place so the job keeps a single task identity. A job id reused across
// families is rejected.
func UpsertTask(ctx context.Context, db *gorm.DB, task *InferenceTask) error {
	var existing InferenceTask
	err := db.WithContext(ctx).First(&existing, "job_id = ?", task.JobId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.WithContext(ctx).Create(task).Error
		}
		return fmt.Errorf("error checking for existing job: %w", err)
	}

	if existing.Family != task.Family {
		return fmt.Errorf("job %s already submitted to %s pipeline: %w", task.JobId, existing.Family, ErrJobFamilyMismatch)
	}

	task.Id = existing.Id
	return db.WithContext(ctx).Model(&InferenceTask{Id: existing.Id}).Updates(map[string]any{
		"subject_id":      task.SubjectId,
		"mode":            task.Mode,
		"callback_url":    task.CallbackURL,
		"status":          TaskPending,
		"progress":        0,
		"message":         "",
		"payload":         task.Payload,
		"result":          nil,
		"error":           "",
		"attempts":        0,
		"creation_time":   task.CreationTime,
		"start_time":      nil,
		"completion_time": nil,
	}).Error
}

func GetTask(ctx context.Context, db *gorm.DB, taskId uuid.UUID) (InferenceTask, error) {
	var task InferenceTask
	err := db.WithContext(ctx).First(&task, "id = ?", taskId).Error
	return task, err
}

// UpdateTaskState overwrites the volatile state/progress/message fields.
// Terminal rows are never touched, so a stale redelivery cannot resurrect a
// finished task.
func UpdateTaskState(ctx context.Context, db *gorm.DB, taskId uuid.UUID, status string, progress int, message string) error {
	if err := db.WithContext(ctx).
		Model(&InferenceTask{}).
		Where("id = ? AND status NOT IN ?", taskId, terminalStates).
		Updates(map[string]any{
			"status":   status,
			"progress": progress,
			"message":  message,
		}).Error; err != nil {
		slog.Error("error updating task state", "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func MarkTaskStarted(ctx context.Context, db *gorm.DB, taskId uuid.UUID) error {
	if err := db.WithContext(ctx).
		Model(&InferenceTask{}).
		Where("id = ? AND status NOT IN ?", taskId, terminalStates).
		Updates(map[string]any{
			"status":     TaskStarted,
			"start_time": time.Now().UTC(),
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error; err != nil {
		slog.Error("error marking task started", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

func MarkTaskSuccess(ctx context.Context, db *gorm.DB, taskId uuid.UUID, result datatypes.JSON) error {
	if err := db.WithContext(ctx).
		Model(&InferenceTask{}).
		Where("id = ? AND status NOT IN ?", taskId, terminalStates).
		Updates(map[string]any{
			"status":          TaskSuccess,
			"progress":        100,
			"message":         "inference completed",
			"result":          result,
			"error":           "",
			"completion_time": time.Now().UTC(),
		}).Error; err != nil {
		slog.Error("error marking task success", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

func MarkTaskFailure(ctx context.Context, db *gorm.DB, taskId uuid.UUID, message string) error {
	if err := db.WithContext(ctx).
		Model(&InferenceTask{}).
		Where("id = ? AND status NOT IN ?", taskId, terminalStates).
		Updates(map[string]any{
			"status":          TaskFailure,
			"message":         message,
			"result":          nil,
			"error":           message,
			"completion_time": time.Now().UTC(),
		}).Error; err != nil {
		slog.Error("error marking task failure", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

// PruneExpiredTasks deletes terminal tasks whose completion time is older
// than the retention window. Returns the number of rows removed.
func PruneExpiredTasks(ctx context.Context, db *gorm.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := db.WithContext(ctx).
		Where("status IN ? AND completion_time < ?", terminalStates, cutoff).
		Delete(&InferenceTask{})
	if res.Error != nil {
		slog.Error("error pruning expired tasks", "error", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
