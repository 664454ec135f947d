package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cds-backend/internal/callback"
	"cds-backend/internal/database"
	"cds-backend/internal/messaging"
	"cds-backend/pkg/api"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// Delivery cap across redeliveries. A task redelivered this many times is
	// abandoned as FAILURE instead of cycling through the queue forever.
	maxDeliveries = 5

	// In-process retry budget for transient resource exhaustion.
	predictAttempts = 3
)

// Linear backoff base between inference retry attempts.
var retryBackoff = 2 * time.Second

// TaskProcessor is the worker's consume loop: it drains the family queues it
// was assigned, drives each task through the state machine, and notifies the
// originating system on terminal transitions.
type TaskProcessor struct {
	db         *gorm.DB
	reciever   messaging.Reciever
	models     *ModelCache
	dispatcher *callback.Dispatcher

	// Start returns after this many processed tasks so the supervisor can
	// restart the worker with a fresh process. Zero disables rotation.
	maxTasks int

	stopOnce sync.Once
}

func NewTaskProcessor(db *gorm.DB, reciever messaging.Reciever, models *ModelCache, dispatcher *callback.Dispatcher, maxTasks int) *TaskProcessor {
	return &TaskProcessor{
		db:         db,
		reciever:   reciever,
		models:     models,
		dispatcher: dispatcher,
		maxTasks:   maxTasks,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "max_tasks", proc.maxTasks)

	processed := 0
	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)

		processed++
		if proc.maxTasks > 0 && processed >= proc.maxTasks {
			slog.Info("task budget reached, stopping for rotation", "processed", processed)
			return
		}
	}
}

func (proc *TaskProcessor) Stop() {
	proc.stopOnce.Do(func() {
		slog.Info("stopping task processor")

		proc.reciever.Close()
		proc.models.Release()
	})
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	family, ok := FamilyForQueue(task.Type())
	if !ok {
		slog.Error("received task from unknown queue", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload messaging.InferenceTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling inference task", "queue", task.Type(), "error", err)
		if err := task.Reject(); err != nil { // Discard malformed message
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err := proc.processInferenceTask(ctx, family, payload); err != nil {
		slog.Error("error processing task", "queue", task.Type(), "task_id", payload.TaskId, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("finished processing task", "queue", task.Type(), "task_id", payload.TaskId)
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// processInferenceTask runs one delivery. A nil return acknowledges the
// message, including the cases where the task ends FAILURE; a non-nil return
// means a transient infrastructure problem and the message is redelivered.
func (proc *TaskProcessor) processInferenceTask(ctx context.Context, family ModelFamily, payload messaging.InferenceTaskPayload) error {
	taskId := payload.TaskId

	slog.Info("processing inference task", "task_id", taskId, "family", family)

	task, err := database.GetTask(ctx, proc.db, taskId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("task no longer exists, dropping delivery", "task_id", taskId)
			return nil
		}
		return fmt.Errorf("error getting inference task: %w", err)
	}

	if database.IsTerminalState(task.Status) {
		slog.Info("task already in terminal state, dropping redelivery", "task_id", taskId, "status", task.Status)
		return nil
	}

	if ModelFamily(task.Family) != family {
		proc.failTask(ctx, task, fmt.Sprintf("task routed to %s queue but belongs to the %s pipeline", family, task.Family))
		return nil
	}

	if task.Attempts >= maxDeliveries {
		proc.failTask(ctx, task, fmt.Sprintf("task abandoned after %d delivery attempts", task.Attempts))
		return nil
	}

	if err := database.MarkTaskStarted(ctx, proc.db, taskId); err != nil {
		return fmt.Errorf("error marking task started: %w", err)
	}

	var input Input
	if err := json.Unmarshal(task.Payload, &input); err != nil {
		proc.failTask(ctx, task, fmt.Sprintf("stored task payload is unreadable: %v", err))
		return nil
	}

	database.UpdateTaskState(ctx, proc.db, taskId, database.TaskProcessing, 10, "loading model") //nolint:errcheck

	model, err := proc.models.Get(ctx, family)
	if err != nil {
		return fmt.Errorf("error loading %s model: %w", family, err)
	}

	database.UpdateTaskState(ctx, proc.db, taskId, database.TaskProcessing, 30, "running inference") //nolint:errcheck

	result, err := proc.predictWithRetry(ctx, model, &input)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			proc.failTask(ctx, task, inputErr.Reason)
			return nil
		}

		var resourceErr *ResourceError
		if errors.As(err, &resourceErr) {
			proc.failTask(ctx, task, fmt.Sprintf("inference failed after %d attempts: %v", predictAttempts, resourceErr))
			return nil
		}

		return fmt.Errorf("error running %s inference: %w", family, err)
	}

	database.UpdateTaskState(ctx, proc.db, taskId, database.TaskProcessing, 90, "packaging results") //nolint:errcheck

	apiResult := result.ToAPI()
	resultJson, err := json.Marshal(apiResult)
	if err != nil {
		return fmt.Errorf("error serializing inference result: %w", err)
	}

	if err := database.MarkTaskSuccess(ctx, proc.db, taskId, datatypes.JSON(resultJson)); err != nil {
		return fmt.Errorf("error marking task success: %w", err)
	}

	proc.dispatcher.Deliver(ctx, task.CallbackURL, api.CallbackPayload{
		JobId:      task.JobId,
		Status:     api.CallbackCompleted,
		ResultData: apiResult,
		Files:      result.Artifacts,
	})

	slog.Info("inference task completed successfully", "task_id", taskId, "family", family, "duration", result.ProcessingTime)

	return nil
}

func (proc *TaskProcessor) predictWithRetry(ctx context.Context, model Model, input *Input) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= predictAttempts; attempt++ {
		result, err := model.Predict(ctx, input)
		if err == nil {
			return result, nil
		}

		var resourceErr *ResourceError
		if !errors.As(err, &resourceErr) {
			return nil, err
		}

		lastErr = err
		if attempt < predictAttempts {
			slog.Warn("transient resource failure, retrying inference", "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
	}
	return nil, lastErr
}

// failTask moves the task to FAILURE and notifies the originating system.
// Failures here are logged only: the terminal transition has already been
// decided.
func (proc *TaskProcessor) failTask(ctx context.Context, task database.InferenceTask, reason string) {
	slog.Info("marking task failed", "task_id", task.Id, "reason", reason)

	if err := database.MarkTaskFailure(ctx, proc.db, task.Id, reason); err != nil {
		slog.Error("error marking task failure", "task_id", task.Id, "error", err)
	}

	proc.dispatcher.Deliver(ctx, task.CallbackURL, api.CallbackPayload{
		JobId:        task.JobId,
		Status:       api.CallbackFailed,
		ErrorMessage: reason,
	})
}

// RunJanitor periodically deletes terminal tasks older than the retention
// window. Blocks until ctx is cancelled.
func (proc *TaskProcessor) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	slog.Info("starting task retention janitor", "interval", interval, "retention", retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := database.PruneExpiredTasks(ctx, proc.db, retention)
			if err != nil {
				slog.Error("error pruning expired tasks", "error", err)
			} else if pruned > 0 {
				slog.Info("pruned expired tasks", "count", pruned)
			}
		}
	}
}
