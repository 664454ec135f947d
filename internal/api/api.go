package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cds-backend/internal/core"
	"cds-backend/internal/database"
	"cds-backend/internal/messaging"
	"cds-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const taskListLimit = 100

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher) *BackendService {
	return &BackendService{db: db, publisher: publisher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/inference", func(r chi.Router) {
		r.Post("/imaging", RestHandler(s.submitHandler(core.FamilyImaging)))
		r.Post("/genomic", RestHandler(s.submitHandler(core.FamilyGenomic)))
		r.Post("/multimodal", RestHandler(s.submitHandler(core.FamilyMultimodal)))
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListTasks))
		r.Get("/{task_id}", RestHandler(s.GetTaskStatus))
	})
}

func (s *BackendService) submitHandler(family core.ModelFamily) func(r *http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		return s.submitInferenceJob(r, family)
	}
}

func (s *BackendService) submitInferenceJob(r *http.Request, family core.ModelFamily) (any, error) {
	req, err := ParseRequest[api.InferenceRequest](r)
	if err != nil {
		return nil, err
	}

	input, err := ValidateRequest(req, family)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	payload, err := json.Marshal(input)
	if err != nil {
		slog.Error("error serializing task payload", "job_id", req.JobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store inference request")
	}

	task := database.InferenceTask{
		Id:           uuid.New(),
		JobId:        req.JobId,
		SubjectId:    req.SubjectId,
		Family:       string(family),
		Mode:         req.Mode,
		CallbackURL:  req.CallbackURL,
		Status:       database.TaskPending,
		Payload:      datatypes.JSON(payload),
		CreationTime: time.Now().UTC(),
	}

	if err := database.UpsertTask(ctx, s.db, &task); err != nil {
		if errors.Is(err, database.ErrJobFamilyMismatch) {
			return nil, CodedError(http.StatusConflict, err)
		}
		slog.Error("error creating inference task", "job_id", req.JobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create inference task")
	}

	queue, err := core.QueueForFamily(family)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if err := s.publisher.PublishInferenceTask(ctx, queue, messaging.InferenceTaskPayload{TaskId: task.Id}); err != nil {
		slog.Error("error publishing inference task, broker unavailable", "task_id", task.Id, "queue", queue, "error", err)
		database.MarkTaskFailure(ctx, s.db, task.Id, "task could not be enqueued: broker unavailable") //nolint:errcheck
		return nil, CodedErrorf(http.StatusServiceUnavailable, "inference queue is unavailable, try again later")
	}

	slog.Info("submitted inference job", "task_id", task.Id, "job_id", req.JobId, "family", family, "queue", queue)

	return api.SubmitResponse{TaskId: task.Id, Status: api.SubmitStatusProcessing, Message: "inference job accepted"}, nil
}

// GetTaskStatus reports the last known state of a task. An id we have no row
// for reports PENDING rather than 404: with read replicas or prompt polling
// the caller can legitimately ask before the row is visible.
func (s *BackendService) GetTaskStatus(r *http.Request) (any, error) {
	taskId, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	task, err := database.GetTask(ctx, s.db, taskId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return api.TaskStatus{TaskId: taskId, Status: api.StatusPending}, nil
		}
		slog.Error("error getting task", "task_id", taskId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task")
	}

	status := api.TaskStatus{
		TaskId:  task.Id,
		Status:  task.Status,
		Message: task.Message,
	}

	switch task.Status {
	case database.TaskStarted, database.TaskProcessing:
		progress := task.Progress
		status.Progress = &progress

	case database.TaskSuccess:
		var result api.InferenceResult
		if err := json.Unmarshal(task.Result, &result); err != nil {
			slog.Error("error deserializing task result", "task_id", taskId, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error reading task result")
		}
		status.Result = &result

	case database.TaskFailure:
		status.Error = task.Error
	}

	return status, nil
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.TaskListQuery](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	query := s.db.WithContext(ctx).Model(&database.InferenceTask{})
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if params.Family != "" {
		query = query.Where("family = ?", params.Family)
	}

	var tasks []database.InferenceTask
	if err := query.Order("creation_time DESC").Limit(taskListLimit).Find(&tasks).Error; err != nil {
		slog.Error("error listing tasks", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing tasks")
	}

	entries := make([]api.TaskListEntry, len(tasks))
	for i, task := range tasks {
		entries[i] = api.TaskListEntry{
			TaskId:  task.Id,
			JobId:   task.JobId,
			Family:  task.Family,
			Status:  task.Status,
			Message: task.Message,
		}
	}

	return entries, nil
}
