package api

import (
	"github.com/google/uuid"
)

// Task states reported by the status endpoint. Transitions are monotonic:
// once a task reports Success or Failure it never changes again.
const (
	StatusPending    = "PENDING"
	StatusStarted    = "STARTED"
	StatusProcessing = "PROCESSING"
	StatusSuccess    = "SUCCESS"
	StatusFailure    = "FAILURE"
)

const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// SubmitStatusProcessing is the literal acknowledgement string in the
// synchronous submission response. The status endpoint reports the task state
// machine values above instead.
const SubmitStatusProcessing = "processing"

// InferenceRequest is the submission body accepted by the per-family
// inference endpoints. JobId is assigned by the originating system and is
// unique per submission; TaskId is assigned here and returned synchronously.
type InferenceRequest struct {
	JobId       string `json:"job_id"`
	SubjectId   string `json:"subject_id"`
	CallbackURL string `json:"callback_url"`
	Mode        string `json:"mode"`

	// Raw modality payloads. Which of these are required depends on the
	// endpoint the request is submitted to.
	ImageB64   string `json:"image_b64,omitempty"`
	GeneCSV    string `json:"gene_csv,omitempty"`
	ProteinCSV string `json:"protein_csv,omitempty"`

	// Pre-extracted feature vectors for multimodal submissions. Each must
	// match the dimensionality declared by the multimodal service.
	ImagingFeatures []float64 `json:"imaging_features,omitempty"`
	GeneFeatures    []float64 `json:"gene_features,omitempty"`
	ProteinFeatures []float64 `json:"protein_features,omitempty"`
}

type SubmitResponse struct {
	TaskId  uuid.UUID `json:"task_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// Prediction is a single named model output: the predicted class or value
// together with a calibrated probability in [0, 1].
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// InferenceResult is the structured result of one completed task.
type InferenceResult struct {
	Predictions      map[string]Prediction `json:"predictions"`
	ModalitiesUsed   []string              `json:"modalities_used"`
	ProcessingTimeMS int64                 `json:"processing_time_ms"`
}

type TaskStatus struct {
	TaskId   uuid.UUID        `json:"task_id"`
	Status   string           `json:"status"`
	Progress *int             `json:"progress,omitempty"`
	Message  string           `json:"message,omitempty"`
	Result   *InferenceResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type TaskListQuery struct {
	Status string `schema:"status"`
	Family string `schema:"family"`
}

type TaskListEntry struct {
	TaskId  uuid.UUID `json:"task_id"`
	JobId   string    `json:"job_id"`
	Family  string    `json:"family"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
}

// FilePayload is a named artifact delivered inline in a callback. Content is
// either plain text (JSON documents, feature dumps) or base64 depending on
// Type; the recipient is responsible for persisting it.
type FilePayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

const (
	CallbackCompleted = "completed"
	CallbackFailed    = "failed"
)

// CallbackPayload is the wire message POSTed back to the originating system
// once a task reaches a terminal state.
type CallbackPayload struct {
	JobId        string                 `json:"job_id"`
	Status       string                 `json:"status"`
	ResultData   *InferenceResult       `json:"result_data,omitempty"`
	Files        map[string]FilePayload `json:"files,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
