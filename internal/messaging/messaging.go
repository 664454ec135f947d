package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// One durable queue per model family. Routing is decided once at enqueue
// time from a static family table and never changes afterward.
const (
	ImagingQueue    = "imaging_queue"
	GenomicQueue    = "genomic_queue"
	MultimodalQueue = "multimodal_queue"

	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

func AllQueues() []string {
	return []string{ImagingQueue, GenomicQueue, MultimodalQueue}
}

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// InferenceTaskPayload carries only the task id; the worker re-reads the
// authoritative request payload from the task store so redeliveries always
// execute against the same inputs.
type InferenceTaskPayload struct {
	TaskId uuid.UUID
}

type Publisher interface {
	PublishInferenceTask(ctx context.Context, queue string, payload InferenceTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
