package messaging

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueuePublishConsume(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	payload := InferenceTaskPayload{TaskId: uuid.New()}
	require.NoError(t, queue.PublishInferenceTask(ctx, GenomicQueue, payload))

	task := <-queue.Tasks()
	assert.Equal(t, GenomicQueue, task.Type())
	require.NoError(t, task.Ack())
}

func TestInMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewInMemoryQueue()
	queue.Close()

	err := queue.PublishInferenceTask(context.Background(), GenomicQueue, InferenceTaskPayload{TaskId: uuid.New()})
	assert.Error(t, err)

	// closing again is a no-op
	queue.Close()

	_, open := <-queue.Tasks()
	assert.False(t, open)
}
