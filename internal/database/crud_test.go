package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, GetMigrator(db).Migrate())
	return db
}

func newTask(jobId, family string) *InferenceTask {
	return &InferenceTask{
		Id:           uuid.New(),
		JobId:        jobId,
		SubjectId:    "subject-1",
		Family:       family,
		Mode:         "manual",
		CallbackURL:  "http://hospital.example/cb",
		Status:       TaskPending,
		Payload:      datatypes.JSON(`{"job_id":"` + jobId + `"}`),
		CreationTime: time.Now().UTC(),
	}
}

func TestUpsertTaskReusesRowForSameJob(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	first := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, first))

	require.NoError(t, MarkTaskStarted(ctx, db, first.Id))
	require.NoError(t, MarkTaskFailure(ctx, db, first.Id, "bad csv"))

	second := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, second))
	assert.Equal(t, first.Id, second.Id)

	task, err := GetTask(ctx, db, first.Id)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, task.Status)
	assert.Empty(t, task.Error)
	assert.Zero(t, task.Attempts)
	assert.False(t, task.CompletionTime.Valid)

	var count int64
	require.NoError(t, db.Model(&InferenceTask{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertTaskRejectsFamilyChange(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	require.NoError(t, UpsertTask(ctx, db, newTask("job-1", "genomic")))
	err := UpsertTask(ctx, db, newTask("job-1", "imaging"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobFamilyMismatch)
	assert.Contains(t, err.Error(), "genomic")
}

func TestTerminalStatesAreFinal(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	task := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, task))

	require.NoError(t, MarkTaskStarted(ctx, db, task.Id))
	require.NoError(t, UpdateTaskState(ctx, db, task.Id, TaskProcessing, 30, "running inference"))
	require.NoError(t, MarkTaskSuccess(ctx, db, task.Id, datatypes.JSON(`{"predictions":{}}`)))

	// no update may move a task out of a terminal state
	require.NoError(t, UpdateTaskState(ctx, db, task.Id, TaskProcessing, 50, "should not apply"))
	require.NoError(t, MarkTaskFailure(ctx, db, task.Id, "should not apply"))
	require.NoError(t, MarkTaskStarted(ctx, db, task.Id))

	got, err := GetTask(ctx, db, task.Id)
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.Result)
	assert.Empty(t, got.Error)
	assert.EqualValues(t, 1, got.Attempts)
}

func TestResultAndErrorAreExclusive(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	success := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, success))
	require.NoError(t, MarkTaskSuccess(ctx, db, success.Id, datatypes.JSON(`{"predictions":{}}`)))

	failure := newTask("job-2", "genomic")
	require.NoError(t, UpsertTask(ctx, db, failure))
	require.NoError(t, MarkTaskFailure(ctx, db, failure.Id, "corrupt image"))

	got, err := GetTask(ctx, db, success.Id)
	require.NoError(t, err)
	assert.NotNil(t, got.Result)
	assert.Empty(t, got.Error)

	got, err = GetTask(ctx, db, failure.Id)
	require.NoError(t, err)
	assert.Nil(t, got.Result)
	assert.Equal(t, "corrupt image", got.Error)
}

func TestMarkTaskStartedCountsAttempts(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	task := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, task))

	require.NoError(t, MarkTaskStarted(ctx, db, task.Id))
	require.NoError(t, MarkTaskStarted(ctx, db, task.Id))

	got, err := GetTask(ctx, db, task.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Attempts)
	assert.True(t, got.StartTime.Valid)
}

func TestPruneExpiredTasks(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	oldSuccess := newTask("job-1", "genomic")
	require.NoError(t, UpsertTask(ctx, db, oldSuccess))
	require.NoError(t, MarkTaskSuccess(ctx, db, oldSuccess.Id, datatypes.JSON(`{}`)))
	require.NoError(t, db.Model(&InferenceTask{}).Where("id = ?", oldSuccess.Id).
		Update("completion_time", time.Now().UTC().Add(-2*time.Hour)).Error)

	freshSuccess := newTask("job-2", "genomic")
	require.NoError(t, UpsertTask(ctx, db, freshSuccess))
	require.NoError(t, MarkTaskSuccess(ctx, db, freshSuccess.Id, datatypes.JSON(`{}`)))

	pending := newTask("job-3", "genomic")
	require.NoError(t, UpsertTask(ctx, db, pending))

	pruned, err := PruneExpiredTasks(ctx, db, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	_, err = GetTask(ctx, db, oldSuccess.Id)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = GetTask(ctx, db, freshSuccess.Id)
	assert.NoError(t, err)

	_, err = GetTask(ctx, db, pending.Id)
	assert.NoError(t, err)
}
