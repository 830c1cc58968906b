package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/models"
)

func setupTestQueue(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "queue-test.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func strPtr(s string) *string { return &s }

func testDelta(localID, title string) *models.DeltaRecord {
	return &models.DeltaRecord{
		LocalID: localID,
		Op:      models.OpInsert,
		Payload: &models.TaskPayload{Title: strPtr(title)},
	}
}

func TestQueue_EnqueuePreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	require.NoError(t, s.Enqueue(ctx, testDelta("local-1", "first")))
	require.NoError(t, s.Enqueue(ctx, testDelta("local-2", "second")))
	require.NoError(t, s.Enqueue(ctx, testDelta("local-3", "third")))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// Дельты возвращаются строго в порядке постановки
	assert.Equal(t, "local-1", pending[0].LocalID)
	assert.Equal(t, "local-2", pending[1].LocalID)
	assert.Equal(t, "local-3", pending[2].LocalID)

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestQueue_AckRemovesConfirmedOnly(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	require.NoError(t, s.Enqueue(ctx, testDelta("local-1", "first")))
	require.NoError(t, s.Enqueue(ctx, testDelta("local-2", "second")))

	// Сервер подтвердил только первую дельту
	require.NoError(t, s.Ack(ctx, []string{"local-1"}))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "local-2", pending[0].LocalID)

	// Повторное подтверждение и неизвестные id безопасны
	require.NoError(t, s.Ack(ctx, []string{"local-1", "never-seen"}))
	require.NoError(t, s.Ack(ctx, nil))

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "queue-test.db")

	s, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, testDelta("local-1", "offline edit")))
	require.NoError(t, s.SetCursor(ctx, 42))
	require.NoError(t, s.Close())

	// Очередь и курсор переживают перезапуск клиента
	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "local-1", pending[0].LocalID)

	cursor, err := reopened.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
}

func TestQueue_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	conflict := models.ConflictRecord{
		LocalID:  "local-1",
		Reason:   models.ConflictReasonVersionMismatch,
		ServerID: 7,
		ServerTask: &models.Task{
			ID:      7,
			Title:   "server version",
			Version: 3,
		},
		Options: models.DefaultResolutionOptions(),
	}

	require.NoError(t, s.SaveConflicts(ctx, []models.ConflictRecord{conflict}))

	got, err := s.GetConflict(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictReasonVersionMismatch, got.Reason)
	assert.Equal(t, int64(7), got.ServerID)
	require.NotNil(t, got.ServerTask)
	assert.Equal(t, "server version", got.ServerTask.Title)

	all, err := s.Conflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteConflict(ctx, "local-1"))

	_, err = s.GetConflict(ctx, "local-1")
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestQueue_ApplyServerChanges(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	require.NoError(t, s.ApplyServerChanges(ctx, []models.Task{
		{ID: 2, Title: "second", Version: 1},
		{ID: 1, Title: "first", Version: 1},
	}))

	tasks, err := s.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// Реплика отсортирована по серверному id
	assert.Equal(t, int64(1), tasks[0].ID)
	assert.Equal(t, int64(2), tasks[1].ID)

	// Повторное применение обновляет задачу на месте
	require.NoError(t, s.ApplyServerChanges(ctx, []models.Task{
		{ID: 1, Title: "first edited", Version: 2},
	}))

	got, err := s.GetTask(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first edited", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestQueue_TasksHideTombstones(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	require.NoError(t, s.ApplyServerChanges(ctx, []models.Task{
		{ID: 1, Title: "alive", Version: 1},
		{ID: 2, Title: "removed", Version: 2, Deleted: true},
	}))

	tasks, err := s.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "alive", tasks[0].Title)
}

func TestQueue_CursorForwardOnly(t *testing.T) {
	ctx := context.Background()
	s := setupTestQueue(t)

	cursor, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Zero(t, cursor)

	require.NoError(t, s.SetCursor(ctx, 10))

	// Откат назад молча игнорируется
	require.NoError(t, s.SetCursor(ctx, 5))

	cursor, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cursor)
}

func TestQueue_Closed(t *testing.T) {
	ctx := context.Background()
	s := &Storage{}

	_, err := s.Pending(ctx)
	assert.ErrorIs(t, err, ErrStorageClosed)

	err = s.Enqueue(ctx, testDelta("local-1", "x"))
	assert.ErrorIs(t, err, ErrStorageClosed)
}
