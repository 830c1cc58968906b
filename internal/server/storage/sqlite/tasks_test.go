package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	return s, func() {
		require.NoError(t, s.Close())
	}
}

func newTestTask(userID string) *models.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Task{
		LocalID:     uuid.New().String(),
		UserID:      userID,
		Title:       "buy milk",
		Description: "2 liters",
		Status:      models.StatusTodo,
		Priority:    models.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestTaskStorage_InsertTask(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))

	// Insert назначает серверный id, версию 1 и sequence
	assert.Positive(t, task.ID)
	assert.Equal(t, int64(1), task.Version)
	assert.Positive(t, task.ChangeSeq)

	got, err := s.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.LocalID, got.LocalID)
	assert.Equal(t, "buy milk", got.Title)
	assert.Equal(t, models.StatusTodo, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Deleted)
}

func TestTaskStorage_GetTask_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetTask(ctx, "alice", 12345)
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestTaskStorage_GetTask_WrongUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))

	// Чужая задача неотличима от несуществующей
	_, err := s.GetTask(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestTaskStorage_UpdateTaskCAS(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))
	firstSeq := task.ChangeSeq

	updated := task.Clone()
	updated.Title = "buy oat milk"
	require.NoError(t, s.UpdateTaskCAS(ctx, updated, 1, ""))

	// Версия растет ровно на 1, sequence строго монотонный
	assert.Equal(t, int64(2), updated.Version)
	assert.Greater(t, updated.ChangeSeq, firstSeq)

	got, err := s.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "buy oat milk", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestTaskStorage_UpdateTaskCAS_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))

	winner := task.Clone()
	winner.Title = "first writer"
	require.NoError(t, s.UpdateTaskCAS(ctx, winner, 1, ""))

	// Второй писатель с устаревшей версией получает mismatch
	loser := task.Clone()
	loser.Title = "second writer"
	err := s.UpdateTaskCAS(ctx, loser, 1, "")
	assert.ErrorIs(t, err, storage.ErrVersionMismatch)

	// Проигравшая запись ничего не изменила
	got, err := s.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "first writer", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestTaskStorage_UpdateTaskCAS_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	missing := newTestTask("alice")
	missing.ID = 999

	err := s.UpdateTaskCAS(ctx, missing, 1, "")
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

func TestTaskStorage_ListChangedSince(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	first := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, first, ""))

	second := newTestTask("alice")
	second.Title = "walk the dog"
	require.NoError(t, s.InsertTask(ctx, second, ""))

	// Чужие изменения не попадают в выборку
	other := newTestTask("bob")
	require.NoError(t, s.InsertTask(ctx, other, ""))

	tasks, err := s.ListChangedSince(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// Порядок по возрастанию sequence
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)
	assert.Less(t, tasks[0].ChangeSeq, tasks[1].ChangeSeq)

	// Курсор на первом изменении отсекает уже доставленное
	tail, err := s.ListChangedSince(ctx, "alice", first.ChangeSeq)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, second.ID, tail[0].ID)

	// Курсор на хвосте — пустая выборка, повторной доставки нет
	empty, err := s.ListChangedSince(ctx, "alice", second.ChangeSeq)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTaskStorage_ListChangedSince_UpdateMovesTask(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))
	cursor := task.ChangeSeq

	updated := task.Clone()
	updated.Status = models.StatusDone
	require.NoError(t, s.UpdateTaskCAS(ctx, updated, 1, ""))

	// Обновленная задача снова видна за курсором, уже с новой версией
	tasks, err := s.ListChangedSince(ctx, "alice", cursor)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.Equal(t, int64(2), tasks[0].Version)
	assert.Equal(t, models.StatusDone, tasks[0].Status)
}

func TestTaskStorage_SoftDelete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	task := newTestTask("alice")
	require.NoError(t, s.InsertTask(ctx, task, ""))

	deleted := task.Clone()
	deleted.Deleted = true
	require.NoError(t, s.UpdateTaskCAS(ctx, deleted, 1, ""))

	// Soft delete остается видимым в фиде изменений как tombstone
	tasks, err := s.ListChangedSince(ctx, "alice", task.ChangeSeq)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Deleted)
	assert.Equal(t, int64(2), tasks[0].Version)
}
