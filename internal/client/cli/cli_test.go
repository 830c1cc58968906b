package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/client/queue"
	"github.com/iudanet/tasksync/internal/models"
)

// runCommand выполняет команду CLI с временной локальной базой
func runCommand(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	root.SetArgs(append(args, "--db", dbPath))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	expected := []string{"add", "list", "done", "delete", "sync", "watch", "conflicts", "resolve"}
	for _, name := range expected {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, "command %s must be registered", name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestAddCommand_QueuesInsertDelta(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	out, err := runCommand(t, dbPath, "add", "buy milk", "-p", "high", "-d", "2 liters")
	require.NoError(t, err)
	assert.Contains(t, out, "queued: buy milk")

	store, err := queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	delta := pending[0]
	assert.Equal(t, models.OpInsert, delta.Op)
	assert.NotEmpty(t, delta.LocalID)
	require.NotNil(t, delta.Payload.Title)
	assert.Equal(t, "buy milk", *delta.Payload.Title)
	require.NotNil(t, delta.Payload.Priority)
	assert.Equal(t, models.PriorityHigh, *delta.Payload.Priority)
	require.NotNil(t, delta.Payload.Description)
	assert.Equal(t, "2 liters", *delta.Payload.Description)
}

func TestAddCommand_RejectsBadFlags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	_, err := runCommand(t, dbPath, "add", "task", "-p", "urgent")
	assert.ErrorContains(t, err, "unknown priority")

	_, err = runCommand(t, dbPath, "add", "task", "--due", "tomorrow")
	assert.ErrorContains(t, err, "RFC3339")
}

func TestDoneCommand_QueuesUpdateWithReplicaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	// Кладем задачу в локальную реплику, как после синхронизации
	store, err := queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, store.ApplyServerChanges(context.Background(), []models.Task{
		{ID: 7, Title: "finish me", Status: models.StatusTodo, Version: 3},
	}))
	require.NoError(t, store.Close())

	out, err := runCommand(t, dbPath, "done", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "queued update of task 7 (v3)")

	store, err = queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	delta := pending[0]
	assert.Equal(t, models.OpUpdate, delta.Op)
	assert.Equal(t, int64(7), delta.TaskID)
	assert.Equal(t, int64(3), delta.ClientVersion)
	require.NotNil(t, delta.Payload.Status)
	assert.Equal(t, models.StatusDone, *delta.Payload.Status)
}

func TestDoneCommand_UnknownTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	_, err := runCommand(t, dbPath, "done", "999")
	assert.ErrorContains(t, err, "not found")
}

func TestDeleteCommand_QueuesDeleteDelta(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	store, err := queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, store.ApplyServerChanges(context.Background(), []models.Task{
		{ID: 7, Title: "remove me", Version: 2},
	}))
	require.NoError(t, store.Close())

	out, err := runCommand(t, dbPath, "delete", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "queued delete of task 7")

	store, err = queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpDelete, pending[0].Op)
	assert.Equal(t, int64(2), pending[0].ClientVersion)
}

func TestListCommand_ShowsReplicaAndPending(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	store, err := queue.New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, store.ApplyServerChanges(context.Background(), []models.Task{
		{ID: 1, Title: "synced task", Status: models.StatusTodo, Priority: models.PriorityMedium, Version: 1},
	}))
	require.NoError(t, store.Close())

	_, err = runCommand(t, dbPath, "add", "not synced yet")
	require.NoError(t, err)

	out, err := runCommand(t, dbPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "synced task")
	assert.Contains(t, out, "1 local change(s) not synced yet")
}

func TestSyncCommand_RequiresToken(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")

	t.Setenv("TASKSYNC_TOKEN", "")

	_, err := runCommand(t, dbPath, "sync")
	assert.ErrorContains(t, err, "access token required")
}
