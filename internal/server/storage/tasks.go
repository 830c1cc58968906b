package storage

import (
	"context"

	"github.com/iudanet/tasksync/internal/models"
)

// TaskStorage defines interface for task persistence.
// Каждая мутация выполняется в собственной транзакции на уровне строки:
// глобальной блокировки на весь sync-вызов нет, гонки по одной задаче
// разрешает проверка версии.
type TaskStorage interface {
	// InsertTask persists a new task, allocating the server id, setting
	// version to 1 and stamping a fresh change sequence.
	// The passed task is updated in place with ID, Version and ChangeSeq.
	// При непустом ackLocalID в той же транзакции записывается строка
	// подтверждения: мутация и ее ack коммитятся атомарно.
	InsertTask(ctx context.Context, task *models.Task, ackLocalID string) error

	// GetTask retrieves a task by server id regardless of the deleted flag.
	// Returns ErrTaskNotFound if no such task exists for the user.
	GetTask(ctx context.Context, userID string, id int64) (*models.Task, error)

	// UpdateTaskCAS applies the full task row if and only if the stored
	// version equals expectedVersion. On success the stored version becomes
	// expectedVersion+1 and a fresh change sequence is stamped; the passed
	// task is updated in place. Returns ErrVersionMismatch when the check
	// fails and ErrTaskNotFound when the task does not exist.
	// Непустой ackLocalID подтверждается в той же транзакции, что и мутация.
	UpdateTaskCAS(ctx context.Context, task *models.Task, expectedVersion int64, ackLocalID string) error

	// ListChangedSince retrieves all tasks of the user (including deleted)
	// with change sequence strictly greater than since, ordered by sequence.
	ListChangedSince(ctx context.Context, userID string, since int64) ([]*models.Task, error)
}

// AckStorage defines interface for the per-user set of acknowledged delta
// local ids. Консультация перед применением дельты делает повторную
// отправку батча идемпотентной: уже примененная дельта не применяется
// второй раз, но все равно подтверждается. Сама запись ack происходит
// внутри транзакции мутации (InsertTask/UpdateTaskCAS).
type AckStorage interface {
	// GetAck returns the server id bound to an acknowledged local id.
	// ok is false when the local id has not been acknowledged yet.
	GetAck(ctx context.Context, userID, localID string) (serverID int64, ok bool, err error)
}
