// Package syncsvc реализует серверную часть протокола дельта-синхронизации:
// журнал версий поверх хранилища и координатор применения батча дельт.
package syncsvc

import (
	"context"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
)

// VersionLedger ведет монотонный счетчик версий на задачу поверх
// CAS-примитива хранилища. Тонкая обертка: сам счетчик хранится в строке
// задачи, ledger лишь гарантирует, что ни одна мутация не обходит
// проверку версии.
type VersionLedger struct {
	tasks storage.TaskStorage
}

// NewVersionLedger creates a new version ledger over task storage
func NewVersionLedger(tasks storage.TaskStorage) *VersionLedger {
	return &VersionLedger{tasks: tasks}
}

// Current возвращает текущий снимок задачи вместе с ее версией
func (l *VersionLedger) Current(ctx context.Context, userID string, id int64) (*models.Task, error) {
	return l.tasks.GetTask(ctx, userID, id)
}

// Append сохраняет новую задачу: сервер назначает id, версия становится 1.
// ackLocalID подтверждается атомарно с записью задачи.
func (l *VersionLedger) Append(ctx context.Context, task *models.Task, ackLocalID string) error {
	return l.tasks.InsertTask(ctx, task, ackLocalID)
}

// CompareAndSwap применяет мутацию, только если текущая версия равна
// expected; при успехе версия увеличивается ровно на 1, а ackLocalID
// подтверждается той же транзакцией.
// Возвращает storage.ErrVersionMismatch, если версию уже увели вперед.
func (l *VersionLedger) CompareAndSwap(ctx context.Context, task *models.Task, expected int64, ackLocalID string) error {
	return l.tasks.UpdateTaskCAS(ctx, task, expected, ackLocalID)
}

// ChangedSince возвращает все задачи пользователя, затронутые любым
// актором после курсора since
func (l *VersionLedger) ChangedSince(ctx context.Context, userID string, since int64) ([]*models.Task, error) {
	return l.tasks.ListChangedSince(ctx, userID, since)
}
