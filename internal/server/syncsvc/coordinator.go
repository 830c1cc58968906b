package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/resolve"
	"github.com/iudanet/tasksync/internal/server/storage"
	"github.com/iudanet/tasksync/internal/validation"
	"github.com/iudanet/tasksync/pkg/api"
)

// Notifier доставляет события об изменениях живым репликам пользователя.
// Реализуется realtime.Hub; доставка best-effort, ее ошибки на результат
// синхронизации не влияют.
type Notifier interface {
	Notify(userID string, event api.Event)
}

// noopNotifier используется, когда realtime-канал не подключен
type noopNotifier struct{}

func (noopNotifier) Notify(string, api.Event) {}

// Coordinator применяет батч отложенных мутаций клиента к журналу версий
// и формирует ответ синхронизации. Вызовы синхронные; глобальной
// блокировки нет — гонки по одной задаче разрешает CAS журнала.
type Coordinator struct {
	logger   *slog.Logger
	ledger   *VersionLedger
	acks     storage.AckStorage
	notifier Notifier
}

// NewCoordinator creates a new sync coordinator.
// notifier может быть nil, тогда события не рассылаются.
func NewCoordinator(logger *slog.Logger, ledger *VersionLedger, acks storage.AckStorage, notifier Notifier) *Coordinator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Coordinator{
		logger:   logger,
		ledger:   ledger,
		acks:     acks,
		notifier: notifier,
	}
}

// Reconcile обрабатывает дельты строго в порядке следования.
// Ошибки валидации и конфликты версий не прерывают батч и попадают
// в ответ; целиком вызов падает только при недоступности хранилища,
// и тогда ничего из батча не подтверждается (повтор безопасен благодаря
// идемпотентности по local_id).
func (c *Coordinator) Reconcile(
	ctx context.Context,
	userID string,
	cursor int64,
	deltas []models.DeltaRecord,
) (*api.SyncResponse, error) {
	resp := &api.SyncResponse{
		ClientChanges: []string{},
		NewCursor:     cursor,
	}

	seen := make(map[string]struct{}, len(deltas))

	for i := range deltas {
		delta := &deltas[i]

		if err := validation.ValidateDelta(delta); err != nil {
			resp.Rejected = append(resp.Rejected, api.RejectedDelta{
				LocalID: delta.LocalID,
				Reason:  err.Error(),
			})
			continue
		}

		// local_id уникален в пределах батча
		if _, dup := seen[delta.LocalID]; dup {
			resp.Rejected = append(resp.Rejected, api.RejectedDelta{
				LocalID: delta.LocalID,
				Reason:  "duplicate local_id in batch",
			})
			continue
		}
		seen[delta.LocalID] = struct{}{}

		// Идемпотентность: уже примененная дельта — no-op с подтверждением
		if _, acked, err := c.acks.GetAck(ctx, userID, delta.LocalID); err != nil {
			return nil, fmt.Errorf("ack lookup failed: %w", err)
		} else if acked {
			resp.ClientChanges = append(resp.ClientChanges, delta.LocalID)
			continue
		}

		switch delta.Op {
		case models.OpInsert:
			if err := c.applyInsert(ctx, userID, delta); err != nil {
				return nil, err
			}
			resp.ClientChanges = append(resp.ClientChanges, delta.LocalID)

		case models.OpUpdate, models.OpDelete:
			conflict, rejected, err := c.applyMutation(ctx, userID, delta)
			if err != nil {
				return nil, err
			}
			if rejected != nil {
				resp.Rejected = append(resp.Rejected, *rejected)
				continue
			}
			if conflict != nil {
				resp.Conflicts = append(resp.Conflicts, *conflict)
				continue
			}
			resp.ClientChanges = append(resp.ClientChanges, delta.LocalID)
		}
	}

	// Все изменения, затронутые любым актором после курсора,
	// включая только что примененные дельты этого клиента:
	// так клиент связывает local_id с серверным id.
	changed, err := c.ledger.ChangedSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to list server changes: %w", err)
	}

	resp.ServerChanges = make([]models.Task, 0, len(changed))
	for _, t := range changed {
		resp.ServerChanges = append(resp.ServerChanges, *t)
		if t.ChangeSeq > resp.NewCursor {
			resp.NewCursor = t.ChangeSeq
		}
	}

	c.logger.Info("reconcile completed",
		"user_id", userID,
		"deltas", len(deltas),
		"acked", len(resp.ClientChanges),
		"conflicts", len(resp.Conflicts),
		"rejected", len(resp.Rejected),
		"server_changes", len(resp.ServerChanges),
		"new_cursor", resp.NewCursor,
	)

	return resp, nil
}

// applyInsert сохраняет новую задачу с версией 1 и подтверждает local_id
func (c *Coordinator) applyInsert(ctx context.Context, userID string, delta *models.DeltaRecord) error {
	now := time.Now()
	task := &models.Task{
		LocalID:   delta.LocalID,
		UserID:    userID,
		Status:    models.StatusTodo,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyPayload(task, delta.Payload, now)

	// Ack пишется той же транзакцией, что и задача: упавший вызов
	// не оставляет примененную, но не подтвержденную мутацию
	if err := c.ledger.Append(ctx, task, delta.LocalID); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}

	c.notifier.Notify(userID, taskChangedEvent(task))
	return nil
}

// applyMutation применяет update/delete через проверку версии.
// Несовпадение версии дает ConflictRecord и не трогает хранимое
// состояние; отсутствие задачи — отклонение уровня валидации.
func (c *Coordinator) applyMutation(
	ctx context.Context,
	userID string,
	delta *models.DeltaRecord,
) (*models.ConflictRecord, *api.RejectedDelta, error) {
	current, err := c.ledger.Current(ctx, userID, delta.TaskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			return nil, &api.RejectedDelta{
				LocalID: delta.LocalID,
				Reason:  "task not found",
			}, nil
		}
		return nil, nil, fmt.Errorf("failed to read current version: %w", err)
	}

	if delta.ClientVersion != current.Version {
		return c.buildConflict(delta, current), nil, nil
	}

	now := time.Now()
	next := current.Clone()
	next.UpdatedAt = now

	if delta.Op == models.OpDelete {
		next.Deleted = true
	} else {
		applyPayload(next, delta.Payload, now)
	}

	if err := c.ledger.CompareAndSwap(ctx, next, current.Version, delta.LocalID); err != nil {
		if errors.Is(err, storage.ErrVersionMismatch) {
			// Конкурентный писатель успел между чтением и CAS —
			// перечитываем и отдаем конфликт по свежему снимку
			fresh, rerr := c.ledger.Current(ctx, userID, delta.TaskID)
			if rerr != nil {
				return nil, nil, fmt.Errorf("failed to re-read after cas race: %w", rerr)
			}
			return c.buildConflict(delta, fresh), nil, nil
		}
		if errors.Is(err, storage.ErrTaskNotFound) {
			return nil, &api.RejectedDelta{
				LocalID: delta.LocalID,
				Reason:  "task not found",
			}, nil
		}
		return nil, nil, fmt.Errorf("cas failed: %w", err)
	}

	c.notifier.Notify(userID, taskChangedEvent(next))
	return nil, nil, nil
}

// buildConflict формирует ConflictRecord с пофайловым diff и вариантами
// разрешения; хранимое состояние задачи при этом не меняется
func (c *Coordinator) buildConflict(delta *models.DeltaRecord, current *models.Task) *models.ConflictRecord {
	record := &models.ConflictRecord{
		LocalID:    delta.LocalID,
		ServerID:   current.ID,
		Reason:     models.ConflictReasonVersionMismatch,
		ServerTask: current.Clone(),
		Options:    models.DefaultResolutionOptions(),
	}
	if delta.Payload != nil {
		record.FieldDiffs = resolve.Diff(current, delta.Payload)
	}

	c.logger.Info("version conflict",
		"local_id", delta.LocalID,
		"task_id", current.ID,
		"client_version", delta.ClientVersion,
		"server_version", current.Version,
	)

	return record
}

// applyPayload переносит заполненные поля payload в задачу.
// Переход в done проставляет completed_at, уход из done очищает его.
func applyPayload(task *models.Task, payload *models.TaskPayload, now time.Time) {
	if payload == nil {
		return
	}

	if payload.Title != nil {
		task.Title = *payload.Title
	}
	if payload.Description != nil {
		task.Description = *payload.Description
	}
	if payload.Priority != nil {
		task.Priority = *payload.Priority
	}
	if payload.DueAt != nil {
		due := *payload.DueAt
		task.DueAt = &due
	}
	if payload.Status != nil && *payload.Status != task.Status {
		task.Status = *payload.Status
		if task.Status == models.StatusDone {
			completed := now
			task.CompletedAt = &completed
		} else {
			task.CompletedAt = nil
		}
	}
}

func taskChangedEvent(task *models.Task) api.Event {
	return api.Event{
		Type:      api.FrameTypeEvent,
		EventName: api.EventTaskChanged,
		TaskID:    task.ID,
		Version:   task.Version,
		ChangeSeq: task.ChangeSeq,
		Deleted:   task.Deleted,
	}
}
