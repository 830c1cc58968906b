// Package sync реализует клиентский цикл синхронизации: отправку
// отложенной очереди, прием серверных изменений и разрешение конфликтов.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	httpClient "github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/internal/client/queue"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/resolve"
	"github.com/iudanet/tasksync/pkg/api"
)

// Service определяет интерфейс клиентского цикла синхронизации
type Service interface {
	// Sync выполняет полную синхронизацию с сервером
	Sync(ctx context.Context, accessToken string) (*SyncResult, error)

	// Resolve разрешает конфликт выбранным способом и ставит
	// результирующую дельту в очередь на переотправку
	Resolve(ctx context.Context, localID string, choice models.Resolution) error

	// GetPendingCount возвращает количество дельт, ожидающих отправки
	GetPendingCount(ctx context.Context) (int, error)
}

// service handles synchronization between the local queue and the server
type service struct {
	apiClient httpClient.ClientAPI
	store     *queue.Storage
	logger    *slog.Logger
}

// NewService creates a new sync service
func NewService(apiClient httpClient.ClientAPI, store *queue.Storage, logger *slog.Logger) Service {
	return &service{
		apiClient: apiClient,
		store:     store,
		logger:    logger,
	}
}

// SyncResult contains sync operation results
type SyncResult struct {
	Pushed    int // количество отправленных дельт
	Acked     int // количество подтвержденных и удаленных из очереди
	Pulled    int // количество полученных серверных изменений
	Conflicts int // количество новых конфликтов
	Rejected  int // количество отклоненных дельт
	NewCursor int64
}

// Sync performs full synchronization with the server
// 1. Отправляет отложенные дельты с текущим курсором
// 2. Удаляет из очереди подтвержденные local_id
// 3. Сохраняет конфликты до разрешения
// 4. Применяет серверные изменения к локальной реплике и двигает курсор
func (s *service) Sync(ctx context.Context, accessToken string) (*SyncResult, error) {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	deltas, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deltas: %w", err)
	}

	s.logger.Info("Starting synchronization", "cursor", cursor, "pending", len(deltas))

	resp, err := s.apiClient.Sync(ctx, accessToken, buildRequest(cursor, deltas))
	if err != nil {
		// Батч не подтвержден: очередь не трогаем, повтор безопасен
		return nil, fmt.Errorf("sync request failed: %w", err)
	}

	for _, rejected := range resp.Rejected {
		s.logger.Warn("delta rejected by server",
			"local_id", rejected.LocalID,
			"reason", rejected.Reason)
	}

	// Отклоненные дельты исправить нельзя — убираем их из очереди
	// вместе с подтвержденными, иначе батч будет отклоняться вечно
	remove := make([]string, 0, len(resp.ClientChanges)+len(resp.Rejected))
	remove = append(remove, resp.ClientChanges...)
	for _, rejected := range resp.Rejected {
		remove = append(remove, rejected.LocalID)
	}

	if err := s.store.Ack(ctx, remove); err != nil {
		return nil, fmt.Errorf("failed to ack deltas: %w", err)
	}

	if err := s.store.SaveConflicts(ctx, resp.Conflicts); err != nil {
		return nil, fmt.Errorf("failed to save conflicts: %w", err)
	}

	if err := s.store.ApplyServerChanges(ctx, resp.ServerChanges); err != nil {
		return nil, fmt.Errorf("failed to apply server changes: %w", err)
	}

	if err := s.store.SetCursor(ctx, resp.NewCursor); err != nil {
		return nil, fmt.Errorf("failed to advance cursor: %w", err)
	}

	result := &SyncResult{
		Pushed:    len(deltas),
		Acked:     len(resp.ClientChanges),
		Pulled:    len(resp.ServerChanges),
		Conflicts: len(resp.Conflicts),
		Rejected:  len(resp.Rejected),
		NewCursor: resp.NewCursor,
	}

	s.logger.Info("Synchronization completed",
		"acked", result.Acked,
		"pulled", result.Pulled,
		"conflicts", result.Conflicts,
		"rejected", result.Rejected,
		"new_cursor", result.NewCursor)

	return result, nil
}

// Resolve разрешает конфликт: строит дельту переотправки с client_version
// равным текущей серверной версии и заменяет ею исходную дельту в очереди.
// ConflictRecord после этого удаляется.
func (s *service) Resolve(ctx context.Context, localID string, choice models.Resolution) error {
	record, err := s.store.GetConflict(ctx, localID)
	if err != nil {
		return fmt.Errorf("failed to load conflict: %w", err)
	}

	original, err := s.findPendingDelta(ctx, localID)
	if err != nil {
		return err
	}

	delta, err := s.buildResolution(record, original, choice)
	if err != nil {
		return err
	}

	// Заменяем исходную дельту результатом разрешения
	if err := s.store.Ack(ctx, []string{localID}); err != nil {
		return fmt.Errorf("failed to drop original delta: %w", err)
	}
	if err := s.store.Enqueue(ctx, delta); err != nil {
		return fmt.Errorf("failed to enqueue resolution delta: %w", err)
	}
	if err := s.store.DeleteConflict(ctx, localID); err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}

	s.logger.Info("conflict resolved", "local_id", localID, "choice", choice)
	return nil
}

// GetPendingCount возвращает количество дельт, ожидающих отправки
func (s *service) GetPendingCount(ctx context.Context) (int, error) {
	return s.store.PendingCount(ctx)
}

// buildResolution строит дельту переотправки для выбранного разрешения.
// Конфликт по delete особый: полей для слияния нет, keep_client повторяет
// удаление на текущей версии, merge эквивалентен keep_server.
func (s *service) buildResolution(
	record *models.ConflictRecord,
	original *models.DeltaRecord,
	choice models.Resolution,
) (*models.DeltaRecord, error) {
	if record.ServerTask == nil {
		return nil, fmt.Errorf("conflict record has no server snapshot")
	}

	if original.Op == models.OpDelete {
		switch choice {
		case models.ResolutionKeepClient:
			return &models.DeltaRecord{
				LocalID:       record.LocalID,
				Op:            models.OpDelete,
				TaskID:        record.ServerID,
				ClientVersion: record.ServerTask.Version,
			}, nil
		case models.ResolutionKeepServer, models.ResolutionMerge:
			return resolve.BuildResolutionDelta(record, nil, models.ResolutionKeepServer)
		default:
			return nil, fmt.Errorf("unknown resolution %q", choice)
		}
	}

	return resolve.BuildResolutionDelta(record, original.Payload, choice)
}

// findPendingDelta ищет неподтвержденную дельту по local_id
func (s *service) findPendingDelta(ctx context.Context, localID string) (*models.DeltaRecord, error) {
	deltas, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deltas: %w", err)
	}

	for i := range deltas {
		if deltas[i].LocalID == localID {
			return &deltas[i], nil
		}
	}

	return nil, fmt.Errorf("pending delta %s not found", localID)
}

func buildRequest(cursor int64, deltas []models.DeltaRecord) api.SyncRequest {
	return api.SyncRequest{
		Cursor:  cursor,
		Changes: deltas,
	}
}
