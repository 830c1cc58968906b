// Package resolve реализует детектирование и разрешение конфликтов
// синхронизации. Все функции чистые: результат зависит только от двух
// переданных снимков, никакого обращения к хранилищу или глобальному
// состоянию здесь нет.
package resolve

import (
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/models"
)

// Result результат сравнения серверного снимка с намерением клиента
type Result struct {
	Merged     *models.TaskPayload
	FieldDiffs []models.FieldConflict
}

// Resolve сравнивает серверный снимок задачи с намерением клиента и
// возвращает пофайловый diff плюс payload автоматического merge.
// Merged отправляется как новая дельта с client_version равным текущей
// версии сервера, поэтому проходит обычную проверку версии в Reconcile:
// либо применится, либо при настоящей гонке снова даст конфликт.
func Resolve(server *models.Task, client *models.TaskPayload) Result {
	return Result{
		FieldDiffs: Diff(server, client),
		Merged:     Merge(server, client),
	}
}

// Diff возвращает расхождения по каждому полю, присутствующему в обоих
// снимках. Поля, которые клиент не менял (nil в payload), не сравниваются.
func Diff(server *models.Task, client *models.TaskPayload) []models.FieldConflict {
	var diffs []models.FieldConflict

	if client.Title != nil && *client.Title != server.Title {
		diffs = append(diffs, models.FieldConflict{
			Field:       "title",
			ServerValue: server.Title,
			ClientValue: *client.Title,
		})
	}

	if client.Description != nil && *client.Description != server.Description {
		diffs = append(diffs, models.FieldConflict{
			Field:       "description",
			ServerValue: server.Description,
			ClientValue: *client.Description,
		})
	}

	if client.Status != nil && *client.Status != server.Status {
		diffs = append(diffs, models.FieldConflict{
			Field:       "status",
			ServerValue: string(server.Status),
			ClientValue: string(*client.Status),
		})
	}

	if client.Priority != nil && *client.Priority != server.Priority {
		diffs = append(diffs, models.FieldConflict{
			Field:       "priority",
			ServerValue: string(server.Priority),
			ClientValue: string(*client.Priority),
		})
	}

	if client.DueAt != nil && !equalTimePtr(client.DueAt, server.DueAt) {
		diffs = append(diffs, models.FieldConflict{
			Field:       "due_at",
			ServerValue: formatTimePtr(server.DueAt),
			ClientValue: formatTimePtr(client.DueAt),
		})
	}

	return diffs
}

// Merge строит payload автоматического слияния.
// Статус сливается по рангу (done > in_progress > todo), archived
// терминален и выигрывает у любого неархивного значения. Остальные поля:
// выигрывает значение с более свежим временем правки, при равенстве —
// серверное.
func Merge(server *models.Task, client *models.TaskPayload) *models.TaskPayload {
	merged := &models.TaskPayload{ChangedAt: time.Now()}
	clientWins := client.ChangedAt.After(server.UpdatedAt)

	if client.Status != nil {
		status := MergeStatus(server.Status, *client.Status)
		merged.Status = &status
	}

	if client.Title != nil {
		merged.Title = pickString(server.Title, *client.Title, clientWins)
	}

	if client.Description != nil {
		merged.Description = pickString(server.Description, *client.Description, clientWins)
	}

	if client.Priority != nil {
		p := server.Priority
		if clientWins {
			p = *client.Priority
		}
		merged.Priority = &p
	}

	if client.DueAt != nil {
		due := server.DueAt
		if clientWins {
			due = client.DueAt
		}
		if due != nil {
			d := *due
			merged.DueAt = &d
		}
	}

	return merged
}

// MergeStatus сливает два статуса по ранговой политике.
// Archived терминален: если любая сторона заархивировала задачу,
// результат archived. Иначе выигрывает больший ранг, при равных
// рангах — серверное значение.
func MergeStatus(server, client models.Status) models.Status {
	if server == models.StatusArchived || client == models.StatusArchived {
		return models.StatusArchived
	}
	if client.Rank() > server.Rank() {
		return client
	}
	return server
}

// BuildResolutionDelta строит дельту повторной отправки для выбранного
// варианта разрешения конфликта. ConflictRecord после этого считается
// разрешенным и удаляется из локальной очереди клиента.
func BuildResolutionDelta(
	conflict *models.ConflictRecord,
	client *models.TaskPayload,
	choice models.Resolution,
) (*models.DeltaRecord, error) {
	server := conflict.ServerTask
	if server == nil {
		return nil, fmt.Errorf("conflict record has no server snapshot")
	}

	var payload *models.TaskPayload
	switch choice {
	case models.ResolutionMerge:
		payload = Merge(server, client)
	case models.ResolutionKeepClient:
		payload = client
	case models.ResolutionKeepServer:
		// Переотправляем серверный снимок как полный payload:
		// версия поднимется, клиентская правка отбрасывается.
		payload = snapshotPayload(server)
	default:
		return nil, fmt.Errorf("unknown resolution %q", choice)
	}

	return &models.DeltaRecord{
		LocalID:       conflict.LocalID,
		Op:            models.OpUpdate,
		TaskID:        conflict.ServerID,
		ClientVersion: server.Version,
		Payload:       payload,
	}, nil
}

// snapshotPayload превращает серверный снимок в полный payload
func snapshotPayload(t *models.Task) *models.TaskPayload {
	title := t.Title
	desc := t.Description
	status := t.Status
	priority := t.Priority

	p := &models.TaskPayload{
		ChangedAt:   time.Now(),
		Title:       &title,
		Description: &desc,
		Status:      &status,
		Priority:    &priority,
	}
	if t.DueAt != nil {
		due := *t.DueAt
		p.DueAt = &due
	}
	return p
}

func pickString(server, client string, clientWins bool) *string {
	v := server
	if clientWins {
		v = client
	}
	return &v
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
