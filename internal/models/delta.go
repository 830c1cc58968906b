package models

import "time"

// Op тип операции в дельте
type Op string

// Допустимые операции
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Valid проверяет, что операция входит в список допустимых
func (o Op) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// TaskPayload содержимое дельты insert/update.
// Поля-указатели для update означают "поле не менялось" при nil.
// ChangedAt время локальной правки на клиенте, используется при
// автоматическом merge (более свежая правка поля выигрывает).
type TaskPayload struct {
	ChangedAt   time.Time  `json:"changed_at"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
}

// DeltaRecord одна отложенная мутация клиента.
// LocalID уникален в пределах клиента и служит ключом идемпотентности:
// повторная отправка уже примененной дельты — no-op, который все равно
// подтверждается сервером. Удаляется из локальной очереди только после
// того, как сервер вернул LocalID в client_changes.
type DeltaRecord struct {
	LocalID       string       `json:"local_id"`
	Op            Op           `json:"op"`
	Payload       *TaskPayload `json:"payload,omitempty"`
	TaskID        int64        `json:"task_id,omitempty"`        // TaskID серверный id цели (0 для insert)
	ClientVersion int64        `json:"client_version,omitempty"` // ClientVersion версия, которую клиент считает актуальной (не используется для insert)
}
