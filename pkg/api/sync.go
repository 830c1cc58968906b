// Package api содержит wire-типы протокола синхронизации и realtime-канала.
// Типы из internal/models переиспользуются напрямую: их JSON-формат
// стабильный и является частью контракта API.
package api

import "github.com/iudanet/tasksync/internal/models"

// SyncRequest запрос синхронизации от клиента.
// Changes обрабатываются строго в порядке следования; local_id уникален
// в пределах батча и служит ключом идемпотентности при повторах.
type SyncRequest struct {
	Changes []models.DeltaRecord `json:"changes"`
	Cursor  int64                `json:"cursor"`
}

// RejectedDelta одна дельта, отклоненная при валидации.
// Отклонение одной дельты не прерывает обработку батча.
type RejectedDelta struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

// SyncResponse ответ сервера на синхронизацию.
// NewCursor >= Cursor запроса; повторная синхронизация с NewCursor
// никогда не доставляет уже доставленные server_changes.
type SyncResponse struct {
	ServerChanges []models.Task           `json:"server_changes"`
	ClientChanges []string                `json:"client_changes"`
	Rejected      []RejectedDelta         `json:"rejected,omitempty"`
	Conflicts     []models.ConflictRecord `json:"conflicts,omitempty"`
	NewCursor     int64                   `json:"new_cursor"`
}

// ErrorResponse ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
