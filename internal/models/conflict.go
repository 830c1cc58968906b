package models

// Resolution вариант разрешения конфликта, предлагаемый пользователю
type Resolution string

// Допустимые варианты разрешения
const (
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionKeepClient Resolution = "keep_client"
	ResolutionMerge      Resolution = "merge"
)

// ConflictReasonVersionMismatch причина конфликта: версия клиента
// не совпала с текущей версией на сервере
const ConflictReasonVersionMismatch = "version_mismatch"

// FieldConflict расхождение одного поля между серверным и клиентским снимком
type FieldConflict struct {
	Field       string `json:"field"`
	ServerValue string `json:"server_value"`
	ClientValue string `json:"client_value"`
}

// ConflictRecord создается координатором синхронизации, когда client_version
// дельты не совпадает с текущей версией сущности. Запись живет до явного
// выбора пользователя или автоматического merge: результат разрешения
// отправляется как новая дельта и проходит обычный путь Reconcile.
// Сервер конфликты не хранит — они уезжают в ответе синхронизации
// и лежат в локальной очереди клиента.
type ConflictRecord struct {
	LocalID    string          `json:"local_id"`
	Reason     string          `json:"reason"`
	ServerTask *Task           `json:"server_task,omitempty"`
	FieldDiffs []FieldConflict `json:"field_diffs,omitempty"`
	Options    []Resolution    `json:"options"`
	ServerID   int64           `json:"server_id"`
}

// DefaultResolutionOptions варианты, предлагаемые при version_mismatch
func DefaultResolutionOptions() []Resolution {
	return []Resolution{ResolutionKeepServer, ResolutionKeepClient, ResolutionMerge}
}
