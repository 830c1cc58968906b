package models

import "time"

// Status статус задачи
type Status string

// Допустимые статусы задачи
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Valid проверяет, что статус входит в список допустимых
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Rank возвращает приоритет статуса при автоматическом merge.
// Больший ранг выигрывает: done > in_progress > todo.
// Archived терминальный и обрабатывается отдельно (см. resolve.MergeStatus).
func (s Status) Rank() int {
	switch s {
	case StatusDone:
		return 3
	case StatusInProgress:
		return 2
	case StatusTodo:
		return 1
	}
	return 0
}

// Priority приоритет задачи
type Priority string

// Допустимые приоритеты задачи
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid проверяет, что приоритет входит в список допустимых
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task представляет задачу пользователя.
// Version — монотонный счетчик оптимистичной конкуренции: начинается с 1
// при создании и увеличивается ровно на 1 при каждой принятой мутации.
// Version единственный арбитр гонки "чья правка выигрывает" — ни одна
// мутация не может обойти проверку версии.
type Task struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	LocalID     string   `json:"local_id"`    // LocalID клиентский идентификатор (UUID), связывает задачу с очередью клиента
	UserID      string   `json:"user_id"`     // UserID идентификатор владельца
	Title       string   `json:"title"`       // Title заголовок задачи
	Description string   `json:"description"` // Description описание задачи
	Status      Status   `json:"status"`      // Status текущий статус
	Priority    Priority `json:"priority"`    // Priority приоритет
	ID          int64    `json:"id"`          // ID серверный идентификатор (назначается при insert)
	Version     int64    `json:"version"`     // Version счетчик версий (optimistic concurrency)
	ChangeSeq   int64    `json:"-"`           // ChangeSeq серверный sequence для курсора синхронизации
	Deleted     bool     `json:"deleted"`     // Deleted флаг soft delete
}

// Clone создает глубокую копию задачи
func (t *Task) Clone() *Task {
	c := *t
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return &c
}
