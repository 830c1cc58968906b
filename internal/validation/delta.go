package validation

import (
	"fmt"

	"github.com/iudanet/tasksync/internal/models"
)

const (
	// MaxTitleLen максимальная длина заголовка задачи
	MaxTitleLen = 256
	// MaxDescriptionLen максимальная длина описания задачи
	MaxDescriptionLen = 4096
	// MaxLocalIDLen максимальная длина клиентского идентификатора
	MaxLocalIDLen = 64
)

// ValidateDelta проверяет одну дельту при приеме батча синхронизации.
// Проверка выполняется на входе (в координаторе), а не в произвольных
// местах использования: дальше по коду payload считается валидным.
func ValidateDelta(d *models.DeltaRecord) error {
	if d == nil {
		return fmt.Errorf("delta cannot be nil")
	}

	if d.LocalID == "" {
		return fmt.Errorf("local_id cannot be empty")
	}

	if len(d.LocalID) > MaxLocalIDLen {
		return fmt.Errorf("local_id must not exceed %d characters", MaxLocalIDLen)
	}

	if !d.Op.Valid() {
		return fmt.Errorf("unknown operation %q", d.Op)
	}

	switch d.Op {
	case models.OpInsert:
		// Для insert нужен payload с заголовком
		if d.Payload == nil {
			return fmt.Errorf("insert requires a payload")
		}
		if d.Payload.Title == nil || *d.Payload.Title == "" {
			return fmt.Errorf("insert requires a non-empty title")
		}
	case models.OpUpdate:
		if d.TaskID <= 0 {
			return fmt.Errorf("update requires a positive task_id")
		}
		if d.ClientVersion <= 0 {
			return fmt.Errorf("update requires a positive client_version")
		}
		if d.Payload == nil {
			return fmt.Errorf("update requires a payload")
		}
		if isEmptyUpdate(d.Payload) {
			return fmt.Errorf("update payload changes no fields")
		}
	case models.OpDelete:
		if d.TaskID <= 0 {
			return fmt.Errorf("delete requires a positive task_id")
		}
		if d.ClientVersion <= 0 {
			return fmt.Errorf("delete requires a positive client_version")
		}
	}

	if d.Payload != nil {
		if err := validatePayloadFields(d.Payload); err != nil {
			return err
		}
	}

	return nil
}

// validatePayloadFields проверяет значения полей payload
func validatePayloadFields(p *models.TaskPayload) error {
	if p.Title != nil && len(*p.Title) > MaxTitleLen {
		return fmt.Errorf("title must not exceed %d characters", MaxTitleLen)
	}

	if p.Description != nil && len(*p.Description) > MaxDescriptionLen {
		return fmt.Errorf("description must not exceed %d characters", MaxDescriptionLen)
	}

	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", *p.Status)
	}

	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", *p.Priority)
	}

	return nil
}

func isEmptyUpdate(p *models.TaskPayload) bool {
	return p.Title == nil &&
		p.Description == nil &&
		p.Status == nil &&
		p.Priority == nil &&
		p.DueAt == nil
}
