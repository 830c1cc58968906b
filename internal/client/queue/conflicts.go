package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/models"
)

// SaveConflicts сохраняет конфликты из ответа синхронизации.
// Запись живет до явного выбора пользователя или автоматического merge.
func (s *Storage) SaveConflicts(ctx context.Context, conflicts []models.ConflictRecord) error {
	if s.db == nil {
		return ErrStorageClosed
	}
	if len(conflicts) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflicts)

		for i := range conflicts {
			data, err := json.Marshal(&conflicts[i])
			if err != nil {
				return fmt.Errorf("failed to marshal conflict: %w", err)
			}
			if err := bucket.Put([]byte(conflicts[i].LocalID), data); err != nil {
				return fmt.Errorf("failed to save conflict: %w", err)
			}
		}

		return nil
	})
}

// GetConflict возвращает конфликт по local_id
func (s *Storage) GetConflict(ctx context.Context, localID string) (*models.ConflictRecord, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	var record *models.ConflictRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConflicts).Get([]byte(localID))
		if data == nil {
			return ErrConflictNotFound
		}

		record = &models.ConflictRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Conflicts возвращает все неразрешенные конфликты
func (s *Storage) Conflicts(ctx context.Context) ([]models.ConflictRecord, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	var records []models.ConflictRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var record models.ConflictRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal conflict: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteConflict удаляет разрешенный конфликт
func (s *Storage) DeleteConflict(ctx context.Context, localID string) error {
	if s.db == nil {
		return ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).Delete([]byte(localID))
	})
}
