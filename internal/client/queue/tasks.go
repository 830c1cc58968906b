package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/models"
)

// keyCursor ключ курсора синхронизации в meta bucket
var keyCursor = []byte("cursor")

// ApplyServerChanges обновляет локальную реплику задачами из
// server_changes ответа синхронизации
func (s *Storage) ApplyServerChanges(ctx context.Context, tasks []models.Task) error {
	if s.db == nil {
		return ErrStorageClosed
	}
	if len(tasks) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTasks)

		for i := range tasks {
			data, err := json.Marshal(&tasks[i])
			if err != nil {
				return fmt.Errorf("failed to marshal task: %w", err)
			}
			if err := bucket.Put(seqKey(uint64(tasks[i].ID)), data); err != nil {
				return fmt.Errorf("failed to save task: %w", err)
			}
		}

		return nil
	})
}

// Tasks возвращает локальную реплику задач (без удаленных)
func (s *Storage) Tasks(ctx context.Context) ([]models.Task, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	var tasks []models.Task

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if !task.Deleted {
				tasks = append(tasks, task)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// GetTask возвращает задачу локальной реплики по серверному id
func (s *Storage) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	var task *models.Task

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get(seqKey(uint64(id)))
		if data == nil {
			return fmt.Errorf("task %d not found in local replica", id)
		}

		task = &models.Task{}
		if err := json.Unmarshal(data, task); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// Cursor возвращает курсор последней полной синхронизации (0, если
// синхронизаций еще не было)
func (s *Storage) Cursor(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, ErrStorageClosed
	}

	var cursor int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCursor)
		if data != nil {
			cursor = int64(binary.BigEndian.Uint64(data))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return cursor, nil
}

// SetCursor сохраняет курсор. Курсор двигается только вперед:
// попытка отката молча игнорируется.
func (s *Storage) SetCursor(ctx context.Context, cursor int64) error {
	if s.db == nil {
		return ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)

		current := int64(0)
		if data := bucket.Get(keyCursor); data != nil {
			current = int64(binary.BigEndian.Uint64(data))
		}
		if cursor <= current {
			return nil
		}

		return bucket.Put(keyCursor, seqKey(uint64(cursor)))
	})
}
