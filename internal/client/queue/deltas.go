package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/models"
)

// Enqueue ставит дельту в хвост очереди.
// Ключ — монотонный sequence bucket'а, поэтому Pending возвращает
// дельты строго в порядке постановки.
func (s *Storage) Enqueue(ctx context.Context, delta *models.DeltaRecord) error {
	if s.db == nil {
		return ErrStorageClosed
	}

	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPending)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		if err := bucket.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to save delta: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// Pending возвращает все отложенные дельты в порядке постановки
func (s *Storage) Pending(ctx context.Context) ([]models.DeltaRecord, error) {
	if s.db == nil {
		return nil, ErrStorageClosed
	}

	var deltas []models.DeltaRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var delta models.DeltaRecord
			if err := json.Unmarshal(v, &delta); err != nil {
				return fmt.Errorf("failed to unmarshal delta: %w", err)
			}
			deltas = append(deltas, delta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return deltas, nil
}

// Ack удаляет из очереди дельты, подтвержденные сервером.
// Дельта удаляется локально только после подтверждения ее local_id.
func (s *Storage) Ack(ctx context.Context, localIDs []string) error {
	if s.db == nil {
		return ErrStorageClosed
	}
	if len(localIDs) == 0 {
		return nil
	}

	acked := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		acked[id] = struct{}{}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPending)
		cursor := bucket.Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var delta models.DeltaRecord
			if err := json.Unmarshal(v, &delta); err != nil {
				return fmt.Errorf("failed to unmarshal delta: %w", err)
			}
			if _, ok := acked[delta.LocalID]; ok {
				if err := cursor.Delete(); err != nil {
					return fmt.Errorf("failed to delete delta: %w", err)
				}
			}
		}

		return nil
	})
}

// PendingCount возвращает количество отложенных дельт
func (s *Storage) PendingCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrStorageClosed
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// seqKey кодирует sequence в big-endian ключ для сортировки по порядку
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
