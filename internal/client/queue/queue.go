// Package queue реализует локальную очередь отложенных мутаций клиента
// поверх BoltDB. Дельта живет в очереди с момента локальной правки и
// удаляется только после того, как сервер вернул ее local_id в
// client_changes. Конфликты лежат рядом до явного разрешения.
package queue

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketPending   = []byte("pending")   // seq → DeltaRecord (порядок отправки)
	bucketConflicts = []byte("conflicts") // local_id → ConflictRecord
	bucketTasks     = []byte("tasks")     // server_id → Task (локальная реплика)
	bucketMeta      = []byte("meta")      // курсор и привязки local_id → server_id
)

// ErrStorageClosed indicates that the queue database is not open
var ErrStorageClosed = errors.New("queue storage is closed")

// ErrConflictNotFound indicates that no conflict exists for the local id
var ErrConflictNotFound = errors.New("conflict not found")

// Storage represents BoltDB-backed client queue
type Storage struct {
	db *bbolt.DB
}

// New creates a new queue storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPending, bucketConflicts, bucketTasks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
